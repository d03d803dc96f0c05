package config

import "github.com/alecthomas/kong"

// ExplicitFlags returns the set of kebab-case flag names the caller
// actually provided on the command line or via an env var, as opposed
// to ones kong filled in from their declared `default:` tag. ApplyFile
// consults this set so a config file value never clobbers a flag the
// caller explicitly gave — kong itself only distinguishes "set" from
// "defaulted" at the Flag level, so that distinction has to be captured
// here, right after Parse, and threaded through explicitly.
func ExplicitFlags(ctx *kong.Context) map[string]bool {
	set := make(map[string]bool)
	for _, flag := range ctx.Flags() {
		if flag.Set {
			set[flag.Name] = true
		}
	}
	return set
}

// ServerCLI is the server binary's kong-parsed flag set.
type ServerCLI struct {
	Config      string `help:"path to an optional YAML config file" type:"path"`
	Port        int    `default:"12345" help:"port to listen on"`
	Secure      bool   `default:"false" help:"require TLS for this listener"`
	Cert        string `default:"server.crt" help:"TLS certificate file (secure mode)"`
	Key         string `default:"server.key" help:"TLS private key file (secure mode)"`
	LogLevel    string `default:"info" help:"log level: debug, info, warning, error"`
	LogFile     string `help:"rotate logs to this file in addition to stdout" type:"path"`
	MetricsAddr string `help:"if set, serve Prometheus metrics at this host:port"`
}

// ApplyFile merges a loaded ServerFile into cli, only overriding fields
// absent from explicit (flags the caller did not set on the command
// line or through an env var) — CLI flag and env var values always win
// over the file, matching the declared precedence CLI > env > file >
// struct default.
func (cli *ServerCLI) ApplyFile(f *ServerFile, explicit map[string]bool) {
	if f == nil {
		return
	}
	if !explicit["port"] {
		setInt(&cli.Port, f.Port)
	}
	if !explicit["secure"] {
		setBool(&cli.Secure, f.Secure)
	}
	if !explicit["cert"] {
		setStr(&cli.Cert, f.CertFile)
	}
	if !explicit["key"] {
		setStr(&cli.Key, f.KeyFile)
	}
	if !explicit["log-level"] {
		setStr(&cli.LogLevel, f.LogLevel)
	}
	if !explicit["log-file"] {
		setStr(&cli.LogFile, f.LogFile)
	}
	if !explicit["metrics-addr"] {
		setStr(&cli.MetricsAddr, f.MetricsAddr)
	}
}

// ClientCLI is the client binary's kong-parsed flag set.
type ClientCLI struct {
	Config   string `help:"path to an optional YAML config file" type:"path"`
	Host     string `default:"127.0.0.1" help:"server host to connect to"`
	Port     int    `default:"12345" help:"server port to connect to"`
	Secure   bool   `default:"false" help:"connect over TLS"`
	Name     string `default:"guest" help:"display name to log in with"`
	LogLevel string `default:"info" help:"log level: debug, info, warning, error"`
}

// ApplyFile merges a loaded ClientFile into cli, subject to the same
// explicit-flags-win precedence as ServerCLI.ApplyFile.
func (cli *ClientCLI) ApplyFile(f *ClientFile, explicit map[string]bool) {
	if f == nil {
		return
	}
	if !explicit["host"] {
		setStr(&cli.Host, f.Host)
	}
	if !explicit["port"] {
		setInt(&cli.Port, f.Port)
	}
	if !explicit["secure"] {
		setBool(&cli.Secure, f.Secure)
	}
	if !explicit["name"] {
		setStr(&cli.Name, f.Name)
	}
	if !explicit["log-level"] {
		setStr(&cli.LogLevel, f.LogLevel)
	}
}
