// Command chatwire-client is a minimal chatwire client: it logs in under
// a display name, prints every push it receives, and relays lines typed
// on stdin as public chat messages.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/segmentio/encoding/json"

	"github.com/chatwire/chatwire/internal/client"
	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/logger"
	"github.com/chatwire/chatwire/internal/transport"
)

func main() {
	var cli config.ClientCLI
	kctx := kong.Parse(&cli,
		kong.Name("chatwire-client"),
		kong.Description("Connects to a chatwire chat server."))

	fileCfg, err := config.LoadClientFile(cli.Config)
	if err != nil {
		logger.Errorf("loading config file: %v", err)
		os.Exit(1)
	}
	cli.ApplyFile(fileCfg, config.ExplicitFlags(kctx))
	logger.SetLevel(logger.ParseLevel(cli.LogLevel))

	mode := transport.Plain
	if cli.Secure {
		mode = transport.Secure
	}

	c := client.New(client.Threaded)
	c.OnPush(func(push json.RawMessage) {
		fmt.Printf("%s\n", push)
	})
	c.OnError(func(err error) {
		logger.Errorf("transport error: %v", err)
	})
	c.OnDisconnect(func() {
		logger.Info("disconnected")
	})

	dialCfg := transport.ClientConfig{Host: cli.Host, Port: uint16(cli.Port), Mode: mode, VerifyPeer: true}
	if !c.Connect(context.Background(), dialCfg) {
		logger.Fatal("failed to connect to %s:%d", cli.Host, cli.Port)
	}
	defer c.Close()

	loginParams, _ := json.Marshal(map[string]any{"name": cli.Name})
	if _, err := c.Request("login", loginParams); err != nil {
		logger.Fatal("login failed: %v", err)
	}
	logger.Success("connected as %s", cli.Name)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		params, _ := json.Marshal(map[string]any{"text": text})
		if _, err := c.Request("send_public", params); err != nil {
			logger.Errorf("send failed: %v", err)
		}
	}
}
