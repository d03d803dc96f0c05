// Package transport provides the Stream capability chatwire's client and
// server sessions read/write frames over: a plain TCP connection or a
// TLS connection, dialed by the client or accepted by the server.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/chatwire/chatwire/internal/protocol"
)

// Stream is the capability every transport exposes once established:
// ordered, reliable byte read/write with an idempotent close. Both
// net.Conn and tls.Conn satisfy it directly.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetDeadline(t time.Time) error
}

// Mode selects plain TCP or TLS for a connection.
type Mode int

const (
	Plain Mode = iota
	Secure
)

func (m Mode) String() string {
	if m == Secure {
		return "secure"
	}
	return "plain"
}

// ClientConfig describes how the client dials the server.
type ClientConfig struct {
	Host       string
	Port       uint16
	Mode       Mode
	VerifyPeer bool // client-side certificate verification toggle
}

// Dial connects to the configured host:port, returning a ready Stream.
func Dial(ctx context.Context, cfg ClientConfig) (Stream, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var d net.Dialer

	switch cfg.Mode {
	case Plain:
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &protocol.TransportError{Op: "dial", Err: err}
		}
		return conn, nil
	case Secure:
		tlsCfg := &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: !cfg.VerifyPeer,
			MinVersion:         tls.VersionTLS12,
		}
		conn, err := tls.DialWithDialer(&d, "tcp", addr, tlsCfg)
		if err != nil {
			return nil, &protocol.TransportError{Op: "dial_tls", Err: err}
		}
		return conn, nil
	default:
		return nil, &protocol.TransportError{Op: "dial", Err: fmt.Errorf("unknown transport mode %v", cfg.Mode)}
	}
}

// ServerConfig describes how the server binds and, for Secure mode,
// which certificate material it serves.
type ServerConfig struct {
	Port     uint16
	Mode     Mode
	CertFile string
	KeyFile  string
}

// IsValid reports whether cfg has everything required for its Mode.
func (cfg ServerConfig) IsValid() bool {
	if cfg.Port == 0 {
		return false
	}
	if cfg.Mode == Secure && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return false
	}
	return true
}

// Listen binds a net.Listener for cfg's mode. For Secure mode, tlsConfig
// must be non-nil (see CertWatcher.Config for the hot-reloading TLS config
// source).
func Listen(cfg ServerConfig, tlsConfig *tls.Config) (net.Listener, error) {
	addr := fmt.Sprintf(":%d", cfg.Port)
	switch cfg.Mode {
	case Plain:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, &protocol.TransportError{Op: "listen", Err: err}
		}
		return ln, nil
	case Secure:
		ln, err := tls.Listen("tcp", addr, tlsConfig)
		if err != nil {
			return nil, &protocol.TransportError{Op: "listen_tls", Err: err}
		}
		return ln, nil
	default:
		return nil, &protocol.TransportError{Op: "listen", Err: fmt.Errorf("unknown transport mode %v", cfg.Mode)}
	}
}
