package transport

import (
	"context"
	"crypto/tls"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chatwire/chatwire/internal/protocol"
)

// CertWatcher keeps a *tls.Config's certificate current by reloading the
// cert/key pair whenever either file changes on disk, so a long-running
// server never needs a restart to pick up renewed material.
type CertWatcher struct {
	certFile string
	keyFile  string
	debounce time.Duration

	current atomic.Pointer[tls.Certificate]

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
}

// NewCertWatcher loads the initial cert/key pair and starts watching the
// directories that hold the two files for changes.
func NewCertWatcher(certFile, keyFile string) (*CertWatcher, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, &protocol.TransportError{Op: "load_cert", Err: err}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &protocol.TransportError{Op: "watch_cert", Err: err}
	}
	for _, dir := range uniqueDirs(certFile, keyFile) {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, &protocol.TransportError{Op: "watch_cert", Err: err}
		}
	}
	cw := &CertWatcher{certFile: certFile, keyFile: keyFile, debounce: 500 * time.Millisecond, watcher: w}
	cw.current.Store(&cert)
	return cw, nil
}

func uniqueDirs(paths ...string) []string {
	seen := map[string]struct{}{}
	var dirs []string
	for _, p := range paths {
		d := filepath.Dir(p)
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Run watches for filesystem events until ctx is cancelled, reloading the
// certificate pair on each debounced write/create event.
func (cw *CertWatcher) Run(ctx context.Context) {
	defer cw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cw.scheduleReload()
		case <-cw.watcher.Errors:
		}
	}
}

func (cw *CertWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.reload)
}

func (cw *CertWatcher) reload() {
	cert, err := tls.LoadX509KeyPair(cw.certFile, cw.keyFile)
	if err != nil {
		return
	}
	cw.current.Store(&cert)
}

// Config returns a *tls.Config whose GetCertificate always serves the
// most recently loaded certificate pair.
func (cw *CertWatcher) Config() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return cw.current.Load(), nil
		},
	}
}
