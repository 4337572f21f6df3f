package temporal

import (
	"crypto/tls"
	"fmt"
	"sync"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/config"
)

// The Temporal connection is a process-wide singleton with explicit
// lifecycle: Init dials once, Get hands out the shared client, Close shuts
// it down. Nothing reads it as implicit global state before Init.
var (
	mu        sync.Mutex
	shared    client.Client
	sharedErr error
	dialed    bool
)

// Dial connects to the orchestration runtime using one of three shapes:
// plain address, TLS with API key, or TLS with a client certificate pair.
func Dial(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	opts := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewZapAdapter(logger),
	}

	if cfg.TLS.Enabled {
		tlsCfg := &tls.Config{ServerName: cfg.TLS.ServerName}
		if cfg.APIKey != "" {
			opts.Credentials = client.NewAPIKeyStaticCredentials(cfg.APIKey)
		} else {
			cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("load client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		opts.ConnectionOptions = client.ConnectionOptions{TLS: tlsCfg}
	}

	c, err := client.Dial(opts)
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// Init dials the shared client exactly once. Safe to call from multiple
// goroutines; later calls return the first outcome.
func Init(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	mu.Lock()
	defer mu.Unlock()
	if dialed {
		return shared, sharedErr
	}
	shared, sharedErr = Dial(cfg, logger)
	dialed = true
	return shared, sharedErr
}

// Get returns the shared client, or an error if Init has not succeeded.
func Get() (client.Client, error) {
	mu.Lock()
	defer mu.Unlock()
	if !dialed {
		return nil, fmt.Errorf("temporal client not initialized")
	}
	return shared, sharedErr
}

// Close shuts the shared client down. Subsequent Init re-dials.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if shared != nil {
		shared.Close()
	}
	shared = nil
	sharedErr = nil
	dialed = false
}
