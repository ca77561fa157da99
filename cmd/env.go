package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-hub/internal/dispatch"
	"github.com/sells-group/provider-hub/internal/invoke"
	"github.com/sells-group/provider-hub/internal/monitoring"
	"github.com/sells-group/provider-hub/internal/registry"
	"github.com/sells-group/provider-hub/internal/resolver"
	"github.com/sells-group/provider-hub/internal/secrets"
	"github.com/sells-group/provider-hub/internal/store"
	"github.com/sells-group/provider-hub/internal/syncer"
)

// appEnv wires the full component graph behind a command.
type appEnv struct {
	Store      store.Store
	Cipher     *secrets.Cipher
	Resolver   *resolver.Resolver
	Syncer     *syncer.Syncer
	Registry   *registry.Registry
	Mappings   *registry.Mappings
	Metrics    *monitoring.Metrics
	Dispatcher *dispatch.Dispatcher
	Invokers   *invoke.Registry
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "provider-hub.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	passphrase := cfg.Secrets.EncryptionKey
	if passphrase == "" {
		passphrase = os.Getenv("ENCRYPTION_KEY")
	}
	cipher, err := secrets.NewCipher(passphrase)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	res := resolver.New(st, cipher)
	sync := syncer.New(st)
	metrics := monitoring.NewMetrics()

	return &appEnv{
		Store:      st,
		Cipher:     cipher,
		Resolver:   res,
		Syncer:     sync,
		Registry:   registry.New(st, cipher, res, sync),
		Mappings:   registry.NewMappings(st),
		Metrics:    metrics,
		Dispatcher: dispatch.New(st, res, metrics),
		Invokers:   invoke.NewRegistry(),
	}, nil
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
