package node

import (
	"context"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/core/lifecycle"
	"github.com/yndnr/meshkv/internal/infra/confloader"
	"github.com/yndnr/meshkv/internal/kvstore"
	"github.com/yndnr/meshkv/internal/server/config"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// storeOpener exposes a kvstore.Manager as a lifecycle.Opener.
type storeOpener struct {
	m *kvstore.Manager
}

func (o storeOpener) Create(ctx context.Context, name string, policy domain.AccessPolicy) (lifecycle.Store, error) {
	st, err := o.m.Create(ctx, name, policy)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (o storeOpener) Open(ctx context.Context, address string, policy domain.AccessPolicy) (lifecycle.Store, error) {
	st, err := o.m.Open(ctx, address, policy)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// attachedKV serves the controller's store to a front-end that sees it
// as T.
func attachedKV[T any](ctl *lifecycle.Controller) func() (T, error) {
	return func() (T, error) {
		var zero T
		st, err := ctl.Store()
		if err != nil {
			return zero, err
		}
		kv, ok := st.(T)
		if !ok {
			return zero, domain.ErrNotAttached
		}
		return kv, nil
	}
}

// watchLogLevel re-reads path on change and applies log.level.
func watchLogLevel(path string, log logger.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(changed string) {
		fresh := config.Default()
		if err := confloader.NewLoader(confloader.WithConfigFile(changed)).Load(fresh); err != nil {
			log.Warn("config reload failed", "path", changed, "error", err)
			return
		}
		prev := logger.GetLevel()
		if err := logger.SetLevel(fresh.Log.Level); err != nil {
			log.Warn("config reload ignored", "path", changed, "error", err)
			return
		}
		if now := logger.GetLevel(); now != prev {
			log.Info("log level changed", "from", prev, "level", now)
		}
	})
	w.StartAsync()
	return w, nil
}
