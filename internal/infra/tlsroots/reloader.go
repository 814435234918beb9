package tlsroots

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// DefaultDebounce coalesces the burst of events an editor or cert
// manager produces when rewriting a key pair.
const DefaultDebounce = 250 * time.Millisecond

// Reloader serves a certificate key pair and reloads it when the files
// change. A failed reload keeps the previous pair.
type Reloader struct {
	certFile string
	keyFile  string
	debounce time.Duration
	logger   logger.Logger

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ReloaderOption {
	return func(r *Reloader) {
		r.logger = l
	}
}

// WithDebounce sets how long to wait after the last change before
// reloading.
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		r.debounce = d
	}
}

// NewReloader loads the key pair once. Call Start to follow changes.
func NewReloader(certFile, keyFile string, opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		debounce: DefaultDebounce,
		logger:   logger.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "tls")

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the key pair from disk.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// Start watches the directories holding the key pair. Directories rather
// than files are watched so atomic renames are seen.
func (r *Reloader) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	r.watcher = w

	r.wg.Add(1)
	go r.loop()
	r.logger.Info("certificate watcher started", "cert_file", r.certFile, "key_file", r.keyFile)
	return nil
}

func (r *Reloader) loop() {
	defer r.wg.Done()

	names := map[string]struct{}{
		filepath.Clean(r.certFile): {},
		filepath.Clean(r.keyFile):  {},
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if _, ours := names[filepath.Clean(ev.Name)]; !ours {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := r.Reload(); err != nil {
				r.logger.Error("certificate reload failed", "cert_file", r.certFile, "error", err)
				continue
			}
			r.logger.Info("certificate reloaded", "cert_file", r.certFile)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("certificate watcher error", "error", err)

		case <-r.done:
			return
		}
	}
}

// Stop ends watching. It is safe to call more than once, and without
// Start.
func (r *Reloader) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		if r.watcher != nil {
			err = r.watcher.Close()
		}
	})
	return err
}
