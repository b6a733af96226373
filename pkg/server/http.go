package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"smallbiznis-tokenomics/pkg/config"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewHttpServer),
	fx.Invoke(Run),
)

type Server struct {
	server *http.Server
	certs  *certReloader
}

type Params struct {
	fx.In
	Config *config.Config
	Router *gin.Engine
}

func NewHttpServer(p Params) (*Server, error) {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      p.Router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}

	if cfg.TLS.Enable {
		certs := &certReloader{certPath: cfg.TLS.CertPath, keyPath: cfg.TLS.KeyPath}
		if err := certs.reload(); err != nil {
			return nil, fmt.Errorf("load TLS cert: %w", err)
		}
		srv.certs = certs
		srv.server.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: certs.get,
		}
	}

	return srv, nil
}

// certReloader serves the latest certificate found on disk.
type certReloader struct {
	mu       sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
}

func (r *certReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certPath, r.keyPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

func (r *certReloader) get(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return nil, errors.New("no TLS cert loaded")
	}
	return r.cert, nil
}

// watch reloads the certificate whenever the cert or key changes until ctx
// is done. A failed reload keeps serving the previous certificate.
func (r *certReloader) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	for _, p := range []string{r.certPath, r.keyPath} {
		if err := watcher.Add(p); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("watch %s: %w", p, err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					zap.L().Error("failed to reload TLS cert", zap.Error(err))
					continue
				}
				zap.L().Info("TLS certificate reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.L().Error("watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func Run(lc fx.Lifecycle, srv *Server) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			serve := srv.server.ListenAndServe
			if srv.certs != nil {
				if err := srv.certs.watch(ctx); err != nil {
					zap.L().Warn("TLS hot reload disabled", zap.Error(err))
				}
				serve = func() error { return srv.server.ListenAndServeTLS("", "") }
			}

			zap.L().Info("Starting HTTP server", zap.String("addr", srv.server.Addr), zap.Bool("tls", srv.certs != nil))
			go func() {
				if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("HTTP server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			zap.L().Info("Shutting down HTTP server gracefully...")
			return srv.server.Shutdown(stopCtx)
		},
	})
}
