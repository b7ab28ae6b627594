// Package app wires the server process together with fx.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/mnehpets/onerpc/auth"
	"github.com/mnehpets/onerpc/internal/config"
	"github.com/mnehpets/onerpc/internal/logging"
	"github.com/mnehpets/onerpc/internal/model"
	"github.com/mnehpets/onerpc/internal/rpcs"
	"github.com/mnehpets/onerpc/middleware"
	"github.com/mnehpets/onerpc/rpc"
)

// Module runs the server with the configuration loaded from cfgPath (empty
// for the default search paths).
func Module(cfgPath string) fx.Option {
	return fx.Options(
		fx.Provide(func() (*config.Config, error) { return config.Load(cfgPath) }),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		Components,
		fx.Invoke(registerServer),
	)
}

// Components provides everything but the configuration and the listener:
// the logger, the model manager, metrics, the RPC router, the auth
// processor and the HTTP handler.
var Components = fx.Options(
	fx.Provide(
		newLogger,
		newModelManager,
		newRegistry,
		newMetrics,
		newRouter,
		newAuthProcessor,
		newHandler,
	),
)

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() { _ = log.Sync() }))
	return log, nil
}

func newModelManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*model.ModelManager, error) {
	mm, err := model.Open(cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := mm.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error { return mm.Close() },
	})
	return mm, nil
}

func newRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return reg, nil
}

func newMetrics(reg *prometheus.Registry) (*middleware.Metrics, error) {
	return middleware.NewMetrics(reg)
}

func newRouter(m *middleware.Metrics, log *zap.Logger) *rpc.Router {
	return rpcs.Router(m.Middleware(), middleware.DispatchLogger(log.Named("dispatch")))
}

// oidcDiscoveryTimeout bounds provider discovery at startup.
const oidcDiscoveryTimeout = 15 * time.Second

func newAuthProcessor(cfg *config.Config) (*auth.Processor, error) {
	a := cfg.Auth

	var codec *auth.TokenCodec
	if len(a.Keys) > 0 {
		keys, err := auth.DecodeKeys(a.Keys)
		if err != nil {
			return nil, err
		}
		codec, err = auth.NewTokenCodec(a.CookieName, a.KeyID, keys, auth.WithSecure(!a.Insecure))
		if err != nil {
			return nil, err
		}
	}

	var chain auth.VerifierChain
	if a.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(a.JWTSecret), a.JWTIssuer)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	if a.OIDCIssuer != "" {
		ctx, cancel := context.WithTimeout(context.Background(), oidcDiscoveryTimeout)
		v, err := auth.NewOIDCVerifier(ctx, a.OIDCIssuer, a.OIDCClientID, nil)
		cancel()
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}

	var bearer auth.Verifier
	switch len(chain) {
	case 0:
	case 1:
		bearer = chain[0]
	default:
		bearer = chain
	}
	return auth.NewProcessor(codec, bearer, a.SessionTTL), nil
}

func registerServer(lc fx.Lifecycle, sd fx.Shutdowner, cfg *config.Config, h http.Handler, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           h,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          zap.NewStdLog(log.Named("http")),
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("server starting", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("server stopping")
			return srv.Shutdown(ctx)
		},
	})
}
