package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mnehpets/onerpc/auth"
	"github.com/mnehpets/onerpc/endpoint"
	"github.com/mnehpets/onerpc/internal/config"
	"github.com/mnehpets/onerpc/internal/model"
	"github.com/mnehpets/onerpc/jsonrpc"
	"github.com/mnehpets/onerpc/middleware"
	"github.com/mnehpets/onerpc/rpc"
)

type handlerDeps struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Router   *rpc.Router
	Auth     *auth.Processor
	Models   *model.ModelManager
	Registry *prometheus.Registry
}

// newHandler serves POST /rpc, GET /metrics and GET /healthz.
func newHandler(d handlerDeps) http.Handler {
	srv := d.Config.Server

	rpcEndpoint := jsonrpc.NewEndpoint(d.Router,
		jsonrpc.WithResources(auth.Resources(d.Models)),
		jsonrpc.WithLogger(d.Logger.Named("jsonrpc")),
		jsonrpc.WithCallTimeout(srv.CallTimeout),
	)

	headerOpts := []middleware.HeadersOption{middleware.WithCORS(srv.CORSOrigins, true)}
	if !srv.HSTS {
		headerOpts = append(headerOpts, middleware.WithoutHSTS())
	}
	rpcHandler := endpoint.Handler(rpcEndpoint.Endpoint,
		middleware.NewHeadersProcessor(headerOpts...),
		middleware.NewRateLimiter(d.Config.RateLimit.RPS, d.Config.RateLimit.Burst),
		d.Auth,
	)

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Method(http.MethodPost, "/rpc", rpcHandler)
	r.Method(http.MethodOptions, "/rpc", rpcHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{Registry: d.Registry}))
	r.Method(http.MethodGet, "/healthz", endpoint.HandleFunc(health{models: d.Models}.Endpoint))
	return r
}

type health struct {
	models *model.ModelManager
}

func (h health) Endpoint(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	if err := h.models.Ping(r.Context()); err != nil {
		return nil, endpoint.Error(http.StatusServiceUnavailable, "database unavailable", err)
	}
	return &endpoint.JSONRenderer{Value: map[string]string{"status": "ok"}}, nil
}
