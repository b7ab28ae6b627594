package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mnehpets/onerpc/endpoint"
	"github.com/mnehpets/onerpc/rpc"
)

// Info describes the call being served. It is on the call's context and in
// its Resources bag, so handlers can ask for it like any other resource.
type Info struct {
	ID     json.RawMessage
	Method string
}

type infoKey struct{}

// InfoFromContext returns the Info of the call served on ctx.
func InfoFromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(infoKey{}).(Info)
	return info, ok
}

// ResourcesFunc builds the Resources bag for one HTTP request. It runs once
// per request, before any call of a batch.
type ResourcesFunc func(r *http.Request) (rpc.Resources, error)

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithResources sets the function that builds each request's Resources.
func WithResources(f ResourcesFunc) Option {
	return func(e *Endpoint) { e.resources = f }
}

// WithLogger sets the logger for per-call lines and recovered panics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Endpoint) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCallTimeout bounds the duration of each call. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Endpoint) { e.timeout = d }
}

// Endpoint serves JSON-RPC 2.0 over HTTP on top of an rpc.Router.
// Use endpoint.Handler(e.Endpoint, processors...) to get an http.Handler.
type Endpoint struct {
	router    *rpc.Router
	resources ResourcesFunc
	logger    *zap.Logger
	timeout   time.Duration
}

// NewEndpoint returns an Endpoint dispatching to router.
func NewEndpoint(router *rpc.Router, opts ...Option) *Endpoint {
	e := &Endpoint{
		router: router,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Router returns the router the endpoint dispatches to.
func (e *Endpoint) Router() *rpc.Router {
	return e.router
}

// rpcParams holds the raw body. It is parsed inside the endpoint because
// JSON-RPC reports malformed JSON as a response, not as an HTTP error.
type rpcParams struct {
	Body []byte `body:""`
}

// Endpoint is the endpoint.EndpointFunc serving JSON-RPC requests.
func (e *Endpoint) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
	}

	res := rpc.Resources{}
	if e.resources != nil {
		var err error
		if res, err = e.resources(r); err != nil {
			return nil, endpoint.Error(http.StatusInternalServerError, "", err)
		}
	}
	return e.handleBody(r.Context(), res, params.Body), nil
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

func (e *Endpoint) handleBody(ctx context.Context, res rpc.Resources, body []byte) endpoint.Renderer {
	body = bytes.TrimSpace(body)

	var reqs []json.RawMessage
	single := true
	if len(body) > 0 && body[0] == '[' {
		single = false
		if err := json.Unmarshal(body, &reqs); err != nil {
			return &renderer{err: NewError(CodeParseError, "parse error")}
		}
		if len(reqs) == 0 {
			return &renderer{err: NewError(CodeInvalidRequest, "invalid request")}
		}
	} else {
		reqs = []json.RawMessage{body}
	}

	responses := make([]response, 0, len(reqs))
	for _, raw := range reqs {
		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			// Well-formed JSON of the wrong shape is an invalid request.
			rpcErr := NewError(CodeParseError, "parse error")
			if json.Valid(raw) {
				rpcErr = NewError(CodeInvalidRequest, "invalid request")
			}
			responses = append(responses, response{JSONRPC: "2.0", Error: rpcErr})
			continue
		}
		// The version member may be omitted; any other value is rejected.
		if req.JSONRPC != "" && req.JSONRPC != "2.0" {
			responses = append(responses, response{JSONRPC: "2.0", Error: NewError(CodeInvalidRequest, "invalid request"), ID: req.ID})
			continue
		}
		if req.Method == "" {
			responses = append(responses, response{JSONRPC: "2.0", Error: NewError(CodeInvalidRequest, "method required"), ID: req.ID})
			continue
		}

		result, err := e.call(ctx, res, req)
		if req.ID == nil {
			// Notification: no response.
			continue
		}
		resp := response{JSONRPC: "2.0", ID: req.ID}
		if err != nil {
			resp.Error = ErrorFrom(err)
		} else {
			resp.Result = result
		}
		responses = append(responses, resp)
	}

	if len(responses) == 0 {
		return &renderer{noContent: true}
	}
	return &renderer{responses: responses, single: single}
}

// call runs one request through the router with panic recovery, the call
// timeout and per-call logging.
func (e *Endpoint) call(ctx context.Context, res rpc.Resources, req request) (result json.RawMessage, err error) {
	info := Info{ID: req.ID, Method: req.Method}
	ctx = context.WithValue(ctx, infoKey{}, info)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("jsonrpc: handler panic",
				zap.String("method", req.Method),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			result, err = nil, NewError(CodeInternalError, "internal error")
		}
		e.logCall(ctx, info, time.Since(start), err)
	}()

	return e.router.Call(ctx, req.Method, res.With(info), req.Params)
}

func (e *Endpoint) logCall(ctx context.Context, info Info, d time.Duration, err error) {
	fields := []zap.Field{
		zap.String("method", info.Method),
		zap.Duration("duration", d),
	}
	if id := middleware.GetReqID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if info.ID != nil {
		fields = append(fields, zap.ByteString("rpc_id", info.ID))
	}
	if err == nil {
		e.logger.Info("jsonrpc call", fields...)
		return
	}
	kind := "handler"
	if k, ok := rpc.KindOf(err); ok {
		kind = k.String()
	}
	fields = append(fields, zap.String("error_kind", kind), zap.Error(err))
	e.logger.Warn("jsonrpc call failed", fields...)
}

// renderer writes JSON-RPC responses.
type renderer struct {
	responses []response
	single    bool
	noContent bool
	err       *Error
}

func (r *renderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if r.noContent {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	var v any = r.responses
	switch {
	case r.err != nil:
		v = response{JSONRPC: "2.0", Error: r.err}
	case r.single:
		v = r.responses[0]
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("jsonrpc: write response: %w", err)
	}
	return nil
}
