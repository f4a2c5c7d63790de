// Package server serves a plugin pipeline over HTTP.
package server

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"

	apierr "github.com/hanpama/gqlplug/internal/apierr"
	eventbus "github.com/hanpama/gqlplug/internal/eventbus"
	events "github.com/hanpama/gqlplug/internal/events"
	executor "github.com/hanpama/gqlplug/internal/executor"
	plugin "github.com/hanpama/gqlplug/internal/plugin"
	reqid "github.com/hanpama/gqlplug/internal/reqid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs the pipeline, and formats responses.
type Handler struct {
	pipeline   *plugin.Pipeline
	opt        Options
	playground http.Handler
	handler    http.Handler
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers exposed to plugins and resolvers
	// as gRPC metadata. Header names are case-insensitive. Default is none.
	MetadataHeaders []string

	// Playground serves the GraphQL playground on GET requests accepting HTML.
	Playground bool

	// MaskErrors replaces the message of errors not created through apierr.
	MaskErrors bool

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}
func WithPlayground(enable bool) Option { return func(o *Options) { o.Playground = enable } }
func WithMaskErrors(enable bool) Option { return func(o *Options) { o.MaskErrors = enable } }
func WithLogger(log *zap.Logger) Option { return func(o *Options) { o.Logger = log } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a GraphQL HTTP handler serving p under path. The plugins'
// HTTP middlewares wrap the handler.
func New(p *plugin.Pipeline, path string, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, Playground: true, MaskErrors: true}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	h := &Handler{
		pipeline:   p,
		opt:        op,
		playground: playground.Handler("gqlplug", path),
	}
	h.handler = p.Middleware(http.HandlerFunc(h.serve))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	var rid string
	if id := r.Header.Get(reqid.Header); id != "" {
		ctx, rid = reqid.WithID(ctx, id)
	} else {
		ctx, rid = reqid.NewContext(ctx)
	}
	w.Header().Set(reqid.Header, rid)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		h.writeJSON(w, status, messageResult("method not allowed"))
		return
	}

	if r.Method == http.MethodGet && h.opt.Playground && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		h.playground.ServeHTTP(w, r)
		return
	}

	ctx = withHeaderMetadata(ctx, r.Header, h.opt.MetadataHeaders, rid)

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != "" {
		status = http.StatusBadRequest
		if berr == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		h.writeJSON(w, status, messageResult(berr))
		return
	}

	if batch != nil {
		out := make([]*executor.ExecutionResult, len(batch))
		for i := range batch {
			out[i] = h.executeOne(ctx, batch[i])
		}
		h.writeJSON(w, status, out)
		return
	}
	h.writeJSON(w, status, h.executeOne(ctx, req))
}

// withHeaderMetadata exposes the allowed request headers as incoming
// metadata, and forwards them with the request ID as outgoing metadata.
func withHeaderMetadata(ctx context.Context, header http.Header, allowedHeaders []string, rid string) context.Context {
	md := metadata.MD{}
	if len(allowedHeaders) > 0 {
		allowed := make(map[string]struct{}, len(allowedHeaders))
		for _, hdr := range allowedHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	ctx = metadata.NewIncomingContext(ctx, md.Copy())
	md["graphql-request-id"] = []string{rid}
	return metadata.NewOutgoingContext(ctx, md)
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) *executor.ExecutionResult {
	doc, invalid := h.pipeline.Parse(req.Query)
	if invalid != nil {
		return invalid
	}
	preq := &plugin.Request{
		Query:         req.Query,
		Document:      doc,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	}
	opType := ""
	if op := preq.Operation(); op != nil {
		opType = string(op.Operation)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	result, err := h.pipeline.Execute(ctx, preq)
	if err != nil {
		rid, _ := reqid.FromContext(ctx)
		h.opt.Logger.Error("graphql execution failed",
			zap.String("rid", rid),
			zap.String("operation", req.OperationName),
			zap.Error(err))
		result = executor.ErrorResult(err)
	}
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return h.mask(result)
}

// mask returns res with internal error messages hidden. res itself may be
// shared with a cache and is not modified.
func (h *Handler) mask(res *executor.ExecutionResult) *executor.ExecutionResult {
	if !h.opt.MaskErrors || !res.HasErrors() {
		return res
	}
	out := *res
	out.Errors = make([]executor.GraphQLError, len(res.Errors))
	for i, e := range res.Errors {
		if e.Err != nil && !apierr.IsExposed(e.Err) {
			e = executor.GraphQLError{Message: apierr.MaskedMessage, Path: e.Path, Err: e.Err}
		}
		out.Errors[i] = e
	}
	return &out
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, string) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, "missing 'query'"
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, "invalid 'variables' JSON"
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, ""
	}

	if !acceptedContentType(r.Header.Get("Content-Type")) {
		return GraphQLRequest{}, nil, "unsupported Content-Type"
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, "failed to read body"
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, errBodyTooLargeMessage
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, "invalid JSON"
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, "empty batch"
		}
		return GraphQLRequest{}, arr, ""
	}
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, "invalid JSON"
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, "missing 'query'"
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, ""
}

func acceptedContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || mt == "application/graphql+json"
}

// ------------------ Response formatting ------------------

func messageResult(msg string) *executor.ExecutionResult {
	return &executor.ExecutionResult{Errors: []executor.GraphQLError{{Message: msg}}}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if h.opt.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		h.opt.Logger.Warn("write response", zap.Error(err))
	}
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
