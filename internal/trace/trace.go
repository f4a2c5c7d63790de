// Package trace records per-resolver timings and reports them in the
// Apollo tracing format under the "tracing" response extension.
package trace

import (
	"context"
	"net/http"
	"sync"
	"time"

	eventbus "github.com/hanpama/gqlplug/internal/eventbus"
	events "github.com/hanpama/gqlplug/internal/events"
	executor "github.com/hanpama/gqlplug/internal/executor"
	plugin "github.com/hanpama/gqlplug/internal/plugin"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

// Resolver is the timing of one resolved field. Offsets and durations are
// nanoseconds.
type Resolver struct {
	Path        []any  `json:"path"`
	ParentType  string `json:"parentType"`
	FieldName   string `json:"fieldName"`
	ReturnType  string `json:"returnType"`
	StartOffset int64  `json:"startOffset"`
	Duration    int64  `json:"duration"`
}

type Execution struct {
	Resolvers []Resolver `json:"resolvers"`
}

// Tracing is the Apollo tracing extension, version 1.
type Tracing struct {
	Version   int       `json:"version"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	Duration  int64     `json:"duration"`
	Execution Execution `json:"execution"`
}

// Recorder collects the resolver timings of one operation.
type Recorder struct {
	start     time.Time
	mu        sync.Mutex
	resolvers []Resolver
}

func NewRecorder(start time.Time) *Recorder {
	return &Recorder{start: start}
}

func (r *Recorder) add(res Resolver) {
	r.mu.Lock()
	r.resolvers = append(r.resolvers, res)
	r.mu.Unlock()
}

// Resolvers returns a snapshot of the recorded timings.
func (r *Recorder) Resolvers() []Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Resolver(nil), r.resolvers...)
}

// Finish renders the extension for an operation ending at end.
func (r *Recorder) Finish(end time.Time) Tracing {
	resolvers := r.Resolvers()
	if resolvers == nil {
		resolvers = []Resolver{}
	}
	return Tracing{
		Version:   1,
		StartTime: r.start.UTC().Format(time.RFC3339Nano),
		EndTime:   end.UTC().Format(time.RFC3339Nano),
		Duration:  end.Sub(r.start).Nanoseconds(),
		Execution: Execution{Resolvers: resolvers},
	}
}

type Plugin struct {
	now func() time.Time
}

func New() *Plugin { return &Plugin{now: time.Now} }

func (p *Plugin) Name() string { return "trace" }

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{
		Transforms: []schema.Transform{p.transform},
		Wrapper:    p.wrap,
		Middleware: p.middleware,
	}
}

func (p *Plugin) transform(s *schema.Schema) (*schema.Schema, error) {
	return schema.MapFields(s, func(t *schema.Type, f *schema.Field) (*schema.Field, error) {
		if t.Kind != schema.TypeKindObject {
			return f, nil
		}
		next := schema.FieldResolver(f)
		returnType := f.Type.String()
		f.Resolve = func(ctx context.Context, rp schema.ResolveParams) (any, error) {
			rec := RecorderFromContext(ctx)
			start := p.now()
			v, err := next(ctx, rp)
			d := p.now().Sub(start)
			if rec != nil {
				rec.add(Resolver{
					Path:        pathValues(rp.Info.Path),
					ParentType:  rp.Info.ParentType.Name,
					FieldName:   rp.Info.FieldName,
					ReturnType:  returnType,
					StartOffset: start.Sub(rec.start).Nanoseconds(),
					Duration:    d.Nanoseconds(),
				})
			}
			eventbus.Publish(ctx, events.FieldResolved{
				Path:       rp.Info.Path.String(),
				ParentType: rp.Info.ParentType.Name,
				FieldName:  rp.Info.FieldName,
				ReturnType: returnType,
				Start:      start,
				Duration:   d,
				Err:        err,
			})
			return v, err
		}
		return f, nil
	})
}

func pathValues(p schema.Path) []any {
	out := make([]any, len(p))
	for i, e := range p {
		out[i] = e
	}
	return out
}

func (p *Plugin) wrap(next plugin.Executable) plugin.Executable {
	return func(ctx context.Context, req *plugin.Request) (*executor.ExecutionResult, error) {
		start, ok := RequestStart(ctx)
		if !ok {
			start = p.now()
		}
		rec := NewRecorder(start)
		res, err := next(WithRecorder(ctx, rec), req)
		if res != nil {
			res.SetExtension("tracing", rec.Finish(p.now()))
		}
		return res, err
	}
}

func (p *Plugin) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), startKey{}, p.now())))
	})
}

type (
	startKey    struct{}
	recorderKey struct{}
)

// RequestStart returns when the HTTP request carrying the operation arrived.
func RequestStart(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startKey{}).(time.Time)
	return t, ok
}

func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFromContext returns the operation's recorder, or nil.
func RecorderFromContext(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}
