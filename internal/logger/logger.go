// Package logger reports execution errors through zap.
package logger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	executor "github.com/hanpama/gqlplug/internal/executor"
	plugin "github.com/hanpama/gqlplug/internal/plugin"
	reqid "github.com/hanpama/gqlplug/internal/reqid"
)

type Plugin struct {
	log *zap.Logger
}

// New returns a plugin logging to log; nil uses zap's global logger.
func New(log *zap.Logger) *Plugin {
	if log == nil {
		log = zap.L()
	}
	return &Plugin{log: log.Named("graphql")}
}

func (p *Plugin) Name() string { return "logger" }

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{Wrapper: p.wrap}
}

// Fingerprint identifies a query text in logs without logging it.
func Fingerprint(query string) string {
	return strconv.FormatUint(xxhash.Sum64String(query), 16)
}

func (p *Plugin) wrap(next plugin.Executable) plugin.Executable {
	return func(ctx context.Context, req *plugin.Request) (*executor.ExecutionResult, error) {
		res, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("operation", req.OperationName),
			zap.String("query", Fingerprint(req.Query)),
		}
		if id, ok := reqid.FromContext(ctx); ok {
			fields = append(fields, zap.String("rid", id))
		}
		if err != nil {
			p.log.Error("execution failed", append(fields, zap.Error(err))...)
			return res, err
		}
		if res == nil {
			return nil, nil
		}
		for _, e := range res.Errors {
			fs := fields
			if e.Err != nil {
				fs = append(fs[:len(fs):len(fs)], zap.Error(e.Err))
			}
			p.log.Error(fmt.Sprintf("Error at %q: %s", e.Path.String(), e.Message), fs...)
		}
		return res, nil
	}
}
