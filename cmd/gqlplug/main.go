package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "github.com/hanpama/gqlplug/internal/config"
	eventbus "github.com/hanpama/gqlplug/internal/eventbus"
	metrics "github.com/hanpama/gqlplug/internal/metrics"
	otel "github.com/hanpama/gqlplug/internal/otel"
	schema "github.com/hanpama/gqlplug/internal/schema"
	server "github.com/hanpama/gqlplug/internal/server"
)

const rootUsage = `gqlplug: GraphQL server with cache, auth, l10n and tracing plugins

USAGE:
  gqlplug <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL server
  print-schema     Print the composed schema including plugin directives
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>                  YAML configuration file
  -demo                           Serve the built-in demo schema
  -graphql.schema <file>          SDL file to serve. Repeatable
  -server.addr <addr>             HTTP listen address (default: :8080)
  -server.pretty                  Pretty-print JSON responses
  -cache.backend <name>           memory, sturdyc or redis
  -log.level <level>              debug, info, warn or error
  -otel.endpoint <addr>           OTLP collector endpoint
`

const printSchemaUsage = `print-schema FLAGS:
  -config <file>                  YAML configuration file
  -demo                           Include the built-in demo schema
  -graphql.schema <file>          SDL file. Repeatable
  -out <file>                     Write SDL to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}
	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "print-schema":
		return cmdPrintSchema(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "print-schema":
		fmt.Print(printSchemaUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// commonFlags are shared by serve and print-schema.
type commonFlags struct {
	configPath string
	demo       bool
	schemas    stringListFlag
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&c.demo, "demo", false, "Use the built-in demo schema")
	fs.Var(&c.schemas, "graphql.schema", "SDL file")
}

func (c *commonFlags) load() (config.Config, project, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, project{}, err
	}
	proj, err := loadProject(append(cfg.GraphQL.Schema, c.schemas...), c.demo)
	return cfg, proj, err
}

func cmdServe(args []string) error {
	var common commonFlags
	var addr, backend, logLevel, otelEndpoint string
	var pretty bool
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	fs.StringVar(&addr, "server.addr", "", "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", false, "Pretty-print JSON responses")
	fs.StringVar(&backend, "cache.backend", "", "Cache backend")
	fs.StringVar(&logLevel, "log.level", "", "Log level")
	fs.StringVar(&otelEndpoint, "otel.endpoint", "", "OTLP collector endpoint")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	cfg, proj, err := common.load()
	if err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if pretty {
		cfg.Server.Pretty = true
	}
	if backend != "" {
		cfg.Cache.Backend = backend
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if otelEndpoint != "" {
		cfg.OTel.Endpoint = otelEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := cfg.Log.Logger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New()
	eventbus.Use(bus)
	shutdownTelemetry, err := otel.Setup(ctx, cfg.OTel, bus)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	pipeline, release, err := buildPipeline(cfg, proj, log)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	sopts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithPlayground(cfg.Server.Playground),
		server.WithMaskErrors(cfg.Server.MaskErrors),
		server.WithLogger(log),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, server.New(pipeline, cfg.Server.Path, sopts...))
	if cfg.Metrics.Enabled {
		m := metrics.New()
		defer m.Subscribe(bus)()
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("graphql server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("path", cfg.Server.Path),
			zap.Int("plugins", len(pipeline.Plugins)))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func cmdPrintSchema(args []string) error {
	var common commonFlags
	outFile := ""
	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, printSchemaUsage)
		return err
	}
	cfg, proj, err := common.load()
	if err != nil {
		fmt.Fprint(os.Stderr, printSchemaUsage)
		return err
	}
	// the store is never used here
	cfg.Cache.Backend = config.BackendMemory
	pipeline, release, err := buildPipeline(cfg, proj, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	sdl := schema.Render(pipeline.Schema)
	if outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}
