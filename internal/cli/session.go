package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/config"
	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/engine"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/schema"
	"github.com/roach88/cognos/internal/store"
	"github.com/roach88/cognos/internal/trace"
)

// RuntimeOptions are the flags shared by commands that execute programs.
// Set flags override the configuration file.
type RuntimeOptions struct {
	Config      string
	Script      string
	Types       string
	Database    string
	RedisAddr   string
	TraceLevel  string
	TraceFile   string
	MetricsAddr string
	Model       string
	NoShell     bool
}

func (o *RuntimeOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.Config, "config", "", "path to cognos.hcl (default ./cognos.hcl when present)")
	f.StringVar(&o.Script, "script", "", "replay script (YAML or JSON) answering every effect")
	f.StringVar(&o.Types, "types", "", "CUE file with type definitions")
	f.StringVar(&o.Database, "db", "", "record the run in this SQLite database")
	f.StringVar(&o.RedisAddr, "redis-addr", "", "push trace events to this Redis server")
	f.StringVar(&o.TraceLevel, "trace-level", "", "trace detail (metrics|full)")
	f.StringVar(&o.TraceFile, "trace-file", "", "write trace events as JSON lines to this file")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.StringVar(&o.Model, "model", "", "default model for think()")
	f.BoolVar(&o.NoShell, "no-shell", false, "deny shell commands")
}

// apply layers the flags over cfg.
func (o *RuntimeOptions) apply(cfg *config.Config) error {
	if o.TraceLevel != "" {
		level, err := trace.ParseLevel(o.TraceLevel)
		if err != nil {
			return err
		}
		cfg.TraceLevel = level
	}
	if o.TraceFile != "" {
		cfg.TraceFile = o.TraceFile
	}
	if o.Database != "" {
		cfg.DB = o.Database
	}
	if o.MetricsAddr != "" {
		cfg.Metrics = o.MetricsAddr
	}
	if o.Model != "" {
		cfg.Provider.Model = o.Model
	}
	if o.RedisAddr != "" {
		if cfg.Redis == nil {
			cfg.Redis = &config.Redis{}
		}
		cfg.Redis.Addr = o.RedisAddr
	}
	if o.NoShell {
		cfg.AllowShell = false
	}
	return nil
}

// session holds what program execution needs: the resolved configuration,
// a tracer with its sinks, the effect boundary and the optional run store.
// One session is one run id.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	tracer   *trace.Tracer
	sinks    trace.Multi
	store    *store.Store
	metrics  *http.Server
	boundary effect.Boundary
	scripted *effect.Scripted // nil for a live session
	types    schema.Types
}

// openSession resolves configuration and opens every configured sink.
// Program output goes to stdout; live line reads come from stdin.
func openSession(opts *RuntimeOptions, logger *slog.Logger, stdin io.Reader, stdout io.Writer) (s *session, err error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := opts.apply(&cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flags", err)
	}

	s = &session{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.types, err = loadTypes(opts.Types); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to compile types", err)
	}
	if err = s.openSinks(); err != nil {
		return nil, err
	}
	s.tracer = trace.New(s.sinks, trace.WithLevel(cfg.TraceLevel), trace.WithLogger(logger))

	if opts.Script != "" {
		script, err := effect.LoadScript(opts.Script)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load script", err)
		}
		sopts := []effect.Option{effect.WithTracer(s.tracer), effect.WithStdout(stdout)}
		if !cfg.AllowShell {
			sopts = append(sopts, effect.WithShell(false))
		}
		s.scripted = effect.NewScripted(script, sopts...)
		s.boundary = s.scripted
		return s, nil
	}

	s.boundary = effect.NewLive(
		effect.WithTracer(s.tracer),
		effect.WithStdin(stdin),
		effect.WithStdout(stdout),
		effect.WithShell(cfg.AllowShell),
		effect.WithGenerator(&effect.OpenAI{
			URL:    cfg.Provider.URL,
			APIKey: cfg.Provider.APIKey,
			Model:  cfg.Provider.Model,
			Client: &http.Client{Timeout: cfg.Provider.Timeout},
		}),
	)
	return s, nil
}

func (s *session) openSinks() error {
	cfg := s.cfg
	if cfg.TraceFile != "" {
		jsonl, err := trace.OpenJSONL(cfg.TraceFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace file", err)
		}
		s.sinks = append(s.sinks, jsonl)
	}
	if cfg.DB != "" {
		st, err := store.Open(cfg.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		s.store = st
		s.sinks = append(s.sinks, st.Sink())
	}
	if r := cfg.Redis; r != nil {
		var ropts []trace.RedisOption
		if r.Prefix != "" {
			ropts = append(ropts, trace.WithPrefix(r.Prefix))
		}
		if r.MaxLen > 0 {
			ropts = append(ropts, trace.WithMaxLen(r.MaxLen))
		}
		s.sinks = append(s.sinks, trace.NewRedisSink(r.Addr, r.Password, r.DB, ropts...))
	}
	if cfg.Metrics != "" {
		metrics := trace.NewMetricsSink(nil)
		ln, err := net.Listen("tcp", cfg.Metrics)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
		}
		r := chi.NewRouter()
		r.Handle("/metrics", metrics.Handler())
		s.metrics = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := s.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Warn("metrics server stopped", "error", err)
			}
		}()
		s.logger.Debug("serving metrics", "addr", ln.Addr().String())
		s.sinks = append(s.sinks, metrics)
	}
	return nil
}

// RunID returns the correlation id of the session's trace.
func (s *session) RunID() string { return s.tracer.RunID() }

// interpreter creates an interpreter over the session's boundary.
func (s *session) interpreter() *engine.Interpreter {
	opts := []engine.Option{
		engine.WithTracer(s.tracer),
		engine.WithLogger(s.logger),
		engine.WithLoopLimit(s.cfg.LoopLimit),
		engine.WithMaxDepth(s.cfg.MaxDepth),
		engine.WithMaxTurns(s.cfg.MaxTurns),
	}
	if len(s.types) > 0 {
		opts = append(opts, engine.WithTypes(s.types))
	}
	return engine.New(s.boundary, opts...)
}

// execute runs prog and, when a store is open, records the run around it.
// Store failures are logged; they never change the program's outcome.
func (s *session) execute(ctx context.Context, prog *Program, entry string, args ir.Map) (ir.Value, error) {
	if s.store != nil {
		err := s.store.BeginRun(ctx, store.Run{
			ID:          s.RunID(),
			Program:     prog.Path,
			Entry:       entry,
			ProgramHash: prog.Hash,
		})
		if err != nil {
			s.logger.Warn("failed to record run start", "run", s.RunID(), "error", err)
		}
	}

	result, runErr := s.interpreter().RunProgram(ctx, prog.AST, entry, args)

	if s.store != nil {
		if err := s.store.FinishRun(context.WithoutCancel(ctx), s.RunID(), s.outcome(result, runErr)); err != nil {
			s.logger.Warn("failed to record run outcome", "run", s.RunID(), "error", err)
		}
	}
	return result, runErr
}

func (s *session) outcome(result ir.Value, err error) store.Outcome {
	out := store.Outcome{Status: store.StatusSucceeded}
	if err != nil {
		out.Status = store.StatusFailed
		out.ErrorKind = string(engine.Classify(err))
		out.ErrorMessage = err.Error()
		if engine.Classify(err) == engine.KindCancelled {
			out.Status = store.StatusCancelled
		}
		return out
	}
	out.Result = result
	if s.scripted != nil {
		if digest, derr := ir.OutputDigest(s.scripted.Output(), result); derr == nil {
			out.OutputDigest = digest
		}
	}
	return out
}

// Close stops the metrics server and closes every sink and the store.
func (s *session) Close() error {
	var errs []error
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.metrics.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, s.sinks.Close())
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}
