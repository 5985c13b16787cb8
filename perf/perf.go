package perf

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/config"
	"github.com/wesleyorama2/volley/internal/engine"
	"github.com/wesleyorama2/volley/internal/report"
	"github.com/wesleyorama2/volley/internal/transport"
)

type (
	// Config is a run file.
	Config = config.File

	// Result is everything known about a finished run.
	Result = report.Result

	// Handle is an active run.
	Handle = engine.RunHandle

	// Executor performs one call. The default sends HTTP requests.
	Executor = transport.Executor
)

// ErrConfig marks every error that prevents a run from starting.
var ErrConfig = engine.ErrConfig

// LoadConfig reads and validates a YAML or JSON run file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithExecutor replaces the HTTP executor built from the run file's
// settings.
func WithExecutor(exec Executor) Option {
	return func(r *Runner) { r.exec = exec }
}

// Runner runs one Config. A Runner may be reused; runs never overlap.
type Runner struct {
	config *Config
	log    *zap.Logger
	exec   Executor
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *Config, opts ...Option) *Runner {
	r := &Runner{config: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start validates the config and starts the run. The engine is released
// once the run finishes.
func (r *Runner) Start(ctx context.Context) (*Handle, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	plan, err := r.config.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	exec := r.exec
	var closer func()
	if exec == nil {
		h := transport.NewHTTPExecutor(plan.HTTP)
		exec, closer = h, h.Close
	}

	eng, err := engine.New(engine.Options{
		Executor:      exec,
		Authenticator: plan.Authenticator(exec),
		Credentials:   plan.Credentials(),
		Logger:        r.log,
	})
	if err == nil {
		err = plan.Register(eng)
	}
	var h *Handle
	if err == nil {
		h, err = eng.StartRun(ctx, plan.Run)
	}
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}

	if closer != nil {
		go func() {
			<-h.Done()
			closer()
		}()
	}
	return h, nil
}

// Run starts the run and waits for it. Cancelling ctx stops the run; the
// partial result is still returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	h, err := r.Start(ctx)
	if err != nil {
		return nil, err
	}
	<-h.Done()
	return h.Result(), nil
}

// RunTest runs cfg with the default options.
func RunTest(ctx context.Context, cfg *Config) (*Result, error) {
	return NewRunner(cfg).Run(ctx)
}

// Report renders res as the grouped text report, without colour.
func Report(res *Result) string {
	return report.Renderer{Details: true}.RenderResult(res)
}

// HTML writes the standalone HTML report for res to path.
func HTML(res *Result, path string) error {
	return report.WriteHTML(res, path)
}
