package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/volley/internal/config"
	"github.com/wesleyorama2/volley/internal/engine"
	"github.com/wesleyorama2/volley/internal/metrics"
	"github.com/wesleyorama2/volley/internal/output"
	"github.com/wesleyorama2/volley/internal/report"
	"github.com/wesleyorama2/volley/internal/scheduler"
	"github.com/wesleyorama2/volley/internal/transport"
)

var errRunCancelled = errors.New("run cancelled")

// runOptions are the run command's flags.
type runOptions struct {
	configFile string
	url        string
	method     string

	kind       string
	vus        int
	duration   string
	iterations int
	stages     string
	maxRate    float64

	outputPath  string
	jsonOutput  bool
	htmlOutput  bool
	quiet       bool
	noColor     bool
	details     bool
	maxMarkers  int
	metricsAddr string
	verbose     bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [config-file]",
		Short: "Run a load test",
		Long: `Run a load test from a run file, or against a single URL.

Config file mode:
  volley run coffee.yaml
  volley run --config coffee.yaml --vus 50 --duration 5m

Quick mode (single GET scenario):
  volley run --url https://api.example.com/health \
    --kind ramp-up \
    --stages "30s:10,2m:10,30s:0"

The command exits non-zero when a threshold is breached.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.configFile = args[0]
			}
			opts.verbose, _ = cmd.Flags().GetBool("verbose")
			return runLoadTest(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "Run file (YAML or JSON)")
	f.StringVar(&opts.url, "url", "", "URL to test (alternative to a run file)")
	f.StringVar(&opts.method, "method", "GET", "HTTP method for --url")

	f.StringVar(&opts.kind, "kind", "", "Profile kind: constant, ramp-up, spike, soak, endurance")
	f.IntVar(&opts.vus, "vus", 0, "Number of virtual users")
	f.StringVar(&opts.duration, "duration", "", "Run duration (e.g., 5m, 30s)")
	f.IntVar(&opts.iterations, "iterations", 0, "Calls per virtual user")
	f.StringVar(&opts.stages, "stages", "", "Stages in format 'duration:target,duration:target,...' for ramp-up")
	f.Float64Var(&opts.maxRate, "rate", 0, "Cap calls per second across all virtual users (0 = unpaced)")

	f.StringVarP(&opts.outputPath, "output", "o", "", "Output file for the report (.html or .json)")
	f.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	f.BoolVar(&opts.htmlOutput, "html", false, "Generate HTML report")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Disable live progress output, show only the final report")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable coloured output")
	f.BoolVar(&opts.details, "details", false, "Include latency and response-time detail in the text report")
	f.IntVar(&opts.maxMarkers, "max-markers", 0, "Limit the per-invocation markers printed per scenario (0 = all kept)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g., :9090)")

	return cmd
}

// loadRunFile resolves the run file from the flags.
func loadRunFile(opts *runOptions) (*config.File, error) {
	ov := config.Overrides{
		Kind:       opts.kind,
		VUs:        opts.vus,
		Iterations: opts.iterations,
		MaxRate:    opts.maxRate,
	}
	if opts.duration != "" {
		d, err := config.ParseDurationString(opts.duration)
		if err != nil {
			return nil, fmt.Errorf("--duration: %w", err)
		}
		ov.Duration = d
	}
	if opts.stages != "" {
		stages, err := config.ParseStages(opts.stages)
		if err != nil {
			return nil, fmt.Errorf("invalid stages format: %w", err)
		}
		ov.Stages = stages
	}

	switch {
	case opts.configFile != "":
		return config.LoadWithOverrides(opts.configFile, ov)
	case opts.url != "":
		f := fileFromURL(opts.url, opts.method)
		ov.Apply(f)
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, errors.New("either a run file or --url is required")
	}
}

// fileFromURL builds a single-scenario run file. Without overrides it runs
// 10 VUs for 30 seconds.
func fileFromURL(url, method string) *config.File {
	return &config.File{
		Name:        "CLI Test",
		Description: fmt.Sprintf("Test generated from CLI flags for %s", url),
		Profile: config.ProfileConfig{
			Kind:     "constant",
			VUs:      10,
			Duration: config.Duration(30 * time.Second),
		},
		Scenarios: []config.ScenarioConfig{
			{Name: "cli-request", Method: method, Endpoint: url},
		},
	}
}

func runLoadTest(cmd *cobra.Command, opts *runOptions) error {
	stdout := cmd.OutOrStdout()
	log := newLogger(cmd.ErrOrStderr(), opts.verbose)
	defer log.Sync()

	file, err := loadRunFile(opts)
	if err != nil {
		return err
	}
	plan, err := file.Build()
	if err != nil {
		return err
	}

	exec := transport.NewHTTPExecutor(plan.HTTP)
	defer exec.Close()

	eng, err := engine.New(engine.Options{
		Executor:      exec,
		Authenticator: plan.Authenticator(exec),
		Credentials:   plan.Credentials(),
		Logger:        log,
	})
	if err != nil {
		return err
	}
	if err := plan.Register(eng); err != nil {
		return err
	}

	var ln net.Listener
	if opts.metricsAddr != "" {
		if ln, err = net.Listen("tcp", opts.metricsAddr); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := eng.StartRun(ctx, plan.Run)
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		return err
	}

	jsonToStdout := opts.jsonOutput && opts.outputPath == ""
	console := output.NewConsole(output.ConsoleConfig{
		RunName:       plan.Name,
		ProfileKind:   string(plan.Run.Profile.Kind),
		TotalDuration: plan.Run.Profile.TotalDuration(),
		TargetVUs:     plan.Run.Profile.Peak(),
		Writer:        stdout,
		Quiet:         opts.quiet || jsonToStdout,
	})
	console.PrintHeader()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return console.Watch(gctx, h)
	})
	g.Go(func() error {
		select {
		case <-h.Done():
		case <-gctx.Done():
			eng.StopRun(h)
			<-h.Done()
		}
		return nil
	})
	if ln != nil {
		serveMetrics(gctx, g, ln, h, log)
	}
	groupErr := g.Wait()

	res := h.Result()
	if err := writeReports(stdout, res, opts); err != nil {
		return err
	}

	if groupErr != nil {
		return groupErr
	}
	if res.Error != "" {
		return fmt.Errorf("run failed: %s", res.Error)
	}
	if res.State == scheduler.StateCancelled.String() {
		return errRunCancelled
	}
	if !res.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// serveMetrics exposes the run's aggregator on ln until the run finishes.
func serveMetrics(ctx context.Context, g *errgroup.Group, ln net.Listener, h *engine.RunHandle, log *zap.Logger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(h.Aggregator()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-h.Done():
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// writeReports prints the text report and writes any file reports.
func writeReports(stdout io.Writer, res *report.Result, opts *runOptions) error {
	lower := strings.ToLower(opts.outputPath)
	outputIsHTML := opts.htmlOutput || strings.HasSuffix(lower, ".html")
	outputIsJSON := opts.jsonOutput || strings.HasSuffix(lower, ".json")

	if outputIsJSON && opts.outputPath == "" {
		data, err := report.JSON(res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}

	r := report.Renderer{
		Color:      !opts.noColor && output.ColorFor(stdout),
		MaxMarkers: opts.maxMarkers,
		Details:    opts.details || opts.verbose,
	}
	fmt.Fprint(stdout, r.RenderResult(res))

	switch {
	case outputIsJSON:
		return writeJSONReport(stdout, res, opts.outputPath)
	case outputIsHTML:
		path := opts.outputPath
		if path == "" {
			path = generateDefaultHTMLPath(res.Name)
		}
		return writeHTMLReport(stdout, res, path)
	case opts.outputPath != "":
		// no recognised extension: write both
		if err := writeHTMLReport(stdout, res, opts.outputPath+".html"); err != nil {
			return err
		}
		return writeJSONReport(stdout, res, opts.outputPath+".json")
	}
	return nil
}

func writeJSONReport(stdout io.Writer, res *report.Result, path string) error {
	data, err := report.JSON(res)
	if err != nil {
		return err
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing result to file: %w", err)
	}
	fmt.Fprintf(stdout, "Results written to: %s\n", path)
	return nil
}

func writeHTMLReport(stdout io.Writer, res *report.Result, path string) error {
	if !strings.HasSuffix(strings.ToLower(path), ".html") {
		path += ".html"
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := report.WriteHTML(res, path); err != nil {
		return fmt.Errorf("failed to generate HTML report: %w", err)
	}
	fmt.Fprintf(stdout, "Report: %s\n", path)
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// generateDefaultHTMLPath creates a default HTML report path based on the
// run name.
func generateDefaultHTMLPath(runName string) string {
	safeName := strings.ReplaceAll(runName, " ", "-")
	safeName = strings.ReplaceAll(safeName, "/", "-")
	safeName = strings.ToLower(safeName)

	timestamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("volley-report-%s-%s.html", safeName, timestamp)
}
