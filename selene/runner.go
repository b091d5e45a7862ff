// Package selene runs the selene linter over in-memory Lua source and
// translates its Json display style into LSP diagnostics.
package selene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/go-lsp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Delivery selects how source text reaches selene.
type Delivery string

const (
	// DeliveryStdin pipes the text to `selene -`.
	DeliveryStdin Delivery = "stdin"
	// DeliveryFile writes the text to a temporary file and passes its path.
	DeliveryFile Delivery = "file"
)

func ParseDelivery(s string) (Delivery, error) {
	switch d := Delivery(strings.ToLower(s)); d {
	case DeliveryStdin, DeliveryFile:
		return d, nil
	case "":
		return DeliveryStdin, nil
	default:
		return "", fmt.Errorf("unknown delivery %q (want stdin or file)", s)
	}
}

const (
	DefaultPath          = "selene"
	DefaultTimeout       = 10 * time.Second
	DefaultMaxConcurrent = 4
	DefaultDisplayStyle  = "Json"

	// waitDelay bounds how long output pipes are kept open after selene
	// has been killed.
	waitDelay = time.Second
)

type Config struct {
	// Path is the resolved selene executable, or a name looked up in PATH.
	Path          string
	Delivery      Delivery
	Timeout       time.Duration
	MaxConcurrent int
	// TempDir holds temporary files for DeliveryFile. Empty means os.TempDir.
	TempDir      string
	DisplayStyle string

	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Runner invokes selene, one process per lint.
type Runner struct {
	cfg    Config
	logger *zap.Logger
	sem    *semaphore.Weighted
	ins    *instruments
}

func New(cfg Config, logger *zap.Logger) *Runner {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Delivery == "" {
		cfg.Delivery = DeliveryStdin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.DisplayStyle == "" {
		cfg.DisplayStyle = DefaultDisplayStyle
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger = logger.Named("selene").With(zap.String("path", cfg.Path))

	ins, err := newInstruments(cfg.TracerProvider, cfg.MeterProvider)
	if err != nil {
		logger.Warn("could not create lint metrics", zap.Error(err))
		ins = noopInstruments(cfg.TracerProvider)
	}

	return &Runner{
		cfg:    cfg,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		ins:    ins,
	}
}

func (r *Runner) Config() Config {
	return r.cfg
}

// Version runs `selene --version` and returns its trimmed output.
func (r *Runner) Version(ctx context.Context) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, r.cfg.Path, "--version")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if err := r.classify(ctx, cmdCtx, "version", err, stdout.Len() > 0, stderr.String()); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Lint runs selene over text and returns its findings as diagnostics.
func (r *Runner) Lint(ctx context.Context, text string) ([]lsp.Diagnostic, error) {
	findings, err := r.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	return Diagnostics(findings), nil
}

// Analyze runs selene over text. It either returns every finding or fails.
func (r *Runner) Analyze(ctx context.Context, text string) (findings []Finding, err error) {
	ctx, span := r.ins.startLintSpan(ctx, r.cfg.Delivery, len(text))
	defer span.End()

	logger := r.logger.With(
		zap.String("lint_id", uuid.NewString()),
		zap.String("delivery", string(r.cfg.Delivery)),
	)

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		setLintSpanResult(span, findings, err)
		r.ins.recordLintMetrics(ctx, r.cfg.Delivery, elapsed, findings, err)
		if err != nil {
			logger.Debug("lint failed", zap.Duration("elapsed", elapsed), zap.Error(err))
			return
		}
		logger.Debug("lint finished", zap.Duration("elapsed", elapsed), zap.Int("findings", len(findings)))
	}()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, &Error{Op: "lint", Err: err}
	}
	defer r.sem.Release(1)

	cmdCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var out []byte
	switch r.cfg.Delivery {
	case DeliveryFile:
		out, err = r.runFile(ctx, cmdCtx, text)
	default:
		out, err = r.runStdin(ctx, cmdCtx, text)
	}
	if err != nil {
		return nil, err
	}

	findings, err = ParseOutput(out)
	if err != nil {
		return nil, &Error{Op: "parse", Err: err}
	}
	return findings, nil
}

func (r *Runner) baseArgs() []string {
	return []string{"--display-style=" + r.cfg.DisplayStyle, "--no-summary"}
}

// classify maps an exec failure onto the package's sentinels. ctx is the
// caller's context, cmdCtx the one bounded by the timeout.
func (r *Runner) classify(ctx, cmdCtx context.Context, op string, err error, hadOutput bool, stderr string) error {
	stderr = strings.TrimSpace(stderr)

	if ctx.Err() != nil {
		return &Error{Op: op, Err: ctx.Err()}
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return &Error{Op: op, Err: fmt.Errorf("%w after %s", ErrTimeout, r.cfg.Timeout), Stderr: stderr}
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		if hadOutput {
			return nil
		}
		return &Error{Op: op, Err: fmt.Errorf("%w: %s", ErrFailed, exitErr), Stderr: stderr}
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return &Error{Op: op, Err: fmt.Errorf("%w: %s", ErrNotFound, err)}
	default:
		return &Error{Op: op, Err: err, Stderr: stderr}
	}
}
