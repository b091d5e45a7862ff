package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sourcegraph/go-lsp"
	"github.com/spf13/cobra"

	"github.com/jackTabsCode/selene-language-server/selene"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgBlue)
	hintColor    = color.New(color.FgCyan)
)

type lintFunc func(ctx context.Context, text string) ([]lsp.Diagnostic, error)

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file|-]...",
		Short: "Lint files the way the language server would",
		Long: `check runs selene over each file exactly as the language server runs it over
an editor buffer and prints the resulting diagnostics. "-" or no arguments
reads from stdin. The exit status is 1 when any error is found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, _, err := buildLogger(a.config.Log.File, a.config.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			runner := selene.New(a.config.runnerConfig(), logger)
			failed, err := check(cmd.Context(), runner.Lint, args, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if failed {
				a.exitCode = 1
			}
			return nil
		},
	}
}

// check lints each file and reports whether any error-severity diagnostic
// was found.
func check(ctx context.Context, lint lintFunc, files []string, stdin io.Reader, out io.Writer) (bool, error) {
	if len(files) == 0 {
		files = []string{"-"}
	}

	failed := false
	for _, file := range files {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return failed, fmt.Errorf("could not open file %s: %w", file, err)
		}

		diags, err := lint(ctx, string(data))
		if err != nil {
			return failed, fmt.Errorf("could not lint file %s: %w", file, err)
		}

		for _, diag := range diags {
			if diag.Severity == lsp.DiagnosticSeverity(lsp.Error) {
				failed = true
			}
			printDiagnostic(out, file, diag)
		}
	}
	return failed, nil
}

func printDiagnostic(out io.Writer, file string, diag lsp.Diagnostic) {
	message := diag.Message
	if diag.Code != "" {
		message = fmt.Sprintf("%s (%s)", message, diag.Code)
	}
	fmt.Fprintf(out,
		"%d:%d - %d:%d\t%s\t%s\n",
		diag.Range.Start.Line, diag.Range.Start.Character,
		diag.Range.End.Line, diag.Range.End.Character,
		file,
		severityColor(diag.Severity).Sprint(message),
	)
}

func severityColor(severity lsp.DiagnosticSeverity) *color.Color {
	switch severity {
	case lsp.DiagnosticSeverity(lsp.Error):
		return errorColor
	case lsp.DiagnosticSeverity(lsp.Warning):
		return warningColor
	case lsp.DiagnosticSeverity(lsp.Information):
		return infoColor
	default:
		return hintColor
	}
}
