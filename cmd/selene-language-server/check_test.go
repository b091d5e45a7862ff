package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/sourcegraph/go-lsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diagnostic(severity lsp.DiagnosticSeverity, code, message string) lsp.Diagnostic {
	return lsp.Diagnostic{
		Range: lsp.Range{
			Start: lsp.Position{Line: 1, Character: 6},
			End:   lsp.Position{Line: 1, Character: 7},
		},
		Severity: severity,
		Code:     code,
		Source:   "selene",
		Message:  message,
	}
}

func TestCheck(t *testing.T) {
	color.NoColor = true

	path := filepath.Join(t.TempDir(), "init.lua")
	require.NoError(t, os.WriteFile(path, []byte("local x = 1\n"), 0o600))

	var linted []string
	lint := func(ctx context.Context, text string) ([]lsp.Diagnostic, error) {
		linted = append(linted, text)
		return []lsp.Diagnostic{diagnostic(lsp.DiagnosticSeverity(lsp.Warning), "unused_variable", "x is assigned a value, but never used")}, nil
	}

	var out bytes.Buffer
	failed, err := check(context.Background(), lint, []string{path, "-"}, strings.NewReader("print(y)\n"), &out)
	require.NoError(t, err)
	assert.False(t, failed)
	assert.Equal(t, []string{"local x = 1\n", "print(y)\n"}, linted)
	assert.Equal(t,
		"1:6 - 1:7\t"+path+"\tx is assigned a value, but never used (unused_variable)\n"+
			"1:6 - 1:7\t-\tx is assigned a value, but never used (unused_variable)\n",
		out.String())
}

func TestCheckFailsOnError(t *testing.T) {
	color.NoColor = true

	lint := func(ctx context.Context, text string) ([]lsp.Diagnostic, error) {
		return []lsp.Diagnostic{diagnostic(lsp.DiagnosticSeverity(lsp.Error), "", "unbalanced parentheses")}, nil
	}

	var out bytes.Buffer
	failed, err := check(context.Background(), lint, nil, strings.NewReader("print(("), &out)
	require.NoError(t, err)
	assert.True(t, failed)
	assert.Equal(t, "1:6 - 1:7\t-\tunbalanced parentheses\n", out.String())
}

func TestCheckErrors(t *testing.T) {
	lint := func(ctx context.Context, text string) ([]lsp.Diagnostic, error) {
		return nil, errors.New("selene exploded")
	}

	_, err := check(context.Background(), lint, []string{filepath.Join(t.TempDir(), "missing.lua")}, nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "could not open file")

	_, err = check(context.Background(), lint, []string{"-"}, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorContains(t, err, "selene exploded")
}

func TestSeverityColor(t *testing.T) {
	assert.Equal(t, errorColor, severityColor(lsp.DiagnosticSeverity(lsp.Error)))
	assert.Equal(t, warningColor, severityColor(lsp.DiagnosticSeverity(lsp.Warning)))
	assert.Equal(t, infoColor, severityColor(lsp.DiagnosticSeverity(lsp.Information)))
	assert.Equal(t, hintColor, severityColor(lsp.DiagnosticSeverity(lsp.Hint)))
}
