package langserver

import (
	"context"
	"fmt"

	"github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/jackTabsCode/selene-language-server/selene"
)

const (
	lineAllowPrefix = "--"
	fileAllowPrefix = "--#"
)

// allowDirective is the comment selene reads as a suppression of code.
func allowDirective(prefix, code string) string {
	return fmt.Sprintf("%s selene: allow(%s)\n", prefix, code)
}

func allowAction(uri lsp.DocumentURI, diag lsp.Diagnostic, entireFile bool) CodeAction {
	var (
		pos    lsp.Position
		prefix string
		title  string
	)
	if entireFile {
		pos = lsp.Position{Line: 0, Character: 0}
		prefix = fileAllowPrefix
		title = fmt.Sprintf("Allow rule %s for the entire file", diag.Code)
	} else {
		pos = lsp.Position{Line: diag.Range.Start.Line, Character: 0}
		prefix = lineAllowPrefix
		title = fmt.Sprintf("Allow rule %s for this line", diag.Code)
	}

	return CodeAction{
		Title:       title,
		Kind:        lsp.CAKQuickFix,
		Diagnostics: []lsp.Diagnostic{diag},
		IsPreferred: !entireFile,
		Edit: &lsp.WorkspaceEdit{
			Changes: map[string][]lsp.TextEdit{
				string(uri): {{
					Range:   lsp.Range{Start: pos, End: pos},
					NewText: allowDirective(prefix, diag.Code),
				}},
			},
		},
	}
}

// allowActions returns the suppression quick fixes for the diagnostics the
// client sent along. Only selene diagnostics with a code qualify.
func allowActions(uri lsp.DocumentURI, diags []lsp.Diagnostic, wholeFile bool) []CodeAction {
	actions := []CodeAction{}
	for _, diag := range diags {
		if diag.Source != selene.Source || diag.Code == "" {
			continue
		}

		actions = append(actions, allowAction(uri, diag, false))
		if wholeFile {
			actions = append(actions, allowAction(uri, diag, true))
		}
	}
	return actions
}

func (s *Server) CodeAction(ctx context.Context, conn jsonrpc2.JSONRPC2, params codeActionParams) ([]CodeAction, error) {
	diags := make([]lsp.Diagnostic, 0, len(params.Context.Diagnostics))
	for _, d := range params.Context.Diagnostics {
		diags = append(diags, d.diagnostic())
	}

	return allowActions(params.TextDocument.URI, diags, s.opts.WholeFileQuickFix), nil
}
