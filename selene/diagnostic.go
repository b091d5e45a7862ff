package selene

import (
	"strings"

	"github.com/sourcegraph/go-lsp"
)

// Source is the label stamped on every diagnostic this package produces.
const Source = "selene"

// LSP maps the severity onto the protocol's four levels.
func (s Severity) LSP() lsp.DiagnosticSeverity {
	switch s {
	case SeverityBug, SeverityError:
		return lsp.DiagnosticSeverity(lsp.Error)
	case SeverityWarning:
		return lsp.DiagnosticSeverity(lsp.Warning)
	case SeverityNote:
		return lsp.DiagnosticSeverity(lsp.Information)
	case SeverityHelp:
		return lsp.DiagnosticSeverity(lsp.Hint)
	default:
		panic("unreachable: severity " + string(s) + " escaped decoding")
	}
}

func (s Span) Range() lsp.Range {
	return lsp.Range{
		Start: lsp.Position{Line: s.StartLine, Character: s.StartColumn},
		End:   lsp.Position{Line: s.EndLine, Character: s.EndColumn},
	}
}

func (f Finding) Diagnostic() lsp.Diagnostic {
	return lsp.Diagnostic{
		Range:    f.PrimaryLabel.Span.Range(),
		Severity: f.Severity.LSP(),
		Code:     f.Code,
		Source:   Source,
		Message:  composeMessage(f.Message, f.Notes),
	}
}

func composeMessage(message string, notes []string) string {
	if len(notes) == 0 {
		return message
	}

	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\nNotes:\n")
	for _, note := range notes {
		b.WriteString("- ")
		b.WriteString(note)
		b.WriteString("\n")
	}
	return b.String()
}

// Diagnostics converts findings in order.
func Diagnostics(findings []Finding) []lsp.Diagnostic {
	diags := make([]lsp.Diagnostic, 0, len(findings))
	for _, f := range findings {
		diags = append(diags, f.Diagnostic())
	}
	return diags
}
