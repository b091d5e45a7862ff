package langserver

import (
	"encoding/json"
	"strconv"

	"github.com/sourcegraph/go-lsp"
)

// codeServerNotInitialized is the LSP error for requests sent before
// initialize.
const codeServerNotInitialized int64 = -32002

/**
 * A code action represents a change that can be performed in code, e.g. to fix
 * a problem or to refactor code.
 */
type CodeAction struct {
	Title string `json:"title"`

	Kind lsp.CodeActionKind `json:"kind,omitempty"`

	// The diagnostics that this code action resolves.
	Diagnostics []lsp.Diagnostic `json:"diagnostics,omitempty"`

	// Preferred actions are used by the `auto fix` command and can be
	// targeted by keybindings.
	IsPreferred bool `json:"isPreferred,omitempty"`

	Edit *lsp.WorkspaceEdit `json:"edit,omitempty"`
}

// initializeParams is the part of the handshake the server reads. Client
// capabilities are not inspected.
type initializeParams struct {
	ProcessID  int             `json:"processId"`
	RootURI    lsp.DocumentURI `json:"rootUri"`
	ClientInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

// codeActionParams mirrors lsp.CodeActionParams, but tolerates the numeric
// diagnostic codes other servers attach to diagnostics in the same range.
type codeActionParams struct {
	TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
	Range        lsp.Range                  `json:"range"`
	Context      struct {
		Diagnostics []echoedDiagnostic `json:"diagnostics"`
	} `json:"context"`
}

type echoedDiagnostic struct {
	lsp.Diagnostic
	Code diagnosticCode `json:"code,omitempty"`
}

func (d echoedDiagnostic) diagnostic() lsp.Diagnostic {
	diag := d.Diagnostic
	diag.Code = string(d.Code)
	return diag
}

// diagnosticCode is the `number | string` code of a diagnostic.
type diagnosticCode string

func (c *diagnosticCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = diagnosticCode(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = diagnosticCode(strconv.FormatInt(n, 10))
	return nil
}
