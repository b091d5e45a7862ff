package langserver

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	lspserver "github.com/jackTabsCode/selene-language-server/lsp-server"
)

const (
	testURI     lsp.DocumentURI = "file:///project/init.lua"
	waitTimeout                 = 5 * time.Second
	quietPeriod                 = 200 * time.Millisecond
)

type fakeLinter struct {
	version    string
	versionErr error
	lint       func(ctx context.Context, text string) ([]lsp.Diagnostic, error)

	mu    sync.Mutex
	texts []string
}

func (f *fakeLinter) Version(ctx context.Context) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	if f.version == "" {
		return "selene 0.27.1", nil
	}
	return f.version, nil
}

func (f *fakeLinter) Lint(ctx context.Context, text string) ([]lsp.Diagnostic, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.lint == nil {
		return []lsp.Diagnostic{}, nil
	}
	return f.lint(ctx, text)
}

func (f *fakeLinter) linted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.texts...)
}

// testClient is the editor end of a connection to a Server.
type testClient struct {
	t     *testing.T
	conn  *jsonrpc2.Conn
	notes map[string]chan json.RawMessage
}

func newTestServer(t *testing.T, linter Linter, opts Options) (*Server, *testClient) {
	t.Helper()

	ctx := context.Background()
	serverSide, clientSide := net.Pipe()

	srv := New(ctx, linter, opts, zap.NewNop())
	srvConn := lspserver.Serve(ctx, serverSide, srv.Methods(), zap.NewNop())

	c := &testClient{
		t: t,
		notes: map[string]chan json.RawMessage{
			"textDocument/publishDiagnostics": make(chan json.RawMessage, 64),
			"window/logMessage":               make(chan json.RawMessage, 64),
		},
	}
	c.conn = jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
			ch, ok := c.notes[req.Method]
			if !ok || req.Params == nil {
				return nil, nil
			}
			ch <- *req.Params
			return nil, nil
		}))

	t.Cleanup(func() {
		srv.Wait()
		c.conn.Close()
		srvConn.Close()
	})
	return srv, c
}

func (c *testClient) call(method string, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	return c.conn.Call(ctx, method, params, result)
}

func (c *testClient) notify(method string, params interface{}) {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	require.NoError(c.t, c.conn.Notify(ctx, method, params))
}

func (c *testClient) initialize() {
	c.t.Helper()

	var result json.RawMessage
	require.NoError(c.t, c.call("initialize", map[string]interface{}{"processId": 1, "rootUri": "file:///project"}, &result))
	c.notify("initialized", struct{}{})

	// Found ..., Server initialized!
	c.next("window/logMessage")
	c.next("window/logMessage")
}

func (c *testClient) next(method string) json.RawMessage {
	c.t.Helper()

	select {
	case raw := <-c.notes[method]:
		return raw
	case <-time.After(waitTimeout):
		c.t.Fatalf("timed out waiting for %s", method)
		return nil
	}
}

func (c *testClient) nextPublish() lsp.PublishDiagnosticsParams {
	c.t.Helper()

	var params lsp.PublishDiagnosticsParams
	require.NoError(c.t, json.Unmarshal(c.next("textDocument/publishDiagnostics"), &params))
	return params
}

func (c *testClient) nextLog() lsp.LogMessageParams {
	c.t.Helper()

	var params lsp.LogMessageParams
	require.NoError(c.t, json.Unmarshal(c.next("window/logMessage"), &params))
	return params
}

func (c *testClient) expectQuiet(method string) {
	c.t.Helper()

	select {
	case raw := <-c.notes[method]:
		c.t.Fatalf("unexpected %s: %s", method, raw)
	case <-time.After(quietPeriod):
	}
}

func (c *testClient) open(uri lsp.DocumentURI, text string) {
	c.notify("textDocument/didOpen", lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{URI: uri, LanguageID: "lua", Version: 1, Text: text},
	})
}

func (c *testClient) change(uri lsp.DocumentURI, version int, texts ...string) {
	changes := []lsp.TextDocumentContentChangeEvent{}
	for _, text := range texts {
		changes = append(changes, lsp.TextDocumentContentChangeEvent{Text: text})
	}
	c.notify("textDocument/didChange", lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: changes,
	})
}

func (c *testClient) close(uri lsp.DocumentURI) {
	c.notify("textDocument/didClose", lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
	})
}

func seleneDiagnostic(code string, line int) lsp.Diagnostic {
	return lsp.Diagnostic{
		Range: lsp.Range{
			Start: lsp.Position{Line: line, Character: 4},
			End:   lsp.Position{Line: line, Character: 5},
		},
		Severity: lsp.DiagnosticSeverity(lsp.Warning),
		Code:     code,
		Source:   "selene",
		Message:  "x is unused",
	}
}
