// Package langserver is the LSP front end: it lints documents with selene
// as they are opened and edited and offers quick fixes that suppress rules.
package langserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	lspserver "github.com/jackTabsCode/selene-language-server/lsp-server"
	"github.com/jackTabsCode/selene-language-server/selene"
)

// Linter is what the server needs from selene.
type Linter interface {
	Version(ctx context.Context) (string, error)
	Lint(ctx context.Context, text string) ([]lsp.Diagnostic, error)
}

type Options struct {
	// WholeFileQuickFix also offers a file-scope suppression next to the
	// line-scope one.
	WholeFileQuickFix bool
}

type state int

const (
	stateUninitialized state = iota
	stateInitialized
	stateShuttingDown
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitialized:
		return "initialized"
	case stateShuttingDown:
		return "shutting down"
	case stateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Server struct {
	linter  Linter
	opts    Options
	logger  *zap.Logger
	baseCtx context.Context

	mu       sync.Mutex
	state    state
	exitCode int
	exited   chan struct{}

	lints *lintTable
	wg    sync.WaitGroup
}

// New returns a server in the uninitialized state. ctx bounds every lint
// the server dispatches.
func New(ctx context.Context, linter Linter, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		linter:  linter,
		opts:    opts,
		logger:  logger.Named("server"),
		baseCtx: ctx,
		exited:  make(chan struct{}),
		lints:   newLintTable(),
	}
}

type methodKind int

const (
	request methodKind = iota
	notification
)

func (s *Server) Methods() lspserver.MethodMap {
	return lspserver.MethodMap{
		"initialize":              s.guard("initialize", request, lspserver.Zu(s.Initialize)),
		"initialized":             s.guard("initialized", notification, lspserver.Zu(s.Initialized)),
		"shutdown":                s.guard("shutdown", request, lspserver.Zu(s.Shutdown)),
		"exit":                    s.guard("exit", notification, lspserver.Zu(s.Exit)),
		"textDocument/didOpen":    s.guard("textDocument/didOpen", notification, lspserver.Zu(s.DidOpen)),
		"textDocument/didChange":  s.guard("textDocument/didChange", notification, lspserver.Zu(s.DidChange)),
		"textDocument/didClose":   s.guard("textDocument/didClose", notification, lspserver.Zu(s.DidClose)),
		"textDocument/codeAction": s.guard("textDocument/codeAction", request, lspserver.Zu(s.CodeAction)),
	}
}

// guard enforces the connection lifecycle. Rejected notifications are
// dropped, rejected requests get an error response.
func (s *Server) guard(method string, kind methodKind, m lspserver.Method) lspserver.Method {
	return func(ctx context.Context, conn jsonrpc2.JSONRPC2, params json.RawMessage) (interface{}, error) {
		if err := s.admit(method); err != nil {
			if kind == notification {
				s.logger.Debug("dropping notification", zap.String("method", method), zap.Stringer("state", s.currentState()))
				return nil, nil
			}
			return nil, err
		}
		return m(ctx, conn, params)
	}
}

func (s *Server) admit(method string) error {
	st := s.currentState()
	switch {
	case method == "exit":
		return nil
	case method == "initialize":
		if st != stateUninitialized {
			return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: "server is already initialized"}
		}
		return nil
	case st == stateUninitialized:
		return &jsonrpc2.Error{Code: codeServerNotInitialized, Message: "server is not initialized"}
	case st == stateShuttingDown, st == stateTerminated:
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: "server is " + st.String()}
	}
	return nil
}

func (s *Server) currentState() state {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Server) setState(st state) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug("state change", zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
}

func (s *Server) Initialize(ctx context.Context, conn jsonrpc2.JSONRPC2, params initializeParams) (*lsp.InitializeResult, error) {
	version, err := s.linter.Version(ctx)
	if err != nil {
		s.logger.Error("selene is not available", zap.Error(err))
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInternalError,
			Message: fmt.Sprintf("Failed to run selene: %s", err),
		}
	}

	s.logger.Info("found selene", zap.String("version", version), zap.String("root_uri", string(params.RootURI)), zap.String("client", params.ClientInfo.Name))
	s.logMessage(ctx, conn, lsp.Info, "Found "+version)
	s.setState(stateInitialized)

	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			// selene can only lint whole files
			TextDocumentSync: &lsp.TextDocumentSyncOptionsOrKind{
				Options: &lsp.TextDocumentSyncOptions{
					OpenClose: true,
					Change:    lsp.TDSKFull,
				},
			},
			CodeActionProvider: true,
		},
	}, nil
}

func (s *Server) Initialized(ctx context.Context, conn jsonrpc2.JSONRPC2, params struct{}) {
	s.logMessage(ctx, conn, lsp.Info, "Server initialized!")
}

func (s *Server) Shutdown(ctx context.Context, conn jsonrpc2.JSONRPC2, params struct{}) (interface{}, error) {
	s.logMessage(ctx, conn, lsp.Info, "Server shutting down!")
	s.setState(stateShuttingDown)
	return nil, nil
}

func (s *Server) Exit(ctx context.Context, conn jsonrpc2.JSONRPC2, params struct{}) {
	s.mu.Lock()
	if s.state == stateTerminated {
		s.mu.Unlock()
		return
	}
	if s.state != stateShuttingDown {
		s.exitCode = 1
	}
	s.state = stateTerminated
	close(s.exited)
	s.mu.Unlock()

	if err := conn.Close(); err != nil {
		s.logger.Debug("closing connection", zap.Error(err))
	}
}

// Exited is closed once the client sends exit.
func (s *Server) Exited() <-chan struct{} {
	return s.exited
}

// ExitCode is 1 when the client sent exit without a shutdown first.
func (s *Server) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exitCode
}

// Wait blocks until every dispatched lint has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) DidOpen(ctx context.Context, conn jsonrpc2.JSONRPC2, params lsp.DidOpenTextDocumentParams) {
	s.lint(conn, params.TextDocument.URI, params.TextDocument.Text)
}

func (s *Server) DidChange(ctx context.Context, conn jsonrpc2.JSONRPC2, params lsp.DidChangeTextDocumentParams) {
	// Full sync means exactly one change carrying the whole text.
	if len(params.ContentChanges) == 0 {
		s.logger.Debug("didChange without changes", zap.String("uri", string(params.TextDocument.URI)))
		return
	}
	s.lint(conn, params.TextDocument.URI, params.ContentChanges[0].Text)
}

func (s *Server) DidClose(ctx context.Context, conn jsonrpc2.JSONRPC2, params lsp.DidCloseTextDocumentParams) {
	uri := params.TextDocument.URI
	s.lints.invalidate(uri, func() {
		s.publish(conn, uri, nil)
	})
}

// lint runs selene over text in the background and publishes the result
// unless a newer lint of the same document, or a close, got there first.
func (s *Server) lint(conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, text string) {
	ctx, seq := s.lints.begin(s.baseCtx, uri)
	logger := s.logger.With(zap.String("uri", string(uri)), zap.Uint64("seq", seq))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		diags, err := s.linter.Lint(ctx, text)
		current := s.lints.finish(uri, seq, func() {
			if err != nil {
				s.reportLintFailure(conn, logger, uri, err)
				return
			}
			s.publish(conn, uri, diags)
		})
		if !current {
			logger.Debug("discarding superseded lint", zap.Error(err))
		}
	}()
}

func (s *Server) publish(conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, diags []lsp.Diagnostic) {
	if diags == nil {
		diags = []lsp.Diagnostic{}
	}

	err := conn.Notify(s.baseCtx, "textDocument/publishDiagnostics", lsp.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	})
	if err != nil {
		s.logger.Warn("failed to publish diagnostics", zap.String("uri", string(uri)), zap.Error(err))
	}
}

// reportLintFailure leaves the client's current diagnostics in place and
// tells it why they were not refreshed.
func (s *Server) reportLintFailure(conn jsonrpc2.JSONRPC2, logger *zap.Logger, uri lsp.DocumentURI, err error) {
	if selene.IsDefect(err) {
		logger.DPanic("selene broke its output contract", zap.Error(err))
	} else {
		logger.Error("lint failed", zap.Error(err))
	}
	s.logMessage(s.baseCtx, conn, lsp.MTError, fmt.Sprintf("selene failed to lint %s: %s", uri, err))
}

func (s *Server) logMessage(ctx context.Context, conn jsonrpc2.JSONRPC2, typ lsp.MessageType, message string) {
	err := conn.Notify(ctx, "window/logMessage", lsp.LogMessageParams{Type: typ, Message: message})
	if err != nil {
		s.logger.Debug("failed to send log message", zap.Error(err))
	}
}
