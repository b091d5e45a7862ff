package langserver

import (
	"context"
	"sync"

	"github.com/sourcegraph/go-lsp"
)

type inflight struct {
	seq    uint64
	cancel context.CancelFunc
}

// lintTable tracks the newest lint dispatched for each document. Sequence
// numbers are global, so a number is never reused after a close and reopen.
type lintTable struct {
	mu   sync.Mutex
	seq  uint64
	docs map[lsp.DocumentURI]inflight
}

func newLintTable() *lintTable {
	return &lintTable{docs: map[lsp.DocumentURI]inflight{}}
}

// begin registers a lint of uri, cancelling the one it supersedes.
func (t *lintTable) begin(parent context.Context, uri lsp.DocumentURI) (context.Context, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.docs[uri]; ok {
		prev.cancel()
	}

	t.seq++
	ctx, cancel := context.WithCancel(parent)
	t.docs[uri] = inflight{seq: t.seq, cancel: cancel}
	return ctx, t.seq
}

// finish retires lint seq of uri and runs fn if it is still the newest.
// fn runs under the table lock so nothing newer can be published first. A
// client that is slow to read therefore also stalls begin, and with it the
// read loop, until the notification is written.
func (t *lintTable) finish(uri lsp.DocumentURI, seq uint64, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.docs[uri]
	if !ok || cur.seq != seq {
		return false
	}
	cur.cancel()
	delete(t.docs, uri)

	fn()
	return true
}

// invalidate drops any lint of uri in flight and runs fn under the table
// lock, like finish.
func (t *lintTable) invalidate(uri lsp.DocumentURI, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.docs[uri]; ok {
		cur.cancel()
		delete(t.docs, uri)
	}

	fn()
}

func (t *lintTable) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.docs)
}
