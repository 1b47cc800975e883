package ojs

import (
	"context"
	"fmt"
)

// Scope is the ambient context of one job execution: a stack of
// contexts where the top is the one code running on behalf of the job
// should use. Instrumentation attaches a context when it makes a span
// current and detaches it, in reverse order, when the span finishes.
//
// A Scope belongs to a single execution (one enqueue call or one
// perform) and is not safe for concurrent use. Concurrent jobs each get
// their own Scope.
type Scope struct {
	stack []context.Context
}

// Token identifies one Attach call. It is returned to Detach to restore
// the context that was current before the attach.
type Token struct {
	scope *Scope
	depth int
}

// NewScope returns a Scope whose base context is ctx. A nil ctx is
// replaced by context.Background.
func NewScope(ctx context.Context) *Scope {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scope{stack: []context.Context{ctx}}
}

// Context returns the current ambient context.
func (s *Scope) Context() context.Context {
	return s.stack[len(s.stack)-1]
}

// Attach makes ctx the ambient context and returns a token for undoing it.
func (s *Scope) Attach(ctx context.Context) Token {
	s.stack = append(s.stack, ctx)
	return Token{scope: s, depth: len(s.stack)}
}

// Detach pops the most recently attached context. When tok does not
// belong to the top of the stack it returns an error wrapping
// ErrDetachMismatch, but the top is popped anyway so the stack keeps
// shrinking. The base context is never popped.
func (s *Scope) Detach(tok Token) error {
	depth := len(s.stack)
	if depth == 1 {
		return fmt.Errorf("%w: nothing attached", ErrDetachMismatch)
	}
	s.stack[depth-1] = nil
	s.stack = s.stack[:depth-1]
	if tok.scope != s || tok.depth != depth {
		return fmt.Errorf("%w: token depth %d, stack depth %d", ErrDetachMismatch, tok.depth, depth)
	}
	return nil
}

// Depth returns the number of attached contexts, excluding the base.
func (s *Scope) Depth() int {
	return len(s.stack) - 1
}
