package ojs

import "slices"

// HandlerFunc is a function that processes a job.
type HandlerFunc func(JobContext) error

// MiddlewareFunc wraps a HandlerFunc with cross-cutting concerns. Each
// middleware calls next to continue the chain (onion model). Middleware
// runs inside the perform notification, so ctx.Context() already
// carries whatever the instrumentation made current.
//
// Example:
//
//	func loggingMiddleware(ctx ojs.JobContext, next ojs.HandlerFunc) error {
//	    log.Printf("Starting %s", ctx.Job.Type)
//	    err := next(ctx)
//	    log.Printf("Done %s", ctx.Job.Type)
//	    return err
//	}
type MiddlewareFunc func(ctx JobContext, next HandlerFunc) error

// middlewareChain holds an ordered list of named middleware.
type middlewareChain struct {
	middleware []namedMiddleware
}

type namedMiddleware struct {
	name string
	fn   MiddlewareFunc
}

func newMiddlewareChain() *middlewareChain {
	return &middlewareChain{}
}

func (c *middlewareChain) index(name string) int {
	return slices.IndexFunc(c.middleware, func(m namedMiddleware) bool {
		return m.name == name
	})
}

// Add appends middleware to the end of the chain.
func (c *middlewareChain) Add(name string, fn MiddlewareFunc) {
	c.middleware = append(c.middleware, namedMiddleware{name: name, fn: fn})
}

// Prepend inserts middleware at the beginning of the chain.
func (c *middlewareChain) Prepend(name string, fn MiddlewareFunc) {
	c.middleware = slices.Insert(c.middleware, 0, namedMiddleware{name: name, fn: fn})
}

// InsertBefore inserts middleware immediately before the named one, or
// appends it when no middleware has that name.
func (c *middlewareChain) InsertBefore(existing string, name string, fn MiddlewareFunc) {
	i := c.index(existing)
	if i < 0 {
		c.Add(name, fn)
		return
	}
	c.middleware = slices.Insert(c.middleware, i, namedMiddleware{name: name, fn: fn})
}

// InsertAfter inserts middleware immediately after the named one, or
// appends it when no middleware has that name.
func (c *middlewareChain) InsertAfter(existing string, name string, fn MiddlewareFunc) {
	i := c.index(existing)
	if i < 0 {
		c.Add(name, fn)
		return
	}
	c.middleware = slices.Insert(c.middleware, i+1, namedMiddleware{name: name, fn: fn})
}

// Remove removes middleware by name from the chain.
func (c *middlewareChain) Remove(name string) {
	if i := c.index(name); i >= 0 {
		c.middleware = slices.Delete(c.middleware, i, i+1)
	}
}

// Names lists the middleware in execution order.
func (c *middlewareChain) Names() []string {
	names := make([]string, len(c.middleware))
	for i, m := range c.middleware {
		names[i] = m.name
	}
	return names
}

// then builds a HandlerFunc by wrapping the handler with the middleware chain.
func (c *middlewareChain) then(handler HandlerFunc) HandlerFunc {
	// Build from inside out: the last middleware wraps the handler first.
	h := handler
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i].fn
		next := h
		h = func(ctx JobContext) error {
			return mw(ctx, next)
		}
	}
	return h
}

// Middleware returns the names of the worker's middleware in execution order.
func (w *Worker) Middleware() []string {
	return w.middleware.Names()
}
