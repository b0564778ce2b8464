// Package future defines the waitable future protocol shared by the task
// executor and every simulated peripheral.
//
// A Future is advanced with Poll. Poll never blocks: it either returns a ready
// value or reports that the value is not available yet. Before reporting
// "not yet", a future must arrange for the Waker found in the Context to be
// called once progress is possible. The executor reacts to the wake by
// polling the owning task again.
//
// Futures are not safe for concurrent polling. A future must not be polled
// again after it returned a ready value unless its documentation says so.
package future

// Poll is the outcome of advancing a Future once.
type Poll[T any] struct {
	value T
	ready bool
}

// Ready creates a poll result that carries a final value.
func Ready[T any](v T) Poll[T] {
	return Poll[T]{value: v, ready: true}
}

// Pending creates a poll result that reports the value is not available yet.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// IsReady reports whether the poll produced a value.
func (p Poll[T]) IsReady() bool {
	return p.ready
}

// Value returns the final value and true, or the zero value and false if the
// poll was pending.
func (p Poll[T]) Value() (T, bool) {
	return p.value, p.ready
}

// A Waker is a handle that, when invoked, causes a suspended task to be
// reconsidered by its executor. Wake must be safe to call from any goroutine,
// any number of times, including after the task completed.
type Waker interface {
	Wake()
}

// Context carries the waker of the task that is currently being polled.
type Context struct {
	waker Waker
}

// NewContext creates a Context for polling with the given waker.
func NewContext(w Waker) *Context {
	return &Context{waker: w}
}

// Waker returns the waker of the task being polled.
func (c *Context) Waker() Waker {
	return c.waker
}

// Future is an asynchronous computation that produces a T.
type Future[T any] interface {
	Poll(cx *Context) Poll[T]
}

// Func adapts a plain function into a Future.
type Func[T any] func(cx *Context) Poll[T]

// Poll calls f.
func (f Func[T]) Poll(cx *Context) Poll[T] {
	return f(cx)
}

// Unit is the value produced by futures that only signal completion.
type Unit = struct{}
