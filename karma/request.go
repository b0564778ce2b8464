package karma

import (
	"fmt"

	"github.com/sarchlab/karma/future"
)

// Result is the outcome of a request. HasMsg is false when the command does
// not produce a response or when the request failed.
type Result[O any] struct {
	Msg    O
	HasMsg bool
	Err    error
}

// RequestFuture resolves when the device delivers the response that matches
// its request.
type RequestFuture[S comparable, I Msg[S], O Msg[S]] struct {
	k      *Karma[S, I, O]
	req    Request[I]
	record bool

	done   bool
	result Result[O]
}

// NewCommand sends cmd to the device behind k and logs it before returning.
// It fails if the device is disconnected, in which case nothing is logged.
func NewCommand[S comparable, I Msg[S], O Msg[S]](
	k *Karma[S, I, O],
	cmd I,
) (*RequestFuture[S, I, O], error) {
	return issue(k, cmd, true)
}

// NewAwaitData creates a future for the next unsolicited response of the
// device behind k.
func NewAwaitData[S comparable, I Msg[S], O Msg[S]](
	k *Karma[S, I, O],
) *RequestFuture[S, I, O] {
	return &RequestFuture[S, I, O]{
		k:      k,
		req:    AwaitRequest[I](),
		record: true,
	}
}

func issue[S comparable, I Msg[S], O Msg[S]](
	k *Karma[S, I, O],
	cmd I,
	record bool,
) (*RequestFuture[S, I, O], error) {
	if err := k.dev.Issue(cmd); err != nil {
		return nil, fmt.Errorf("karma: issue %v: %w", cmd, err)
	}

	if record {
		k.recordInput(cmd)
	}

	return &RequestFuture[S, I, O]{
		k:      k,
		req:    CommandRequest(cmd),
		record: record,
	}, nil
}

// Request returns what the future waits for.
func (f *RequestFuture[S, I, O]) Request() Request[I] {
	return f.req
}

// Poll completes the future with the first buffered response that matches
// the request. Responses that do not match stay buffered. Polling a
// completed future returns the same result again.
func (f *RequestFuture[S, I, O]) Poll(cx *future.Context) future.Poll[Result[O]] {
	if f.done {
		return future.Ready(f.result)
	}

	if cmd, ok := f.req.Command(); ok && !f.k.dev.Protocol().ExpectsResponse(cmd) {
		return f.complete(Result[O]{})
	}

	if out, ok := f.take(); ok {
		return f.complete(Result[O]{Msg: out, HasMsg: true})
	}

	// Register before looking again so that a response delivered between
	// the two looks still wakes this task.
	f.k.dev.Wakers().Register(cx.Waker())

	if out, ok := f.take(); ok {
		return f.complete(Result[O]{Msg: out, HasMsg: true})
	}

	if err := f.k.dev.Err(); err != nil {
		return f.complete(Result[O]{Err: err})
	}

	return future.Pending[Result[O]]()
}

func (f *RequestFuture[S, I, O]) take() (O, bool) {
	protocol := f.k.dev.Protocol()

	out, ok := f.k.dev.Interrupts().TakeFirst(func(out O) bool {
		return protocol.Matches(f.req, out)
	})
	if ok && f.record {
		f.k.recordOutput(out)
	}

	return out, ok
}

func (f *RequestFuture[S, I, O]) complete(r Result[O]) future.Poll[Result[O]] {
	f.done = true
	f.result = r

	return future.Ready(r)
}
