package karma

import (
	"fmt"

	"github.com/sarchlab/karma/future"
)

// ReplayReport summarizes a finished replay.
type ReplayReport struct {
	// From is the index, in the history snapshot, of the input that started
	// the replayed session. It is -1 if the history holds no session.
	From int

	// Reissued counts the commands sent to the device again.
	Reissued int

	// Skipped counts the inputs that were not replayable.
	Skipped int
}

// ReplayResult is what a replay future resolves to.
type ReplayResult struct {
	Report ReplayReport
	Err    error
}

// Replay rebuilds the device state from the history after a reset.
//
// The replay starts at the newest logged input that the device accepts in
// its initial state. It waits until the device is back in that state, then
// re-issues every replayable input logged since, waiting for each response
// the device gives. Replayed messages are not logged again.
func (k *Karma[S, I, O]) Replay() future.Future[ReplayResult] {
	events := k.history.Events()
	initial := k.dev.InitialState()

	from := -1
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Kind == EventInput && e.Input.RequiredInitialState() == initial {
			from = i
			break
		}
	}

	r := &replay[S, I, O]{
		k:        k,
		events:   events,
		next:     from,
		expected: initial,
		report:   ReplayReport{From: from},
	}

	if from < 0 {
		r.done = true
	}

	return r
}

type replay[S comparable, I Msg[S], O Msg[S]] struct {
	k        *Karma[S, I, O]
	events   []Event[I, O]
	next     int
	expected S
	report   ReplayReport

	started bool
	waiting *RequestFuture[S, I, O]
	done    bool
	err     error
}

func (r *replay[S, I, O]) Poll(cx *future.Context) future.Poll[ReplayResult] {
	if r.done {
		return r.finish()
	}

	if !r.started {
		if !r.reachedInitialState(cx) {
			if err := r.k.dev.Err(); err != nil {
				return r.fail(err)
			}

			return future.Pending[ReplayResult]()
		}

		r.started = true
		r.k.logger.Info().Int("from", r.next).Msg("replay started")
	}

	for {
		if r.waiting != nil {
			p := r.waiting.Poll(cx)
			if !p.IsReady() {
				return future.Pending[ReplayResult]()
			}

			res, _ := p.Value()
			if res.Err != nil {
				return r.fail(res.Err)
			}

			r.waiting = nil
		}

		if r.next >= len(r.events) {
			r.done = true
			r.k.logger.Info().
				Int("reissued", r.report.Reissued).
				Int("skipped", r.report.Skipped).
				Msg("replay finished")

			return r.finish()
		}

		e := r.events[r.next]
		r.next++

		if e.Kind == EventOutput {
			r.expected = e.Output.ResultingState()
			continue
		}

		if err := r.reissue(e.Input); err != nil {
			return r.fail(err)
		}
	}
}

func (r *replay[S, I, O]) reachedInitialState(cx *future.Context) bool {
	initial := r.k.dev.InitialState()
	if r.k.dev.CurrentState() == initial {
		return true
	}

	r.k.dev.Wakers().Register(cx.Waker())

	return r.k.dev.CurrentState() == initial
}

func (r *replay[S, I, O]) reissue(in I) error {
	if in.RequiredInitialState() != r.expected {
		return fmt.Errorf("%w: %v requires %v, history leaves %v",
			ErrReplayDiverged, in, in.RequiredInitialState(), r.expected)
	}

	r.expected = in.ResultingState()

	if !isReplayable(in) {
		r.report.Skipped++
		return nil
	}

	f, err := issue(r.k, in, false)
	if err != nil {
		return err
	}

	r.report.Reissued++
	r.waiting = f

	return nil
}

func (r *replay[S, I, O]) fail(err error) future.Poll[ReplayResult] {
	r.done = true
	r.err = err
	r.k.logger.Error().Err(err).Msg("replay failed")

	return r.finish()
}

func (r *replay[S, I, O]) finish() future.Poll[ReplayResult] {
	return future.Ready(ReplayResult{Report: r.report, Err: r.err})
}
