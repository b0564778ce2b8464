// Package scenario runs Starlark scripts that drive a radio through its
// Karma wrapper.
//
// A script sees these builtins:
//
//	init(), transmit(), receive()  issue a command, return the response kind or None
//	send(data)                     send a string, bytes, or a list of ints
//	await_data()                   wait for the next received packet, as bytes
//	reset()                        power cycle the radio
//	replay()                       rebuild the state from the history
//	state()                        the current radio state
//	history()                      the logged events as (kind, message) tuples
//	sleep(ms)                      pause the script
//
// Every request is spawned as a task on the executor. The script goroutine
// blocks until the task completes.
package scenario

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/karma"
	"github.com/sarchlab/karma/radio"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// DefaultScript is the script run when no other one is given.
//
//go:embed default.star
var DefaultScript string

// ErrRequestFailed is returned when a request resolves with an error.
var ErrRequestFailed = errors.New("scenario: request failed")

// scriptOptions lets scripts use if, for, and while at the top level and
// rebind globals between steps.
var scriptOptions = &syntax.FileOptions{
	TopLevelControl: true,
	GlobalReassign:  true,
	While:           true,
}

// Runner executes scenario scripts against one radio.
type Runner struct {
	spawner *executor.Spawner
	k       *radio.Karma
	logger  zerolog.Logger
	out     io.Writer
	globals starlark.StringDict
}

// NewRunner creates a runner that spawns requests on spawner.
func NewRunner(spawner *executor.Spawner, k *radio.Karma) *Runner {
	return &Runner{
		spawner: spawner,
		k:       k,
		logger:  zerolog.Nop(),
		globals: starlark.StringDict{},
	}
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(logger zerolog.Logger) *Runner {
	r.logger = logger.With().Str("component", "scenario").Logger()
	return r
}

// WithOutput sets where the script's print calls go. By default they are
// logged.
func (r *Runner) WithOutput(w io.Writer) *Runner {
	r.out = w
	return r
}

// WithGlobal makes value visible to scripts as name. Supported values are
// bool, int, string and starlark values.
func (r *Runner) WithGlobal(name string, value any) *Runner {
	switch v := value.(type) {
	case starlark.Value:
		r.globals[name] = v
	case bool:
		r.globals[name] = starlark.Bool(v)
	case int:
		r.globals[name] = starlark.MakeInt(v)
	case string:
		r.globals[name] = starlark.String(v)
	default:
		panic(fmt.Sprintf("scenario: unsupported global type %T", value))
	}

	return r
}

// Run executes the script src under filename. It returns the script's
// globals. When ctx is done the script is cancelled.
func (r *Runner) Run(
	ctx context.Context,
	filename string,
	src any,
) (starlark.StringDict, error) {
	thread := &starlark.Thread{
		Name:  filename,
		Print: r.print,
	}
	thread.SetLocal("ctx", ctx)

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-stop:
		}
	}()

	r.logger.Debug().Str("script", filename).Msg("scenario started")

	globals, err := starlark.ExecFileOptions(
		scriptOptions, thread, filename, src, r.predeclared())
	if err != nil {
		r.logger.Error().Err(err).Str("script", filename).Msg("scenario failed")
		return globals, fmt.Errorf("scenario: %s: %w", filename, err)
	}

	r.logger.Debug().Str("script", filename).Msg("scenario finished")

	return globals, nil
}

func (r *Runner) print(_ *starlark.Thread, msg string) {
	if r.out != nil {
		fmt.Fprintln(r.out, msg)
		return
	}

	r.logger.Info().Msg(msg)
}

func (r *Runner) predeclared() starlark.StringDict {
	d := starlark.StringDict{
		"init":       starlark.NewBuiltin("init", r.command(radio.NewInit)),
		"transmit":   starlark.NewBuiltin("transmit", r.command(radio.NewSwitchToTransmit)),
		"receive":    starlark.NewBuiltin("receive", r.command(radio.NewSwitchToReceive)),
		"send":       starlark.NewBuiltin("send", r.send),
		"await_data": starlark.NewBuiltin("await_data", r.awaitData),
		"reset":      starlark.NewBuiltin("reset", r.reset),
		"replay":     starlark.NewBuiltin("replay", r.replay),
		"state":      starlark.NewBuiltin("state", r.state),
		"history":    starlark.NewBuiltin("history", r.history),
		"sleep":      starlark.NewBuiltin("sleep", r.sleep),
	}

	for k, v := range r.globals {
		d[k] = v
	}

	return d
}

type builtinFunc = func(
	thread *starlark.Thread,
	b *starlark.Builtin,
	args starlark.Tuple,
	kwargs []starlark.Tuple,
) (starlark.Value, error)

func threadCtx(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local("ctx").(context.Context); ok {
		return ctx
	}

	return context.Background()
}

func (r *Runner) command(mk func() radio.Input) builtinFunc {
	return func(
		thread *starlark.Thread,
		b *starlark.Builtin,
		args starlark.Tuple,
		kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}

		return r.issue(threadCtx(thread), mk())
	}
}

func (r *Runner) send(
	thread *starlark.Thread,
	b *starlark.Builtin,
	args starlark.Tuple,
	kwargs []starlark.Tuple,
) (starlark.Value, error) {
	var data starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data); err != nil {
		return nil, err
	}

	payload, err := toBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	return r.issue(threadCtx(thread), radio.NewSend(payload))
}

func toBytes(v starlark.Value) ([]byte, error) {
	switch v := v.(type) {
	case starlark.String:
		return []byte(string(v)), nil
	case starlark.Bytes:
		return []byte(string(v)), nil
	case *starlark.List:
		payload := make([]byte, v.Len())
		for i := 0; i < v.Len(); i++ {
			n, err := starlark.AsInt32(v.Index(i))
			if err != nil || n < 0 || n > 255 {
				return nil, fmt.Errorf("element %d is not a byte: %v", i, v.Index(i))
			}

			payload[i] = byte(n)
		}

		return payload, nil
	}

	return nil, fmt.Errorf("got %s, want string, bytes or list", v.Type())
}

func (r *Runner) issue(ctx context.Context, cmd radio.Input) (starlark.Value, error) {
	f, err := r.k.Command(cmd)
	if err != nil {
		return nil, err
	}

	res, err := wait[karma.Result[radio.Output]](ctx, r.spawner, cmd.String(), f)
	if err != nil {
		return nil, err
	}

	if res.Err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrRequestFailed, cmd, res.Err)
	}

	if !res.HasMsg {
		return starlark.None, nil
	}

	return starlark.String(res.Msg.String()), nil
}

func (r *Runner) awaitData(
	thread *starlark.Thread,
	b *starlark.Builtin,
	args starlark.Tuple,
	kwargs []starlark.Tuple,
) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}

	res, err := wait[karma.Result[radio.Output]](
		threadCtx(thread), r.spawner, "AwaitData", r.k.AwaitData())
	if err != nil {
		return nil, err
	}

	if res.Err != nil {
		return nil, fmt.Errorf("%w: await data: %w", ErrRequestFailed, res.Err)
	}

	return starlark.Bytes(res.Msg.Payload), nil
}

func (r *Runner) reset(
	_ *starlark.Thread,
	b *starlark.Builtin,
	args starlark.Tuple,
	kwargs []starlark.Tuple,
) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}

	r.k.PowerCycle()

	return starlark.None, nil
}

func (r *Runner) replay(
	thread *starlark.Thread,
	b *starlark.Builtin,
	args starlark.Tuple,
	kwargs []starlark.Tuple,
) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}

	res, err := wait(threadCtx(thread), r.spawner, "Replay", r.k.Replay())
	if err != nil {
		return nil, err
	}

	if res.Err != nil {
		return nil, res.Err
	}

	d := starlark.NewDict(3)
	_ = d.SetKey(starlark.String("from"), starlark.MakeInt(res.Report.From))
	_ = d.SetKey(starlark.String("reissued"), starlark.MakeInt(res.Report.Reissued))
	_ = d.SetKey(starlark.String("skipped"), starlark.MakeInt(res.Report.Skipped))

	return d, nil
}

func (r *Runner) state(
	_ *starlark.Thread,
	b *starlark.Builtin,
	args starlark.Tuple,
	kwargs []starlark.Tuple,
) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}

	return starlark.String(r.k.Device().CurrentState().String()), nil
}

func (r *Runner) history(
	_ *starlark.Thread,
	b *starlark.Builtin,
	args starlark.Tuple,
	kwargs []starlark.Tuple,
) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}

	events := r.k.History().Events()
	list := make([]starlark.Value, 0, len(events))

	for _, e := range events {
		list = append(list, starlark.Tuple{
			starlark.String(e.Kind.String()),
			starlark.String(fmt.Sprint(e.Msg())),
		})
	}

	return starlark.NewList(list), nil
}

func (r *Runner) sleep(
	thread *starlark.Thread,
	b *starlark.Builtin,
	args starlark.Tuple,
	kwargs []starlark.Tuple,
) (starlark.Value, error) {
	var ms int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "ms", &ms); err != nil {
		return nil, err
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	ctx := threadCtx(thread)
	select {
	case <-timer.C:
		return starlark.None, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func wait[T any](
	ctx context.Context,
	spawner *executor.Spawner,
	name string,
	f future.Future[T],
) (T, error) {
	return executor.SpawnHandleNamed(spawner, name, f).Wait(ctx)
}
