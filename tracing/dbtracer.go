// Package tracing records what tasks and peripherals do into a data recorder.
package tracing

import (
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/karma/datarecording"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/hooking"
	"github.com/tebeka/atexit"
)

// Table names used by DBTracer.
const (
	TaskEventTable       = "task_events"
	PollTable            = "task_polls"
	PeripheralEventTable = "peripheral_events"
)

type taskEventEntry struct {
	Time  float64
	Task  string
	Name  string
	Event string
	Polls uint64
}

type pollEntry struct {
	Task      string
	Name      string
	StartTime float64
	EndTime   float64
	Completed bool
}

type peripheralEventEntry struct {
	Time   float64
	Source string
	Event  string
	Item   string
	Detail string
}

// DBTracer is a hook that stores task and peripheral events into a data
// recorder. Times are seconds since the tracer was created.
type DBTracer struct {
	mu        sync.Mutex
	backend   datarecording.DataRecorder
	start     time.Time
	now       func() time.Time
	isTracing bool

	polling map[string]float64
}

// NewDBTracer creates a DBTracer that writes into dataRecorder. The tracer
// starts enabled and flushes the recorder on exit.
func NewDBTracer(dataRecorder datarecording.DataRecorder) *DBTracer {
	return newDBTracer(dataRecorder, time.Now)
}

func newDBTracer(
	dataRecorder datarecording.DataRecorder,
	now func() time.Time,
) *DBTracer {
	dataRecorder.CreateTable(TaskEventTable, taskEventEntry{})
	dataRecorder.CreateTable(PollTable, pollEntry{})
	dataRecorder.CreateTable(PeripheralEventTable, peripheralEventEntry{})

	t := &DBTracer{
		backend:   dataRecorder,
		start:     now(),
		now:       now,
		isTracing: true,
		polling:   make(map[string]float64),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// IsTracing reports whether events are being recorded.
func (t *DBTracer) IsTracing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.isTracing
}

// EnableTracing resumes recording.
func (t *DBTracer) EnableTracing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.isTracing = true
}

// StopTracing stops recording and flushes what was recorded.
func (t *DBTracer) StopTracing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.isTracing = false
	t.polling = make(map[string]float64)
	t.backend.Flush()
}

// Terminate flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.Flush()
}

// Func records the event the hook fires for.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isTracing {
		return
	}

	now := t.now().Sub(t.start).Seconds()

	task, ok := ctx.Item.(*executor.Task)
	if !ok {
		t.recordPeripheralEvent(now, ctx)
		return
	}

	switch ctx.Pos {
	case executor.HookPosBeforePoll:
		t.polling[task.ID()] = now
	case executor.HookPosAfterPoll:
		t.recordPoll(now, task, ctx.Detail)
	default:
		t.backend.InsertData(TaskEventTable, taskEventEntry{
			Time:  now,
			Task:  task.ID(),
			Name:  task.Name(),
			Event: ctx.Pos.Name,
			Polls: task.Polls(),
		})
	}
}

func (t *DBTracer) recordPoll(now float64, task *executor.Task, detail any) {
	start, ok := t.polling[task.ID()]
	if !ok {
		return
	}

	delete(t.polling, task.ID())

	completed, _ := detail.(bool)

	t.backend.InsertData(PollTable, pollEntry{
		Task:      task.ID(),
		Name:      task.Name(),
		StartTime: start,
		EndTime:   now,
		Completed: completed,
	})
}

func (t *DBTracer) recordPeripheralEvent(now float64, ctx hooking.HookCtx) {
	t.backend.InsertData(PeripheralEventTable, peripheralEventEntry{
		Time:   now,
		Source: sourceName(ctx.Domain),
		Event:  ctx.Pos.Name,
		Item:   describe(ctx.Item),
		Detail: describe(ctx.Detail),
	})
}

func sourceName(domain hooking.Hookable) string {
	if named, ok := domain.(interface{ Name() string }); ok {
		return named.Name()
	}

	return fmt.Sprintf("%T", domain)
}

func describe(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprint(v)
}

var _ hooking.Hook = (*DBTracer)(nil)
