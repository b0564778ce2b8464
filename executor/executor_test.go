package executor_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/hooking"
)

// manualFuture stays pending until complete is called.
type manualFuture struct {
	mu    sync.Mutex
	ready bool
	waker future.Waker
	polls int
}

func (f *manualFuture) Poll(cx *future.Context) future.Poll[future.Unit] {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.ready {
		return future.Ready(future.Unit{})
	}

	f.waker = cx.Waker()

	return future.Pending[future.Unit]()
}

func (f *manualFuture) complete() {
	f.mu.Lock()
	f.ready = true
	w := f.waker
	f.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

func (f *manualFuture) numPolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.polls
}

func (f *manualFuture) currentWaker() future.Waker {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.waker
}

type recordingHook struct {
	mu  sync.Mutex
	pos []*hooking.HookPos
}

func (h *recordingHook) Func(ctx hooking.HookCtx) {
	h.mu.Lock()
	h.pos = append(h.pos, ctx.Pos)
	h.mu.Unlock()
}

func (h *recordingHook) positions() []*hooking.HookPos {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]*hooking.HookPos(nil), h.pos...)
}

var _ = Describe("Executor", func() {
	var (
		exec    *executor.Executor
		spawner *executor.Spawner
		ctx     context.Context
		cancel  context.CancelFunc
	)

	BeforeEach(func() {
		exec, spawner = executor.New()
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	It("should run tasks in FIFO order and stop once the spawner closes", func() {
		var order []int
		for i := 0; i < 3; i++ {
			i := i
			spawner.Spawn(future.Func[future.Unit](
				func(*future.Context) future.Poll[future.Unit] {
					order = append(order, i)
					return future.Ready(future.Unit{})
				}))
		}
		spawner.Close()

		Expect(exec.Run(ctx)).To(Succeed())
		Expect(order).To(Equal([]int{0, 1, 2}))
		Expect(exec.Stats().Completed).To(Equal(uint64(3)))
	})

	It("should only poll a pending task again after it is woken", func() {
		f := &manualFuture{}
		spawner.Spawn(f)
		spawner.Close()

		errc := exec.Go(ctx)

		Eventually(f.numPolls).Should(Equal(1))
		Consistently(f.numPolls, 100*time.Millisecond).Should(Equal(1))

		f.complete()

		Eventually(errc).Should(Receive(BeNil()))
		Expect(f.numPolls()).To(Equal(2))
	})

	It("should ignore duplicate and late wakes", func() {
		f := &manualFuture{}
		spawner.Spawn(f)
		errc := exec.Go(ctx)

		Eventually(f.currentWaker).ShouldNot(BeNil())
		w := f.currentWaker()

		f.complete()
		w.Wake()
		w.Wake()

		spawner.Close()
		Eventually(errc).Should(Receive(BeNil()))

		Expect(func() { w.Wake() }).NotTo(Panic())
		Expect(f.numPolls()).To(BeNumerically("<=", 3))
	})

	It("should keep running while a task is pending after the spawner closed", func() {
		f := &manualFuture{}
		spawner.Spawn(f)
		spawner.Close()

		errc := exec.Go(ctx)
		Consistently(errc, 100*time.Millisecond).ShouldNot(Receive())

		f.complete()
		Eventually(errc).Should(Receive(BeNil()))
	})

	It("should abandon pending tasks when the context is cancelled", func() {
		f := &manualFuture{}
		spawner.Spawn(f)

		runCtx, stop := context.WithCancel(ctx)
		errc := exec.Go(runCtx)
		Eventually(f.numPolls).Should(Equal(1))

		stop()

		Eventually(errc).Should(Receive(MatchError(context.Canceled)))
		Expect(exec.Tasks()).To(HaveLen(1))
	})

	It("should complete timer tasks regardless of spawn order", func() {
		durations := []time.Duration{
			120 * time.Millisecond,
			30 * time.Millisecond,
			80 * time.Millisecond,
			10 * time.Millisecond,
		}

		var (
			mu      sync.Mutex
			elapsed = make(map[int]time.Duration)
		)

		for i, d := range durations {
			i, d := i, d
			start := time.Now()
			timer := future.NewTimer(d)
			spawner.Spawn(future.Map[time.Time, future.Unit](timer,
				func(time.Time) future.Unit {
					mu.Lock()
					elapsed[i] = time.Since(start)
					mu.Unlock()

					return future.Unit{}
				}))
		}
		spawner.Close()

		Expect(exec.Run(ctx)).To(Succeed())
		Expect(elapsed).To(HaveLen(len(durations)))
		for i, d := range durations {
			Expect(elapsed[i]).To(BeNumerically(">=", d))
		}
	})

	It("should panic when the run queue overflows", func() {
		exec, spawner = executor.MakeBuilder().WithCapacity(1).Build()
		spawner.Spawn(future.Done(future.Unit{}))

		Expect(func() {
			spawner.Spawn(future.Done(future.Unit{}))
		}).To(PanicWith(executor.ErrQueueFull))
	})

	It("should refuse to spawn on a closed spawner", func() {
		spawner.Close()

		Expect(func() {
			spawner.Spawn(future.Done(future.Unit{}))
		}).To(PanicWith(executor.ErrSpawnerClosed))
	})

	It("should deliver values through handles", func() {
		h := executor.SpawnHandle(spawner, future.Done(7))
		spawner.Close()

		_, ok := h.Value()
		Expect(ok).To(BeFalse())

		Expect(exec.Run(ctx)).To(Succeed())

		v, err := h.Wait(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(7))
	})

	It("should not poll while paused", func() {
		errc := exec.Go(ctx)
		exec.Pause()
		Expect(exec.IsPaused()).To(BeTrue())

		h := executor.SpawnHandle(spawner, future.Done("x"))
		Consistently(h.Done(), 100*time.Millisecond).ShouldNot(BeClosed())

		exec.Continue()
		Eventually(h.Done()).Should(BeClosed())

		spawner.Close()
		Eventually(errc).Should(Receive(BeNil()))
	})

	It("should stop on cancellation while paused", func() {
		runCtx, stop := context.WithCancel(ctx)
		errc := exec.Go(runCtx)
		exec.Pause()

		h := executor.SpawnHandle(spawner, future.Done("x"))
		Consistently(errc, 100*time.Millisecond).ShouldNot(Receive())

		stop()

		Eventually(errc).Should(Receive(MatchError(context.Canceled)))
		Expect(h.Done()).NotTo(BeClosed())
		Expect(exec.IsPaused()).To(BeTrue())

		exec.Continue()
		Expect(exec.IsPaused()).To(BeFalse())
	})

	It("should invoke hooks around every poll", func() {
		hook := &recordingHook{}
		exec, spawner = executor.MakeBuilder().WithHook(hook).Build()

		f := &manualFuture{}
		spawner.Spawn(f)
		spawner.Close()
		errc := exec.Go(ctx)

		Eventually(func() int { return len(hook.positions()) }).Should(Equal(3))
		f.complete()
		Eventually(errc).Should(Receive(BeNil()))

		Expect(hook.positions()).To(Equal([]*hooking.HookPos{
			executor.HookPosTaskSpawn,
			executor.HookPosBeforePoll,
			executor.HookPosAfterPoll,
			executor.HookPosTaskWake,
			executor.HookPosBeforePoll,
			executor.HookPosAfterPoll,
			executor.HookPosTaskDone,
		}))
	})
})
