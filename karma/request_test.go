package karma_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/karma"
)

var _ = Describe("RequestFuture", func() {
	var (
		dev   *lamp
		k     *lampKarma
		waker *countingWaker
		cx    *future.Context
	)

	BeforeEach(func() {
		dev = newLamp(false)
		k = wrap(dev)
		waker = &countingWaker{}
		cx = future.NewContext(waker)
	})

	It("should send and log the command when created", func() {
		_, err := k.Command(start)

		Expect(err).NotTo(HaveOccurred())
		Expect(dev.issuedKinds()).To(Equal([]string{"start"}))
		Expect(historyKinds(k)).To(Equal([]string{"start"}))
	})

	It("should complete at once when no response is expected", func() {
		f, err := karma.NewCommand(k, toggle)
		Expect(err).NotTo(HaveOccurred())

		p := f.Poll(cx)

		Expect(p.IsReady()).To(BeTrue())
		res, _ := p.Value()
		Expect(res.HasMsg).To(BeFalse())
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(dev.Wakers().Len()).To(Equal(0))
	})

	It("should wait for the matching response", func() {
		f, _ := k.Command(start)

		Expect(f.Poll(cx).IsReady()).To(BeFalse())
		Expect(dev.Wakers().Len()).To(Equal(1))

		dev.deliver(startDone)
		Expect(waker.count()).To(Equal(1))

		p := f.Poll(cx)
		Expect(p.IsReady()).To(BeTrue())
		res, _ := p.Value()
		Expect(res.HasMsg).To(BeTrue())
		Expect(res.Msg).To(Equal(startDone))
		Expect(historyKinds(k)).To(Equal([]string{"start", "start-done"}))
	})

	It("should leave non-matching responses buffered", func() {
		dev.deliver(data)
		dev.deliver(startDone)

		f, _ := k.Command(start)
		res, _ := f.Poll(cx).Value()
		Expect(res.Msg).To(Equal(startDone))
		Expect(dev.Interrupts().Snapshot()).To(Equal([]lampOutput{data}))

		await := k.AwaitData()
		p := await.Poll(cx)
		Expect(p.IsReady()).To(BeTrue())
		res, _ = p.Value()
		Expect(res.Msg).To(Equal(data))
		Expect(dev.Interrupts().Len()).To(Equal(0))
	})

	It("should not log responses without state effect", func() {
		for i := 0; i < 3; i++ {
			dev.deliver(data)
			Expect(k.AwaitData().Poll(cx).IsReady()).To(BeTrue())
		}

		Expect(k.History().Len()).To(Equal(0))
	})

	It("should grow the history by one per input and matched output", func() {
		dev.setState(ready)

		f, _ := k.Command(flash)
		Expect(k.History().Len()).To(Equal(1))

		dev.deliver(flashDone)
		Expect(f.Poll(cx).IsReady()).To(BeTrue())
		Expect(k.History().Len()).To(Equal(2))
	})

	It("should fail when the device goes away while waiting", func() {
		f := k.AwaitData()
		Expect(f.Poll(cx).IsReady()).To(BeFalse())

		dev.fail(karma.ErrDisconnected)
		Expect(waker.count()).To(Equal(1))

		p := f.Poll(cx)
		Expect(p.IsReady()).To(BeTrue())
		res, _ := p.Value()
		Expect(res.HasMsg).To(BeFalse())
		Expect(res.Err).To(MatchError(karma.ErrDisconnected))
	})

	It("should refuse to send to a disconnected device", func() {
		dev.fail(karma.ErrDisconnected)

		f, err := k.Command(start)

		Expect(f).To(BeNil())
		Expect(errors.Is(err, karma.ErrDisconnected)).To(BeTrue())
		Expect(k.History().Len()).To(Equal(0))
	})

	It("should return the same result when polled after completion", func() {
		dev.deliver(startDone)
		f, _ := k.Command(start)

		first, _ := f.Poll(cx).Value()
		dev.deliver(startDone)
		second, _ := f.Poll(cx).Value()

		Expect(second).To(Equal(first))
		Expect(dev.Interrupts().Len()).To(Equal(1))
	})
})
