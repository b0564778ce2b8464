package karma_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/karma"
)

var _ = Describe("Replay", func() {
	var (
		dev   *lamp
		k     *lampKarma
		waker *countingWaker
		cx    *future.Context
	)

	BeforeEach(func() {
		dev = newLamp(true)
		k = wrap(dev)
		waker = &countingWaker{}
		cx = future.NewContext(waker)
	})

	issueAll := func(cmds ...lampInput) {
		for _, cmd := range cmds {
			f, err := k.Command(cmd)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Poll(cx).IsReady()).To(BeTrue())
		}
	}

	It("should do nothing without a logged session", func() {
		p := k.Replay().Poll(cx)

		Expect(p.IsReady()).To(BeTrue())
		res, _ := p.Value()
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(res.Report.From).To(Equal(-1))
	})

	It("should rebuild the state after a power cycle", func() {
		issueAll(start, toggle, untoggle, flash, toggle)
		Expect(dev.CurrentState()).To(Equal(busy))
		logged := k.History().Len()

		k.PowerCycle()
		Expect(dev.CurrentState()).To(Equal(idle))

		p := k.Replay().Poll(cx)

		Expect(p.IsReady()).To(BeTrue())
		res, _ := p.Value()
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(res.Report).To(Equal(karma.ReplayReport{
			From:     0,
			Reissued: 4,
			Skipped:  1,
		}))
		Expect(dev.CurrentState()).To(Equal(busy))
		Expect(k.History().Len()).To(Equal(logged))
		Expect(dev.issuedKinds()).To(Equal([]string{
			"start", "toggle", "untoggle", "flash", "toggle",
			"start", "toggle", "untoggle", "toggle",
		}))
	})

	It("should replay only the newest session", func() {
		issueAll(start, toggle)
		k.PowerCycle()
		issueAll(start)
		k.PowerCycle()

		res, _ := k.Replay().Poll(cx).Value()

		Expect(res.Err).NotTo(HaveOccurred())
		Expect(res.Report.From).To(Equal(3))
		Expect(res.Report.Reissued).To(Equal(1))
		Expect(dev.CurrentState()).To(Equal(ready))
	})

	It("should wait until the device is reset", func() {
		issueAll(start)

		f := k.Replay()
		Expect(f.Poll(cx).IsReady()).To(BeFalse())

		k.PowerCycle()
		Expect(waker.count()).To(BeNumerically(">=", 1))

		p := f.Poll(cx)
		Expect(p.IsReady()).To(BeTrue())
		Expect(dev.CurrentState()).To(Equal(ready))
	})

	It("should report a history the device cannot follow", func() {
		dev = newLamp(false)
		k = wrap(dev)

		_, err := k.Command(start)
		Expect(err).NotTo(HaveOccurred())
		_, err = k.Command(untoggle)
		Expect(err).NotTo(HaveOccurred())
		dev.deliver(startDone)

		res, _ := k.Replay().Poll(cx).Value()

		Expect(res.Err).To(MatchError(karma.ErrReplayDiverged))
	})

	It("should stop when the device goes away", func() {
		issueAll(start)
		f := k.Replay()
		Expect(f.Poll(cx).IsReady()).To(BeFalse())

		dev.fail(karma.ErrDisconnected)

		res, _ := f.Poll(cx).Value()
		Expect(res.Err).To(MatchError(karma.ErrDisconnected))
	})
})
