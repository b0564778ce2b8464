package future_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/karma/future"
	"go.uber.org/mock/gomock"
)

type countingWaker struct {
	count atomic.Int32
}

func (w *countingWaker) Wake() {
	w.count.Add(1)
}

// gate is a future that stays pending until it is opened.
type gate[T any] struct {
	open  bool
	value T
	polls int
}

func (g *gate[T]) Poll(*future.Context) future.Poll[T] {
	g.polls++
	if !g.open {
		return future.Pending[T]()
	}

	return future.Ready(g.value)
}

var _ = Describe("Poll", func() {
	It("should carry a value only when ready", func() {
		v, ok := future.Ready(3).Value()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(3))

		_, ok = future.Pending[int]().Value()
		Expect(ok).To(BeFalse())
		Expect(future.Pending[int]().IsReady()).To(BeFalse())
	})
})

var _ = Describe("Combinators", func() {
	var cx *future.Context

	BeforeEach(func() {
		cx = future.NewContext(&countingWaker{})
	})

	It("should chain with Then", func() {
		first := &gate[int]{value: 2}
		built := 0
		f := future.Then[int, int](first, func(v int) future.Future[int] {
			built++
			return future.Done(v * 10)
		})

		Expect(f.Poll(cx).IsReady()).To(BeFalse())
		Expect(built).To(Equal(0))

		first.open = true
		v, ok := f.Poll(cx).Value()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(20))
		Expect(built).To(Equal(1))
	})

	It("should build lazily", func() {
		built := false
		f := future.Lazy(func() future.Future[string] {
			built = true
			return future.Done("x")
		})

		Expect(built).To(BeFalse())
		v, _ := f.Poll(cx).Value()
		Expect(built).To(BeTrue())
		Expect(v).To(Equal("x"))
	})

	It("should map values", func() {
		f := future.Map(future.Done(4), func(v int) string { return string(rune('a' + v)) })

		v, ok := f.Poll(cx).Value()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("e"))
	})

	It("should hand the poller's waker to a Func", func() {
		w := &countingWaker{}
		f := future.Func[int](func(cx *future.Context) future.Poll[int] {
			cx.Waker().Wake()
			return future.Pending[int]()
		})

		Expect(f.Poll(future.NewContext(w)).IsReady()).To(BeFalse())
		Expect(w.count.Load()).To(Equal(int32(1)))
	})

	It("should discard values but keep completion", func() {
		g := &gate[string]{value: "dropped"}
		f := future.Discard[string](g)

		Expect(f.Poll(cx).IsReady()).To(BeFalse())
		g.open = true
		Expect(f.Poll(cx)).To(Equal(future.Ready(future.Unit{})))
	})

	It("should join in order and stop polling finished futures", func() {
		a := &gate[int]{value: 1, open: true}
		b := &gate[int]{value: 2}
		f := future.Join[int](a, b)

		Expect(f.Poll(cx).IsReady()).To(BeFalse())
		b.open = true

		v, ok := f.Poll(cx).Value()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal([]int{1, 2}))
		Expect(a.polls).To(Equal(1))
	})

	It("should repeat steps in sequence", func() {
		var order []int
		gates := []*gate[future.Unit]{{}, {}, {}}
		f := future.Repeat(3, func(i int) future.Future[future.Unit] {
			order = append(order, i)
			return gates[i]
		})

		Expect(f.Poll(cx).IsReady()).To(BeFalse())
		gates[0].open = true
		gates[1].open = true
		Expect(f.Poll(cx).IsReady()).To(BeFalse())
		Expect(order).To(Equal([]int{0, 1, 2}))

		gates[2].open = true
		Expect(f.Poll(cx).IsReady()).To(BeTrue())
	})
})

var _ = Describe("WakerList", func() {
	var (
		mockCtrl *gomock.Controller
		list     *future.WakerList
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		list = future.NewWakerList()
	})

	It("should wake every registered waker once and drain", func() {
		w1 := NewMockWaker(mockCtrl)
		w2 := NewMockWaker(mockCtrl)
		w1.EXPECT().Wake().Times(1)
		w2.EXPECT().Wake().Times(1)

		list.Register(w1)
		list.Register(w2)
		Expect(list.Len()).To(Equal(2))

		Expect(list.WakeAll()).To(Equal(2))
		Expect(list.Len()).To(Equal(0))
		Expect(list.WakeAll()).To(Equal(0))
	})

	It("should ignore nil wakers", func() {
		list.Register(nil)
		Expect(list.Len()).To(Equal(0))
	})
})

var _ = Describe("Timer", func() {
	It("should become ready after the duration and wake the poller", func() {
		w := &countingWaker{}
		cx := future.NewContext(w)
		start := time.Now()
		t := future.NewTimer(20 * time.Millisecond)

		Expect(t.Poll(cx).IsReady()).To(BeFalse())
		Eventually(w.count.Load).Should(Equal(int32(1)))

		firedAt, ok := t.Poll(cx).Value()
		Expect(ok).To(BeTrue())
		Expect(firedAt.Sub(start)).To(BeNumerically(">=", 20*time.Millisecond))
	})

	It("should never fire once stopped", func() {
		t := future.NewTimer(time.Hour)
		Expect(t.Stop()).To(BeTrue())
		Expect(t.Poll(future.NewContext(&countingWaker{})).IsReady()).To(BeFalse())
	})
})
