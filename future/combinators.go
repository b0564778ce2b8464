package future

// Done returns a future that is immediately ready with v.
func Done[T any](v T) Future[T] {
	return Func[T](func(*Context) Poll[T] {
		return Ready(v)
	})
}

// Lazy defers building a future until it is first polled. Futures whose
// construction has side effects, such as sending a command to a peripheral,
// are usually wrapped with Lazy so the side effect happens inside the task.
func Lazy[T any](build func() Future[T]) Future[T] {
	return &lazy[T]{build: build}
}

type lazy[T any] struct {
	build func() Future[T]
	inner Future[T]
}

func (l *lazy[T]) Poll(cx *Context) Poll[T] {
	if l.inner == nil {
		l.inner = l.build()
		l.build = nil
	}

	return l.inner.Poll(cx)
}

// Then runs first, and once it is ready, builds and runs the future returned
// by next.
func Then[A, B any](first Future[A], next func(A) Future[B]) Future[B] {
	return &then[A, B]{first: first, next: next}
}

type then[A, B any] struct {
	first  Future[A]
	next   func(A) Future[B]
	second Future[B]
}

func (t *then[A, B]) Poll(cx *Context) Poll[B] {
	if t.second == nil {
		a, ok := t.first.Poll(cx).Value()
		if !ok {
			return Pending[B]()
		}

		t.second = t.next(a)
		t.first = nil
		t.next = nil
	}

	return t.second.Poll(cx)
}

// Map transforms the value of f with fn.
func Map[A, B any](f Future[A], fn func(A) B) Future[B] {
	return Func[B](func(cx *Context) Poll[B] {
		a, ok := f.Poll(cx).Value()
		if !ok {
			return Pending[B]()
		}

		return Ready(fn(a))
	})
}

// Discard turns any future into one that only signals completion, which is
// the shape the executor spawns.
func Discard[T any](f Future[T]) Future[Unit] {
	return Map(f, func(T) Unit { return Unit{} })
}

// Join polls every future on each poll and becomes ready once all of them are
// ready. Results keep the order of fs.
func Join[T any](fs ...Future[T]) Future[[]T] {
	return &join[T]{
		futures: fs,
		results: make([]T, len(fs)),
		done:    make([]bool, len(fs)),
	}
}

type join[T any] struct {
	futures []Future[T]
	results []T
	done    []bool
}

func (j *join[T]) Poll(cx *Context) Poll[[]T] {
	allDone := true

	for i, f := range j.futures {
		if j.done[i] {
			continue
		}

		v, ok := f.Poll(cx).Value()
		if !ok {
			allDone = false
			continue
		}

		j.results[i] = v
		j.done[i] = true
		j.futures[i] = nil
	}

	if !allDone {
		return Pending[[]T]()
	}

	return Ready(j.results)
}

// Repeat runs the futures built by step one after another, n times. A
// negative n repeats forever.
func Repeat(n int, step func(i int) Future[Unit]) Future[Unit] {
	return &repeat{n: n, step: step}
}

type repeat struct {
	n       int
	i       int
	step    func(i int) Future[Unit]
	current Future[Unit]
}

func (r *repeat) Poll(cx *Context) Poll[Unit] {
	for r.n < 0 || r.i < r.n {
		if r.current == nil {
			r.current = r.step(r.i)
		}

		if !r.current.Poll(cx).IsReady() {
			return Pending[Unit]()
		}

		r.current = nil
		r.i++
	}

	return Ready(Unit{})
}
