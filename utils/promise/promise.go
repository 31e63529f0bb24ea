package promise

import (
	"sync"
	"sync/atomic"
)

// Promise is the one-shot result of the item at Index of a batch. Get blocks
// until Done.
type Promise[T any] struct {
	index   int
	lock    sync.Mutex
	err     error
	res     T
	pending atomic.Bool
}

func New[T any](index int) *Promise[T] {
	res := &Promise[T]{index: index}
	res.pending.Store(true)
	res.lock.Lock()
	return res
}

func (p *Promise[T]) Index() int {
	return p.index
}

func (p *Promise[T]) Get() (T, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.res, p.err
}

// Done settles the promise. Only the first call counts, later ones return
// false and leave the result as it was.
func (p *Promise[T]) Done(res T, err error) bool {
	if !p.pending.CompareAndSwap(true, false) {
		return false
	}
	p.res = res
	p.err = err
	p.lock.Unlock()
	return true
}

// Collect waits for every promise and places each result at its index in a
// slice of size n. Nil promises leave a zero value. The error of the lowest
// failed index wins.
func Collect[T any](n int, promises []*Promise[T]) ([]T, error) {
	res := make([]T, n)
	for _, p := range promises {
		if p == nil {
			continue
		}
		v, err := p.Get()
		if err != nil {
			return nil, err
		}
		res[p.index] = v
	}
	return res, nil
}
