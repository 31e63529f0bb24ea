package flow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestForEachKeepsOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	var inFlight, peak int32
	res, err := forEach(context.Background(), 2, items, func(ctx context.Context, n int) (int, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(time.Duration(n) * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return n * 10, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{50, 10, 40, 20, 30}, res)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	_, err := forEach(context.Background(), 0, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	require.ErrorIs(t, err, boom)

	res, err := forEach(context.Background(), 4, []int(nil), func(ctx context.Context, n int) (int, error) {
		return n, nil
	})
	require.NoError(t, err)
	require.Empty(t, res)
}
