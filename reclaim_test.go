package softpool

import (
	"context"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/softpool/config"
)

func TestBorrowSkipsReclaimedHandleAndCreatesFresh(t *testing.T) {
	ctx := context.Background()
	f := new(testFactory)
	p := newTestPool(t, f, nil)

	v, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.Equal(t, "0", v)
	require.NoError(t, p.Return(ctx, v))
	require.Equal(t, 1, p.Size())

	// The idle box is only weakly reachable now; a collection cycle stands in
	// for the runtime reclaiming it under memory pressure.
	runtime.GC()
	runtime.GC()

	next, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", next, "stale handle must be skipped in favor of a fresh create")

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.reclaimed, 1, "factory must be notified of the reclaimed handle")
	require.NotEmpty(t, f.reclaimed[0].ID)
	require.False(t, f.reclaimed[0].IdledAt.IsZero())
	require.Empty(t, f.destroyed, "reclaimed referent cannot be destroyed, only reported")
}

func TestClearReportsReclaimedHandles(t *testing.T) {
	ctx := context.Background()
	f := new(testFactory)
	p := newTestPool(t, f, nil)

	v, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, v))

	runtime.GC()
	runtime.GC()

	p.Clear(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.reclaimed, 1)
	require.Empty(t, f.destroyed)
}

func TestSizeOvercountsUntilStaleHandlePopped(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, new(testFactory), nil)

	v, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, v))

	runtime.GC()
	runtime.GC()

	// Lazy detection: the stale handle still counts until a borrow pops it.
	require.Equal(t, 1, p.Size())
	_, err = p.Borrow(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, p.Size())
}

func TestConcurrentBorrowReturnExclusivity(t *testing.T) {
	const workers = 8
	const iterations = 50

	ctx := context.Background()
	p := newTestPool(t, new(testFactory), nil)

	var inUseMu sync.Mutex
	inUse := make(map[string]bool)

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				v, err := p.Borrow(ctx)
				if err != nil {
					errCh <- err
					return
				}

				inUseMu.Lock()
				if inUse[v] {
					inUseMu.Unlock()
					errCh <- errDoubleHandOut(v)
					return
				}
				inUse[v] = true
				inUseMu.Unlock()

				inUseMu.Lock()
				delete(inUse, v)
				inUseMu.Unlock()

				if err := p.Return(ctx, v); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Equal(t, 0, p.NumActive())
	require.LessOrEqual(t, p.Size(), workers)
}

type errDoubleHandOut string

func (e errDoubleHandOut) Error() string {
	return "object handed to two concurrent borrowers: " + string(e)
}

func TestConcurrentClearDoesNotBlockBorrows(t *testing.T) {
	ctx := context.Background()
	f := new(testFactory)
	p := newTestPool(t, f, func(cfg *config.Settings) {
		cfg.DestroyConcurrency = 2
	})

	var seed []string
	for i := 0; i < 16; i++ {
		v, err := p.Borrow(ctx)
		require.NoError(t, err)
		seed = append(seed, v)
	}
	for _, v := range seed {
		require.NoError(t, p.Return(ctx, v))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Clear(ctx)
	}()

	v, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, v))
	<-done

	require.Equal(t, 0, p.NumActive())
}
