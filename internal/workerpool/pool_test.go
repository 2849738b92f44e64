package workerpool

import (
	"sync/atomic"
	"testing"
)

func TestSpawnRunsAllTasks(t *testing.T) {
	p := New(4)

	var count int64
	for i := 0; i < 100; i++ {
		p.Spawn(func() { atomic.AddInt64(&count, 1) })
	}
	p.Join()

	if got := atomic.LoadInt64(&count); got != 100 {
		t.Errorf("count = %d, want 100", got)
	}
}

func TestSpawnWithFuture(t *testing.T) {
	p := New(2)
	defer p.Join()

	f := SpawnWithFuture(p, func() int { return 21 * 2 })
	if got := f.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}
}

func TestTransform(t *testing.T) {
	p := New(3)
	defer p.Join()

	items := []int{1, 2, 3, 4, 5}
	futures := Transform(p, items, func(n int) int { return n * n })

	for i, f := range futures {
		want := items[i] * items[i]
		if got := f.Get(); got != want {
			t.Errorf("futures[%d] = %d, want %d", i, got, want)
		}
	}
}

func TestForEach(t *testing.T) {
	p := New(4)
	defer p.Join()

	var count int64
	ForEach(p, []int{1, 2, 3, 4, 5, 6}, func(int) {
		atomic.AddInt64(&count, 1)
	})

	if got := atomic.LoadInt64(&count); got != 6 {
		t.Errorf("count = %d, want 6", got)
	}
}

func TestJoinStopsWorkers(t *testing.T) {
	p := New(2)
	p.Spawn(func() {})
	p.Join()

	// A second Join should not deadlock or panic even with no more
	// workers running.
	p.Join()
}
