package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type report struct {
	Condition string  `json:"condition"`
	TempF     float64 `json:"temp_f"`
}

func TestLoader_HitAfterMiss(t *testing.T) {
	l := NewLoader[report](NewMemoryCache(DefaultPolicy()), DefaultPolicy())
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(context.Context) (report, error) {
		calls.Add(1)
		return report{Condition: "Sunny", TempF: 72}, nil
	}

	v, outcome, err := l.Load(ctx, "weather:london", fetch)
	if err != nil || outcome != Miss || v.Condition != "Sunny" {
		t.Fatalf("first Load() = %+v, %v, %v", v, outcome, err)
	}
	v, outcome, err = l.Load(ctx, "weather:london", fetch)
	if err != nil || outcome != Hit || v.TempF != 72 {
		t.Fatalf("second Load() = %+v, %v, %v", v, outcome, err)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch called %d times, want 1", calls.Load())
	}
	if s := l.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestLoader_ErrorsAreNotCached(t *testing.T) {
	l := NewLoader[report](NewMemoryCache(DefaultPolicy()), DefaultPolicy())
	ctx := context.Background()
	boom := errors.New("upstream down")

	if _, _, err := l.Load(ctx, "k", func(context.Context) (report, error) { return report{}, boom }); !errors.Is(err, boom) {
		t.Fatalf("Load() error = %v, want %v", err, boom)
	}
	v, outcome, err := l.Load(ctx, "k", func(context.Context) (report, error) { return report{Condition: "Rain"}, nil })
	if err != nil || outcome != Miss || v.Condition != "Rain" {
		t.Errorf("Load() after error = %+v, %v, %v", v, outcome, err)
	}
	if l.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", l.Stats().Errors)
	}
}

func TestLoader_CollapsesConcurrentMisses(t *testing.T) {
	l := NewLoader[report](NewMemoryCache(DefaultPolicy()), DefaultPolicy())
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (report, error) {
		calls.Add(1)
		<-release
		return report{Condition: "Cloudy"}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, outcomes[i], _ = l.Load(ctx, "k", fetch)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch called %d times, want 1", calls.Load())
	}
	shared := 0
	for _, o := range outcomes {
		if o == Shared {
			shared++
		}
	}
	if shared == 0 {
		t.Errorf("outcomes = %v, expected shared results", outcomes)
	}
}

func TestLoader_WaiterCancellation(t *testing.T) {
	l := NewLoader[report](NewMemoryCache(DefaultPolicy()), DefaultPolicy())

	release := make(chan struct{})
	defer close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := l.Load(ctx, "k", func(context.Context) (report, error) {
		<-release
		return report{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Load() error = %v, want deadline exceeded", err)
	}
}

func TestLoader_NoCachePolicy(t *testing.T) {
	l := NewLoader[report](NewMemoryCache(DefaultPolicy()), NoCachePolicy())
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(context.Context) (report, error) {
		calls.Add(1)
		return report{}, nil
	}
	_, _, _ = l.Load(ctx, "k", fetch)
	_, outcome, _ := l.Load(ctx, "k", fetch)
	if outcome != Miss || calls.Load() != 2 {
		t.Errorf("outcome = %v, calls = %d", outcome, calls.Load())
	}
	if l.TTL() != 0 {
		t.Errorf("TTL() = %v, want 0", l.TTL())
	}
}

func TestLoader_CorruptEntryRefetches(t *testing.T) {
	mc := NewMemoryCache(DefaultPolicy())
	ctx := context.Background()
	_ = mc.Set(ctx, "k", []byte("not json"), time.Minute)

	l := NewLoader[report](mc, DefaultPolicy())
	v, outcome, err := l.Load(ctx, "k", func(context.Context) (report, error) {
		return report{Condition: "Fog"}, nil
	})
	if err != nil || outcome != Miss || v.Condition != "Fog" {
		t.Errorf("Load() = %+v, %v, %v", v, outcome, err)
	}
}

func TestLoader_InvalidKey(t *testing.T) {
	l := NewLoader[report](nil, DefaultPolicy())
	_, _, err := l.Load(context.Background(), "", func(context.Context) (report, error) { return report{}, nil })
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Load() error = %v, want ErrInvalidKey", err)
	}
	if err := l.Invalidate(context.Background(), "k"); !errors.Is(err, ErrNilCache) {
		t.Errorf("Invalidate() error = %v, want ErrNilCache", err)
	}
}

func TestOutcome_String(t *testing.T) {
	for o, want := range map[Outcome]string{Hit: "hit", Miss: "miss", Shared: "shared"} {
		if o.String() != want {
			t.Errorf("%d.String() = %q, want %q", o, o.String(), want)
		}
	}
}
