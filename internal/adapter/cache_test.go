package adapter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"thoth/internal/task"
)

func countingProvider(calls *atomic.Int64) *fakeProvider {
	return &fakeProvider{ops: map[string]OperationFunc{
		"lookup": func(_ context.Context, params map[string]any) (map[string]any, error) {
			calls.Add(1)
			return map[string]any{"hit": params["key"]}, nil
		},
		"write": func(_ context.Context, _ map[string]any) (map[string]any, error) {
			calls.Add(1)
			return map[string]any{}, nil
		},
		"restore": func(context.Context, map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}}
}

func TestCachedExecutorServesRepeatsFromCache(t *testing.T) {
	var calls atomic.Int64
	a, err := New("search", countingProvider(&calls), map[string]Capability{
		"retrieve": {Operation: "lookup"},
	})
	if err != nil {
		t.Fatal(err)
	}
	cached, err := NewCached(a, CacheConfig{MaxSize: 8, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	params := map[string]any{"key": "transformers"}
	first, err := cached.Execute(context.Background(), task.New("retrieve", params))
	if err != nil || !first.Succeeded() {
		t.Fatalf("first execution failed: %v %+v", err, first)
	}
	second, err := cached.Execute(context.Background(), task.New("retrieve", params))
	if err != nil || !second.Succeeded() {
		t.Fatalf("second execution failed: %v %+v", err, second)
	}

	if calls.Load() != 1 {
		t.Fatalf("expected 1 provider call, got %d", calls.Load())
	}
	if second.Data["hit"] != "transformers" {
		t.Fatalf("cached data corrupted: %v", second.Data)
	}
	if second.TaskID == first.TaskID {
		t.Fatalf("cached result must carry the new task id")
	}
}

func TestCachedExecutorDistinguishesParams(t *testing.T) {
	var calls atomic.Int64
	a, err := New("search", countingProvider(&calls), map[string]Capability{
		"retrieve": {Operation: "lookup"},
	})
	if err != nil {
		t.Fatal(err)
	}
	cached, err := NewCached(a, CacheConfig{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cached.Execute(context.Background(), task.New("retrieve", map[string]any{"key": "a"})); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Execute(context.Background(), task.New("retrieve", map[string]any{"key": "b"})); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("different params must not share cache entries, calls=%d", calls.Load())
	}
}

func TestCachedExecutorNeverCachesMutating(t *testing.T) {
	var calls atomic.Int64
	a, err := New("store", countingProvider(&calls), map[string]Capability{
		"store_write":   {Operation: "write", Mutating: true, Compensator: "store_restore", Footprint: "key"},
		"store_restore": {Operation: "restore"},
	})
	if err != nil {
		t.Fatal(err)
	}
	cached, err := NewCached(a, CacheConfig{})
	if err != nil {
		t.Fatal(err)
	}

	params := map[string]any{"key": "k", "value": "v"}
	for i := 0; i < 3; i++ {
		if _, err := cached.Execute(context.Background(), task.New("store_write", params)); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("mutating capability was cached, calls=%d", calls.Load())
	}
}

func TestCachedExecutorTTLExpiry(t *testing.T) {
	var calls atomic.Int64
	a, err := New("search", countingProvider(&calls), map[string]Capability{
		"retrieve": {Operation: "lookup"},
	})
	if err != nil {
		t.Fatal(err)
	}
	cached, err := NewCached(a, CacheConfig{TTL: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	params := map[string]any{"key": "a"}
	if _, err := cached.Execute(context.Background(), task.New("retrieve", params)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cached.Execute(context.Background(), task.New("retrieve", params)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expired entry should have been refreshed, calls=%d", calls.Load())
	}
}
