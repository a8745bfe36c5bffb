package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	m := NewMemory()
	m.Set("k", "v", time.Minute)

	got, ok := m.Get("k")
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.(string) != "v" {
		t.Fatalf("unexpected value %v", got)
	}
}

func TestGetMissing(t *testing.T) {
	m := NewMemory()
	if _, ok := m.Get("absent"); ok {
		t.Fatalf("expected miss")
	}
}

func TestExpiredEntryEvicted(t *testing.T) {
	m := NewMemory()
	m.Set("k", 1, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	// The evicted key behaves like it never existed.
	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected eviction to stick")
	}
}

func TestSetOverwrites(t *testing.T) {
	m := NewMemory()
	m.Set("k", 1, time.Minute)
	m.Set("k", 2, time.Minute)

	got, ok := m.Get("k")
	if !ok || got.(int) != 2 {
		t.Fatalf("expected overwrite, got %v %v", got, ok)
	}
}

func TestDelete(t *testing.T) {
	m := NewMemory()
	m.Set("k", 1, time.Minute)
	m.Delete("k")

	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected delete to remove the key")
	}
}
