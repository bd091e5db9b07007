package memory

import (
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	m := New(time.Minute)

	if _, ok := m.Get("missing"); ok {
		t.Fatalf("expected miss for absent key")
	}

	m.Set("k", []byte("v"), time.Minute)
	got, ok := m.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("expected hit with %q, got %q ok=%v", "v", got, ok)
	}

	m.Delete("k")
	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemory_PrefixIsolation(t *testing.T) {
	a := NewWithPrefix(time.Minute, "a:")
	b := NewWithPrefix(time.Minute, "b:")

	a.Set("k", []byte("va"), time.Minute)
	if _, ok := b.Get("k"); ok {
		t.Fatalf("prefixes must not share keys")
	}
	got, ok := a.Get("k")
	if !ok || string(got) != "va" {
		t.Fatalf("expected hit under own prefix, got %q ok=%v", got, ok)
	}

	a.Purge()
	if _, ok := a.Get("k"); ok {
		t.Fatalf("expected miss after purge")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := New(time.Minute)
	m.Set("short", []byte("x"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok := m.Get("short"); ok {
		t.Fatalf("expected expired key to miss")
	}
}
