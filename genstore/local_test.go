package genstore

import (
	"context"
	"testing"
	"time"
)

func TestLocalMissingKeyIsZero(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	g, err := s.Snapshot(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if g != 0 {
		t.Fatalf("got=%d want 0", g)
	}
}

func TestLocalBumpIsPerKey(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	// bump b twice -> gen=2
	for i := 0; i < 2; i++ {
		if _, err := s.Bump(ctx, "b"); err != nil {
			t.Fatal(err)
		}
	}
	a, _ := s.Snapshot(ctx, "a")
	b, _ := s.Snapshot(ctx, "b")
	if a != 0 || b != 2 {
		t.Fatalf("got a=%d b=%d want a=0 b=2", a, b)
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d want 1", s.Len())
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, time.Second)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1200 * time.Millisecond)
	if _, err := s.Bump(ctx, "new"); err != nil {
		t.Fatal(err)
	}
	s.Cleanup(time.Second)

	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
	if g, _ := s.Snapshot(ctx, "new"); g != 1 {
		t.Fatalf("expected recent key kept, got %d", g)
	}
}

func TestLocalCloseIsIdempotent(t *testing.T) {
	s := NewLocalGenStore(time.Millisecond, time.Hour)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
