package ringbuffer

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeJoinsAtHead(t *testing.T) {
	rb := New(4)
	rb.Push([]byte("a"))
	rb.Push([]byte("b"))

	cursor := rb.Subscribe()
	chunks, _, lagged := rb.Read(cursor)
	if lagged {
		t.Fatalf("unexpected lag on fresh subscribe")
	}
	if len(chunks) != 0 {
		t.Fatalf("new subscriber should not see history, got %d chunks", len(chunks))
	}
}

func TestPushThenReadIsOrdered(t *testing.T) {
	rb := New(8)
	cursor := rb.Subscribe()

	rb.Push([]byte("one"))
	rb.Push([]byte("two"))
	rb.Push([]byte("three"))

	chunks, next, lagged := rb.Read(cursor)
	if lagged {
		t.Fatalf("unexpected lag")
	}
	want := []string{"one", "two", "three"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, c := range chunks {
		if string(c) != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, c, want[i])
		}
	}

	if chunks2, _, lagged2 := rb.Read(next); len(chunks2) != 0 || lagged2 {
		t.Fatalf("re-reading at head should return nothing new, got %d chunks lagged=%v", len(chunks2), lagged2)
	}
}

func TestPushNeverBlocksPastCapacity(t *testing.T) {
	rb := New(2)
	cursor := rb.Subscribe()

	rb.Push([]byte("a"))
	rb.Push([]byte("b"))
	rb.Push([]byte("c")) // overwrites "a"

	_, _, lagged := rb.Read(cursor)
	if !lagged {
		t.Fatalf("cursor pointing at overwritten data should be lagged")
	}

	fresh := rb.Subscribe()
	rb.Push([]byte("d"))
	chunks, _, lagged := rb.Read(fresh)
	if lagged {
		t.Fatalf("unexpected lag after resubscribe")
	}
	if len(chunks) != 1 || string(chunks[0]) != "d" {
		t.Fatalf("got %v, want [d]", chunks)
	}
}

func TestLargeSinglePushOccupiesOneFrame(t *testing.T) {
	rb := New(2)
	rb.Push([]byte("a"))
	rb.Push([]byte("b"))
	cursor := rb.Subscribe() // at head after two pushes

	// A single push always advances head by exactly one frame, so even a
	// "big" push only ever displaces the oldest slot — verify the cursor at
	// head before the push sees exactly that one new frame, never a lag.
	rb.Push([]byte("this-is-the-new-head"))
	chunks, _, lagged := rb.Read(cursor)
	if lagged {
		t.Fatalf("cursor at head before a push must never be considered lagged")
	}
	if len(chunks) != 1 || string(chunks[0]) != "this-is-the-new-head" {
		t.Fatalf("got %v", chunks)
	}
}

func TestReadNoDuplicateBytesAfterLag(t *testing.T) {
	rb := New(3)
	cursor := rb.Subscribe()
	rb.Push([]byte("1"))
	rb.Push([]byte("2"))
	rb.Push([]byte("3"))
	rb.Push([]byte("4")) // cursor (at 0) now lagged: capacity 3, head 4, oldest = 1

	chunks, next, lagged := rb.Read(cursor)
	if !lagged {
		t.Fatalf("expected lag")
	}
	if len(chunks) != 0 {
		t.Fatalf("lagged read must not return stale data, got %v", chunks)
	}

	// Resubscribing must land exactly at head, never replay "2","3","4".
	if next != rb.Subscribe() {
		t.Fatalf("resync cursor should equal current head")
	}
}

func TestWaitWakesOnPush(t *testing.T) {
	rb := New(4)
	cursor := rb.Subscribe()

	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- rb.Wait(ctx, cursor)
	}()

	time.Sleep(10 * time.Millisecond)
	rb.Push([]byte("x"))

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("Wait returned false, expected wake on push")
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait did not wake up on Push")
	}
}

func TestWaitCancelledByContext(t *testing.T) {
	rb := New(4)
	cursor := rb.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- rb.Wait(ctx, cursor) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("Wait should return false on cancellation")
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait did not observe cancellation")
	}
}

func TestStatsReflectsRetainedFrames(t *testing.T) {
	rb := New(2)
	rb.Push([]byte("aa"))
	rb.Push([]byte("bbb"))
	rb.Push([]byte("c")) // "aa" now overwritten

	chunks, size := rb.Stats()
	if chunks != 2 {
		t.Fatalf("got %d retained chunks, want 2", chunks)
	}
	if size != len("bbb")+len("c") {
		t.Fatalf("got size %d, want %d", size, len("bbb")+len("c"))
	}
}

func TestMultipleConsumersSeeSameSuffix(t *testing.T) {
	rb := New(16)
	c1 := rb.Subscribe()
	rb.Push([]byte("x"))
	c2 := rb.Subscribe()
	rb.Push([]byte("y"))
	rb.Push([]byte("z"))

	chunks1, _, lagged1 := rb.Read(c1)
	chunks2, _, lagged2 := rb.Read(c2)
	if lagged1 || lagged2 {
		t.Fatalf("unexpected lag")
	}

	join := func(cs [][]byte) string {
		out := ""
		for _, c := range cs {
			out += string(c)
		}
		return out
	}
	full := join(chunks1)
	suffix := join(chunks2)
	if full != "xyz" {
		t.Fatalf("c1 got %q, want xyz", full)
	}
	if suffix != "yz" {
		t.Fatalf("c2 got %q, want yz", suffix)
	}
	if full[len(full)-len(suffix):] != suffix {
		t.Fatalf("c2's view %q is not a suffix of c1's view %q", suffix, full)
	}
}
