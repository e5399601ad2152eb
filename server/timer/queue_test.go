package timer

import (
	"testing"
	"time"
)

func TestWakeQueueFiresScheduledCallback(t *testing.T) {
	q := NewWakeQueue[string]()
	cookie := q.Schedule(now()+40, "hello")

	select {
	case got := <-q.Wakes():
		if got != cookie {
			t.Fatalf("got cookie %v, want %v", got, cookie)
		}
		_, reason := q.Retrieve(got)
		if reason != "hello" {
			t.Fatalf("reason = %q, want hello", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for wake")
	}
}

func TestWakeQueueCancelIsIdempotentAndSuppressesWake(t *testing.T) {
	q := NewWakeQueue[int]()
	cookie := q.Schedule(now()+500, 42)
	q.Cancel(cookie)
	q.Cancel(cookie) // idempotent: must not panic or double-free

	select {
	case got := <-q.Wakes():
		t.Fatalf("cancelled wake fired anyway: %v", got)
	case <-time.After(700 * time.Millisecond):
		// expected: nothing arrives
	}
}

func TestWheelAdvanceOrdersByScheduleWithinBucket(t *testing.T) {
	w := newWheel(0)
	w.schedule(wake{when: 0, cookie: 1})
	w.schedule(wake{when: 0, cookie: 2})
	due := w.advance()
	if len(due) != 2 {
		t.Fatalf("due = %+v, want 2 entries", due)
	}
	if due[0] != 1 || due[1] != 2 {
		t.Fatalf("due = %+v, want [1 2] in schedule order", due)
	}
}

func TestWheelPromotesOverflowEntries(t *testing.T) {
	w := newWheel(0)
	w.schedule(wake{when: wheelMS + bucketMS, cookie: 7})
	if len(w.later) != 1 {
		t.Fatalf("expected entry beyond horizon to land in overflow, later=%+v", w.later)
	}
	for i := 0; i < wheelBuckets*2 && len(w.later) > 0; i++ {
		w.advance()
	}
	if len(w.later) != 0 {
		t.Fatal("overflow entry was never promoted into the wheel")
	}
}
