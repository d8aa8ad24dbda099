package chunker

import (
	"testing"
)

func TestHub_Subscribe_receives_matching_file(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	h.Publish(progressEvent(1, 50, 1, 2, 0, 0))

	ev := <-ch
	if ev.Type != EventProgress || ev.Data.FileID != 1 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestHub_Subscribe_filters_other_files(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	h.Publish(progressEvent(2, 50, 1, 2, 0, 0))
	h.Publish(completeEvent(1, nil))

	// Only the file 1 event arrives.
	ev := <-ch
	if ev.Type != EventComplete || ev.Data.FileID != 1 {
		t.Errorf("expected only file 1's event, got %+v", ev)
	}
	if len(ch) != 0 {
		t.Error("file 2's event should not have been delivered")
	}
}

func TestHub_wildcard_subscriber_sees_all_runs(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(0)
	defer cancel()

	h.Publish(progressEvent(1, 10, 1, 10, 0, 0))
	h.Publish(progressEvent(2, 20, 2, 10, 0, 0))

	first := <-ch
	second := <-ch
	if first.Data.FileID != 1 || second.Data.FileID != 2 {
		t.Errorf("wildcard should observe both runs in order: %+v %+v", first, second)
	}
}

func TestHub_delivery_order_matches_emission(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	for i := 1; i <= 5; i++ {
		h.Publish(progressEvent(1, i*20, i, 5, 0, 0))
	}
	for i := 1; i <= 5; i++ {
		ev := <-ch
		if ev.Data.CurrentIndex != i {
			t.Fatalf("event %d out of order: %+v", i, ev)
		}
	}
}

func TestHub_slow_subscriber_drops_not_blocks(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	// Publish past the buffer without reading; Publish must not block.
	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(progressEvent(1, i, i, 100, 0, 0))
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("expected %d buffered events, got %d", subscriberBuffer, len(ch))
	}
}

func TestHub_cancel_detaches_and_closes(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)

	cancel()
	if _, open := <-ch; open {
		t.Error("channel should be closed after cancel")
	}
	if n := h.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}

	// Second cancel and a publish after detach are harmless.
	cancel()
	h.Publish(completeEvent(1, nil))
}
