package devtools

import "testing"

func TestBusPublishAndSubscribe(t *testing.T) {
	b := New(2, nil)
	b.Publish(Event{ConnID: "a", Kind: "request"})
	b.Publish(Event{ConnID: "b", Kind: "response"})

	ch := b.Subscribe()
	first := <-ch
	second := <-ch
	if first.ConnID != "a" || second.ConnID != "b" {
		t.Fatalf("got order %q, %q", first.ConnID, second.ConnID)
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	b := New(1, nil)
	b.Publish(Event{ConnID: "keep"})
	b.Publish(Event{ConnID: "dropped"})

	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
	ev := <-b.Subscribe()
	if ev.ConnID != "keep" {
		t.Fatalf("got %q, want %q", ev.ConnID, "keep")
	}
}
