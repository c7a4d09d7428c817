package ports

import "testing"

func TestBusPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBus()
	var gotA, gotB []Event
	b.Subscribe(func(e Event) { gotA = append(gotA, e) })
	b.Subscribe(func(e Event) { gotB = append(gotB, e) })

	b.Publish(Event{Kind: EventNewTip})

	if len(gotA) != 1 || len(gotB) != 1 {
		t.Fatalf("expected both subscribers to receive the event, got %d and %d", len(gotA), len(gotB))
	}
	if gotA[0].Kind != EventNewTip {
		t.Fatalf("got kind %v, want %v", gotA[0].Kind, EventNewTip)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	var count int
	unsub := b.Subscribe(func(e Event) { count++ })

	b.Publish(Event{Kind: EventNewTip})
	unsub()
	b.Publish(Event{Kind: EventNewTip})

	if count != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", count)
	}
}
