package bus

import "testing"

func TestMemoryBus_BroadcastReachesAllSubscribers(t *testing.T) {
	b := NewMemoryBus()

	var got1, got2 []string
	b.Subscribe("s1", func(e Event) { got1 = append(got1, e.Name) })
	b.Subscribe("s2", func(e Event) { got2 = append(got2, e.Name) })

	b.Broadcast(Event{Name: EventTypingStart})
	b.Broadcast(Event{Name: EventTypingStop})

	if len(got1) != 2 || len(got2) != 2 {
		t.Fatalf("deliveries = %d/%d, want 2/2", len(got1), len(got2))
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus()

	var got []string
	b.Subscribe("s1", func(e Event) { got = append(got, e.Name) })
	b.Broadcast(Event{Name: EventResponderSelected})

	b.Unsubscribe("s1")
	b.Broadcast(Event{Name: EventStatesCleared})

	if len(got) != 1 || got[0] != EventResponderSelected {
		t.Fatalf("deliveries = %v, want only the pre-unsubscribe event", got)
	}
}
