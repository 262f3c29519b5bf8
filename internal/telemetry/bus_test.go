package telemetry

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	received := []Message{}

	unsub := bus.Subscribe(KindStatus, func(m Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(Message{Kind: KindStatus, Line: StatusRewardGiven, At: time.Now()})

	// Wait for async delivery
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 message, got %d", len(received))
	}
	if received[0].Kind != KindStatus {
		t.Errorf("expected kind %s, got %s", KindStatus, received[0].Kind)
	}
	if received[0].Line != StatusRewardGiven {
		t.Errorf("expected line %q, got %q", StatusRewardGiven, received[0].Line)
	}
}

func TestBus_KindIsolation(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	received := []Message{}

	unsub := bus.Subscribe(KindWeight, func(m Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(Message{Kind: KindEvent, Line: "EVENT,0,0,1,0,0,0"})
	bus.Publish(Message{Kind: KindWeight, Line: "W,12.00,100"})

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 message, got %d", len(received))
	}
	if received[0].Line != "W,12.00,100" {
		t.Errorf("expected weight line, got %q", received[0].Line)
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu1, mu2 sync.Mutex
	received1 := []Message{}
	received2 := []Message{}

	unsub1 := bus.Subscribe(KindEvent, func(m Message) {
		mu1.Lock()
		received1 = append(received1, m)
		mu1.Unlock()
	})
	defer unsub1()

	unsub2 := bus.Subscribe(KindEvent, func(m Message) {
		mu2.Lock()
		received2 = append(received2, m)
		mu2.Unlock()
	})
	defer unsub2()

	bus.Publish(Message{Kind: KindEvent, Line: "EVENT,7,0,0,1,0,0"})

	time.Sleep(50 * time.Millisecond)

	mu1.Lock()
	count1 := len(received1)
	mu1.Unlock()

	mu2.Lock()
	count2 := len(received2)
	mu2.Unlock()

	if count1 != 1 {
		t.Errorf("subscriber 1: expected 1 message, got %d", count1)
	}
	if count2 != 1 {
		t.Errorf("subscriber 2: expected 1 message, got %d", count2)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	received := []Message{}

	unsub := bus.Subscribe(KindStatus, func(m Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	})

	bus.Publish(Message{Kind: KindStatus, Line: StatusFixationEngaged})
	time.Sleep(50 * time.Millisecond)

	unsub()

	bus.Publish(Message{Kind: KindStatus, Line: StatusFixationReleased})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 message after unsubscribe, got %d", len(received))
	}
	if received[0].Line != StatusFixationEngaged {
		t.Errorf("expected %q, got %q", StatusFixationEngaged, received[0].Line)
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(10)

	var mu sync.Mutex
	received := []Message{}

	bus.Subscribe(KindWeight, func(m Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	})

	bus.Close()
	bus.Publish(Message{Kind: KindWeight, Line: "W,0.00,0"})

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 0 {
		t.Errorf("expected no delivery after close, got %d", len(received))
	}
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := NewBus(10)
	bus.Close()

	unsub := bus.Subscribe(KindStatus, func(m Message) {
		t.Error("subscriber on closed bus should never run")
	})
	unsub()

	bus.Publish(Message{Kind: KindStatus, Line: StatusReady})
	time.Sleep(50 * time.Millisecond)
}

func TestBus_PanickingSubscriber(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	unsub := bus.Subscribe(KindEvent, func(m Message) {
		panic("subscriber failure")
	})
	defer unsub()

	var mu sync.Mutex
	count := 0
	unsub2 := bus.Subscribe(KindEvent, func(m Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer unsub2()

	bus.Publish(Message{Kind: KindEvent, Line: "EVENT,0,0,0,0,0,1"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("healthy subscriber should still receive, got %d", count)
	}
}
