package events

import (
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingTopic(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicMissionCompleted)
	defer sub.Cancel()

	bus.Publish(Event{Topic: TopicMissionCompleted, UserID: "u1", PlanID: "p1"})

	select {
	case ev := <-sub.C():
		if ev.UserID != "u1" || ev.Topic != TopicMissionCompleted {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscribeFiltersOtherTopics(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicPlanCompleted)
	defer sub.Cancel()

	bus.Publish(Event{Topic: TopicMissionCompleted, UserID: "u1"})

	select {
	case ev := <-sub.C():
		t.Errorf("expected no delivery, got %+v", ev)
	default:
	}
}

func TestSubscribeAllTopics(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer sub.Cancel()

	bus.Publish(Event{Topic: TopicMissionCompleted})
	bus.Publish(Event{Topic: TopicMissionsDue})

	for i := 0; i < 2; i++ {
		select {
		case <-sub.C():
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestCancelStopsDeliveryAndClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicMissionCompleted)
	sub.Cancel()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", bus.SubscriberCount())
	}

	bus.Publish(Event{Topic: TopicMissionCompleted})

	// Channel must be closed and drained.
	if _, ok := <-sub.C(); ok {
		t.Error("expected closed channel after cancel")
	}

	// Double cancel must not panic.
	sub.Cancel()
}

func TestPublishDoesNotBlockOnFullBuffer(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicMissionsDue)
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriptionBuffer+10; i++ {
			bus.Publish(Event{Topic: TopicMissionsDue})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}
