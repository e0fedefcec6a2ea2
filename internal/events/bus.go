// Package events provides an in-process event bus for engine notifications.
//
// It replaces ambient global listener state with an explicit observable: a
// Bus owns its subscriber set, subscriptions have a defined lifecycle
// (Subscribe then Cancel), and delivery is non-blocking so a slow consumer
// never stalls the completion path.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/salasoft/battleplan/internal/models"
)

// Topic names a class of engine event.
type Topic string

const (
	// TopicMissionCompleted fires after a mission completion commits.
	TopicMissionCompleted Topic = "mission_completed"
	// TopicPlanCompleted fires when a completion drives an enrollment to 100%.
	TopicPlanCompleted Topic = "plan_completed"
	// TopicMissionsDue fires from the daily reminder sweep for each
	// enrollment with missions due today.
	TopicMissionsDue Topic = "missions_due"
)

// Event is one notification published on the bus.
type Event struct {
	Topic      Topic                      `json:"topic"`
	UserID     string                     `json:"user_id"`
	PlanID     string                     `json:"plan_id"`
	OccurredAt time.Time                  `json:"occurred_at"`
	Missions   []models.Mission           `json:"missions,omitempty"` // for missions_due
	Entry      *models.CompletionLogEntry `json:"entry,omitempty"`    // for mission_completed
}

// DefaultSubscriptionBuffer is the channel capacity of a new subscription.
const DefaultSubscriptionBuffer = 16

// Subscription is one consumer's registration with the bus. Events arrive on
// C until Cancel is called.
type Subscription struct {
	id     int
	topics map[Topic]bool
	ch     chan Event
	bus    *Bus
	once   sync.Once
}

// C returns the channel events are delivered on. The channel closes after
// Cancel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Cancel removes the subscription from the bus and closes its channel.
// Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s.id)
		close(s.ch)
	})
}

// Bus is an in-process publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
	buffer int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription), buffer: DefaultSubscriptionBuffer}
}

// Subscribe registers a consumer for the given topics. With no topics, the
// subscription receives every event.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:  b.nextID,
		ch:  make(chan Event, b.buffer),
		bus: b,
	}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}
	b.subs[sub.id] = sub
	slog.Debug("Bus.Subscribe: subscription added", "id", sub.id, "topics", topics)
	return sub
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	slog.Debug("Bus.remove: subscription removed", "id", id)
}

// Publish delivers ev to every matching subscription without blocking. If a
// subscriber's buffer is full the event is dropped for that subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[ev.Topic] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Bus.Publish: subscriber buffer full, dropping event",
				"subscription_id", sub.id, "topic", ev.Topic, "user_id", ev.UserID)
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
