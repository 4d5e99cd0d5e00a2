package notify

import (
	"log/slog"
	"sync"

	"github.com/oppboard/oppboard/pkg/models"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing pushes; the rows remain retrievable by
// pull.
const subscriberBuffer = 16

// Registry tracks live subscribers per user. It is owned by the fan-out
// Service; nothing else writes to it. Entries are added on Subscribe and
// removed by the returned cancel func on disconnect.
type Registry struct {
	mu     sync.Mutex
	subs   map[int64]map[chan models.Notification]struct{}
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		subs:   make(map[int64]map[chan models.Notification]struct{}),
		logger: logger,
	}
}

// Subscribe registers a live output channel for the user. The cancel func is
// safe to call more than once.
func (r *Registry) Subscribe(userID int64) (<-chan models.Notification, func()) {
	ch := make(chan models.Notification, subscriberBuffer)

	r.mu.Lock()
	set, ok := r.subs[userID]
	if !ok {
		set = make(map[chan models.Notification]struct{})
		r.subs[userID] = set
	}
	set[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			if set, ok := r.subs[userID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(r.subs, userID)
				}
			}
			close(ch)
			r.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish attempts a non-blocking send to every live channel for the user and
// returns the number of deliveries. A full channel is dropped and logged; a
// slow subscriber must never stall delivery to others.
func (r *Registry) Publish(userID int64, n models.Notification) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for ch := range r.subs[userID] {
		select {
		case ch <- n:
			delivered++
		default:
			r.logger.Warn("dropping push to slow subscriber",
				slog.Int64("user_id", userID),
				slog.Int64("notification_id", n.ID),
			)
		}
	}
	return delivered
}

// SubscriberCount reports the number of live channels for the user.
func (r *Registry) SubscriberCount(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[userID])
}
