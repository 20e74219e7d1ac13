// Package notificationtest provides an in-memory Notifier for tests.
package notificationtest

import (
	"context"
	"sync"

	"github.com/bayarinter/billing/internal/app/service/notification"
)

// Recorder records every message. Phones listed in Fail get an undelivered outcome.
type Recorder struct {
	mu       sync.Mutex
	messages []notification.Message
	Fail     map[string]bool
}

func (r *Recorder) Notify(ctx context.Context, msg notification.Message) notification.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	if r.Fail[msg.Phone] {
		return notification.Delivery{Delivered: false, Detail: "gateway error"}
	}
	return notification.Delivery{Delivered: true, Detail: "ok"}
}

func (r *Recorder) Messages() []notification.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Kinds returns the kind of every recorded message in order.
func (r *Recorder) Kinds() []string {
	msgs := r.Messages()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Kind)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
