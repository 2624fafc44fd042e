// Package publisher defines the event publishing contract used by the
// alerting and sheet-sync collaborators.
package publisher

import "context"

// Publisher pushes JSON payloads to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
