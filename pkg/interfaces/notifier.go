package interfaces

import "context"

// Notifier pages volunteers when a student opens a session and starts
// waiting. Fire-and-forget: callers log failures but never propagate them.
type Notifier interface {
	SessionWaiting(ctx context.Context, sessionType, subTopic string) error
}
