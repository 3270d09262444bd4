// Package realtime delivers server-to-client events over WebSocket.
//
// Every connection belongs to exactly one user. The Hub groups connections
// by user id, so an event published for a user reaches all of that user's
// open tabs and nobody else. When several server processes share a Redis,
// RedisBus carries events between them.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventNewNotification is sent to a post author when someone else comments.
const EventNewNotification = "new_notification"

// Event is the envelope written to the socket:
//
//	{"event":"new_notification","data":{...}}
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Publisher fans an event out to every connection of one user. Delivery is
// best effort: a user without open connections silently misses the event.
type Publisher interface {
	PublishUser(ctx context.Context, userID int64, e Event) error
}

func encode(e Event) ([]byte, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("realtime: event name is required")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("realtime: encoding %s: %w", e.Name, err)
	}
	return b, nil
}
