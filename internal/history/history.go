package history

import (
	"context"
	"time"
)

// EventType defines the kind of record persisted for usage history.
type EventType string

const (
	EventState   EventType = "state"
	EventTraffic EventType = "traffic"
)

// Event is one usage-history record: either a core state transition or a
// periodic traffic sample. SessionID ties records to one core run.
type Event struct {
	Type        EventType `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	SessionID   string    `json:"session_id"`
	State       string    `json:"state,omitempty"`
	Upload      uint64    `json:"upload,omitempty"`
	Download    uint64    `json:"download,omitempty"`
	UploadBps   int64     `json:"upload_bps,omitempty"`
	DownloadBps int64     `json:"download_bps,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Sink is a destination for usage-history events (connection timelines,
// usage graphs). Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// NopSink discards events; used when history persistence is disabled.
type NopSink struct{}

func (NopSink) Send(context.Context, Event) error { return nil }
func (NopSink) Close() error                      { return nil }
