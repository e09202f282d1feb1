package audit

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"guest-access/internal/models"
	"guest-access/internal/util"
)

// EventSink is the durable side of the audit trail.
type EventSink interface {
	InsertSecurityEvent(ctx context.Context, event *models.SecurityEvent) error
}

// EventPublisher fans events out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
}

// Recorder writes security events to the analytics store and the event
// bus. Recording is best effort: an audit failure is logged but never
// fails the guest's request.
type Recorder struct {
	sink      EventSink
	publisher EventPublisher
	logger    *zap.Logger
}

func NewRecorder(sink EventSink, publisher EventPublisher, logger *zap.Logger) *Recorder {
	return &Recorder{sink: sink, publisher: publisher, logger: logger}
}

// Record stamps and emits one event. Either backend may be nil when its
// client failed to initialize; the flow still runs.
func (r *Recorder) Record(ctx context.Context, event *models.SecurityEvent) {
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}

	if r.sink != nil {
		if err := r.sink.InsertSecurityEvent(ctx, event); err != nil {
			r.logger.Warn("Failed to store security event",
				util.String("event_type", event.EventType),
				util.ErrorField(err))
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, event.TokenHash, event); err != nil {
			r.logger.Warn("Failed to publish security event",
				util.String("event_type", event.EventType),
				util.ErrorField(err))
		}
	}
}

// Event builds a security event from request attributes.
func Event(eventType, tokenHash, userID, fingerprint, remoteAddr string) *models.SecurityEvent {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return &models.SecurityEvent{
		EventTime:   time.Now().UTC(),
		EventType:   eventType,
		TokenHash:   tokenHash,
		UserID:      userID,
		Fingerprint: fingerprint,
		IPAddress:   net.ParseIP(host),
	}
}
