package services

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"

	"tournament-registration/cache"
)

var tracer = otel.Tracer("tournament-registration/services")

// BlobStore persists evidence images and returns a URL the admin console can open.
type BlobStore interface {
	UploadImage(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// UploadCache remembers which evidence a request id has already uploaded.
type UploadCache interface {
	Get(userID, requestID string) (cache.UploadedEvidence, bool, error)
	Put(userID, requestID string, ev cache.UploadedEvidence) error
	Forget(userID, requestID string) error
}

// EventPublisher fans domain events out to other services.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// LogPublisher stands in for the broker when RABBIT_URL is unset.
type LogPublisher struct{}

func (LogPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	log.Printf("[EVENTS] (no broker) %s", key)
	return nil
}

func publish(ctx context.Context, p EventPublisher, key string, v any) {
	if p == nil {
		return
	}
	if err := p.PublishJSON(ctx, key, v); err != nil {
		log.Printf("[EVENTS] ⚠️ failed to publish %s: %v", key, err)
	}
}
