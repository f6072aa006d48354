package workers

import (
	"context"
	"log"
	"time"

	"tournament-registration/models"
	"tournament-registration/services"
)

// ReviewedDepositSource lists deposits the admin review has settled.
type ReviewedDepositSource interface {
	ListReviewedDepositsSince(ctx context.Context, since time.Time, afterID string, limit int) ([]models.PendingDeposit, error)
}

// DepositStatusWorker announces review outcomes on the events exchange. Delivery is
// at least once: after a restart the last 24h are announced again, keyed by deposit id.
type DepositStatusWorker struct {
	source    ReviewedDepositSource
	publisher services.EventPublisher
	interval  time.Duration
	batch     int
	since     time.Time
	lastID    string
}

func NewDepositStatusWorker(source ReviewedDepositSource, publisher services.EventPublisher, interval time.Duration) *DepositStatusWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &DepositStatusWorker{
		source:    source,
		publisher: publisher,
		interval:  interval,
		batch:     100,
		since:     time.Now().UTC().Add(-24 * time.Hour),
	}
}

func (w *DepositStatusWorker) Run(ctx context.Context) {
	log.Println("Starting deposit status polling...")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Deposit status polling stopped.")
			return
		case <-ticker.C:
			if _, err := w.PollOnce(ctx); err != nil {
				log.Printf("❌ Error polling reviewed deposits: %v", err)
			}
		}
	}
}

// PollOnce publishes the next batch of reviews after the (reviewed_at, id) watermark
// and advances it.
// A failed publish stops the batch so the same deposit is retried next tick.
func (w *DepositStatusWorker) PollOnce(ctx context.Context) (int, error) {
	deposits, err := w.source.ListReviewedDepositsSince(ctx, w.since, w.lastID, w.batch)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, d := range deposits {
		key := services.EventDepositRejected
		if d.Status == models.DepositApproved {
			key = services.EventDepositApproved
		}
		at := time.Now().UTC()
		if d.ReviewedAt != nil {
			at = *d.ReviewedAt
		}
		err := w.publisher.PublishJSON(ctx, key, services.DepositEvent{
			DepositID:  d.ID,
			RequestID:  d.RequestID,
			UserID:     d.UserID,
			Amount:     d.Amount,
			Currency:   d.Currency,
			Status:     string(d.Status),
			ReviewNote: d.ReviewNote,
			At:         at,
		})
		if err != nil {
			return published, err
		}
		w.since, w.lastID = at, d.ID
		published++
	}
	if published > 0 {
		log.Printf("✅ Published %d deposit review event(s).", published)
	}
	return published, nil
}
