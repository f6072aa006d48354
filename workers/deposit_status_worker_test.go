package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-registration/models"
	"tournament-registration/repository/repotest"
	"tournament-registration/services"
)

type capturePublisher struct {
	keys []string
	fail error
}

func (p *capturePublisher) PublishJSON(_ context.Context, key string, _ any) error {
	if p.fail != nil {
		return p.fail
	}
	p.keys = append(p.keys, key)
	return nil
}

func TestDepositStatusWorkerPublishesReviews(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		d := models.PaymentProof{
			Currency:      "NGN",
			Amount:        decimal.NewFromInt(1000),
			PaymentMethod: models.PaymentMethodUPI,
			Reference:     "UTR-" + id,
			ScreenshotURL: "https://cdn.test/" + id,
		}.ToPendingDeposit(id, "req-"+id, "u1")
		require.NoError(t, store.CreatePendingDeposit(ctx, &d))
	}
	now := time.Now().UTC()
	_, err := store.ReviewDeposit(ctx, "d1", models.DepositApproved, "", "admin", now.Add(-2*time.Minute))
	require.NoError(t, err)
	_, err = store.ReviewDeposit(ctx, "d2", models.DepositRejected, "wrong amount", "admin", now.Add(-time.Minute))
	require.NoError(t, err)

	pub := &capturePublisher{fail: errors.New("broker down")}
	w := NewDepositStatusWorker(store, pub, time.Second)

	_, err = w.PollOnce(ctx)
	assert.Error(t, err)

	pub.fail = nil
	n, err := w.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{services.EventDepositApproved, services.EventDepositRejected}, pub.keys)

	n, err = w.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "watermark advanced past published reviews")
}

func TestDepositStatusWorkerPagesThroughSameInstantReviews(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Minute)

	for _, id := range []string{"d1", "d2", "d3"} {
		d := models.PaymentProof{
			Currency:      "NGN",
			Amount:        decimal.NewFromInt(1000),
			PaymentMethod: models.PaymentMethodUPI,
			Reference:     "UTR-" + id,
			ScreenshotURL: "https://cdn.test/" + id,
		}.ToPendingDeposit(id, "req-"+id, "u1")
		require.NoError(t, store.CreatePendingDeposit(ctx, &d))
		_, err := store.ReviewDeposit(ctx, id, models.DepositApproved, "", "admin", at)
		require.NoError(t, err)
	}

	pub := &capturePublisher{}
	w := NewDepositStatusWorker(store, pub, time.Second)
	w.batch = 2

	n, err := w.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = w.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the third review shares the timestamp and is still published")

	n, err = w.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, pub.keys, 3)
}
