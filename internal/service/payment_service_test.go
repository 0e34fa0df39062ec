package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

func newPaymentFixture(rows ...models.Attendee) (*PaymentService, *memoryAttendees, *memoryAudit, *MetricsService) {
	store := newMemoryAttendees(rows...)
	audit := &memoryAudit{}
	metrics := NewMetricsService()
	svc := NewPaymentService(store, audit, &recordingCache{}, metrics, nil, nil)
	return svc, store, audit, metrics
}

func TestRecordPartialThenFullPayment(t *testing.T) {
	svc, store, audit, metrics := newPaymentFixture(models.Attendee{ID: "a1", ExpectedAmount: 100, PaymentStatus: models.PaymentPending})
	ctx := context.Background()

	partial, err := svc.RecordPayment(ctx, cashierSession, "a1", PaymentRequest{Amount: 30.5})
	require.NoError(t, err)
	assert.Equal(t, 30.5, partial.AmountPaid)
	assert.Equal(t, models.PaymentPending, partial.PaymentStatus)

	full, err := svc.RecordPayment(ctx, cashierSession, "a1", PaymentRequest{Amount: 69.5})
	require.NoError(t, err)
	assert.Equal(t, float64(100), full.AmountPaid)
	assert.Equal(t, models.PaymentPaid, full.PaymentStatus)
	assert.Equal(t, models.PaymentPaid, store.get("a1").PaymentStatus)

	assert.Equal(t, []string{models.AuditActionPaymentRecord, models.AuditActionPaymentRecord}, audit.actions())
	assert.Equal(t, float64(100), testutil.ToFloat64(metrics.paymentsAmount))
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	svc, store, _, _ := newPaymentFixture(models.Attendee{ID: "a1", ExpectedAmount: 100, AmountPaid: 80})

	_, err := svc.RecordPayment(context.Background(), cashierSession, "a1", PaymentRequest{Amount: 20.01})
	assert.Equal(t, appErrors.ErrPaymentExceedsExpected.Code, appCode(t, err))
	assert.Equal(t, float64(80), store.get("a1").AmountPaid)
}

func TestMarkPaidSettlesBalance(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(models.Attendee{ID: "a1", ExpectedAmount: 100, AmountPaid: 25})

	attendee, err := svc.RecordPayment(context.Background(), adminSession, "a1", PaymentRequest{MarkPaid: true})
	require.NoError(t, err)
	assert.Equal(t, float64(100), attendee.AmountPaid)
	assert.Equal(t, models.PaymentPaid, attendee.PaymentStatus)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(models.Attendee{ID: "a1", ExpectedAmount: 100})
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, cashierSession, "a1", PaymentRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(t, err))
	_, err = svc.RecordPayment(ctx, cashierSession, "a1", PaymentRequest{Amount: -5})
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(t, err))
	_, err = svc.RecordPayment(ctx, doorSession, "a1", PaymentRequest{Amount: 5})
	assert.Equal(t, appErrors.ErrForbidden.Code, appCode(t, err))
	_, err = svc.RecordPayment(ctx, cashierSession, "nobody", PaymentRequest{Amount: 5})
	assert.Equal(t, appErrors.ErrAttendeeNotFound.Code, appCode(t, err))
}
