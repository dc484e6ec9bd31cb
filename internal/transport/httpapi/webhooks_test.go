package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/paysync/internal/domain"
	"github.com/vladislavdragonenkov/paysync/internal/provider/doku"
	"github.com/vladislavdragonenkov/paysync/internal/provider/midtrans"
	"github.com/vladislavdragonenkov/paysync/internal/service/reconcile"
)

func decodeAck(t *testing.T, body []byte) ackResponse {
	t.Helper()
	var ack ackResponse
	require.NoError(t, json.Unmarshal(body, &ack))
	return ack
}

func TestDokuWebhook_PaidTransitionsOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.placeOrder(t)

	rec := env.do(dokuRequest(t, dokuBody(testOrderNumber, "SUCCESS"), testDokuSecret))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.OutcomeTransitioned), decodeAck(t, rec.Body.Bytes()).Outcome)

	order, err := env.store.Get(context.Background(), testOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	assert.Equal(t, domain.ProviderDoku, order.Provider)
	assert.Equal(t, "VIRTUAL_ACCOUNT_BCA", order.PaymentMethod)
	assert.NotNil(t, order.PaidAt)
	assert.Equal(t, int64(8), env.stock(t, "P1"), "paid order keeps its reservation")
}

func TestDokuWebhook_RejectsBadSignature(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.placeOrder(t)

	rec := env.do(dokuRequest(t, dokuBody(testOrderNumber, "SUCCESS"), "wrong-secret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	order, err := env.store.Get(context.Background(), testOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
}

func TestDokuWebhook_RejectsTamperedBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.placeOrder(t)

	req := dokuRequest(t, dokuBody(testOrderNumber, "FAILED"), testDokuSecret)
	tampered := dokuRequest(t, dokuBody(testOrderNumber, "SUCCESS"), testDokuSecret)
	tampered.Header = req.Header.Clone()

	rec := env.do(tampered)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDokuWebhook_MissingHeaders(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	req := dokuRequest(t, dokuBody(testOrderNumber, "SUCCESS"), testDokuSecret)
	req.Header.Del(doku.HeaderSignature)

	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDokuWebhook_MalformedAuthenticatedBodyAcknowledged(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(dokuRequest(t, []byte(`{"order":`), testDokuSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeAck(t, rec.Body.Bytes()).Status)
}

func TestDokuWebhook_UnknownOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(dokuRequest(t, dokuBody("TH-MISSING", "SUCCESS"), testDokuSecret))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMidtransWebhook_ExpireReleasesStockOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.placeOrder(t)
	require.Equal(t, int64(8), env.stock(t, "P1"))

	body := midtransBody(t, testOrderNumber, "expire", testMidtransKey)
	for i := 0; i < 3; i++ {
		rec := env.do(midtransRequest(body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	order, err := env.store.Get(context.Background(), testOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.True(t, order.StockReleased)
	assert.Equal(t, int64(10), env.stock(t, "P1"))
	assert.Equal(t, int64(5), env.stock(t, "P2"))

	notes, err := env.store.ListByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestMidtransWebhook_ConcurrentDeliveries(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.placeOrder(t)
	body := midtransBody(t, testOrderNumber, "deny", testMidtransKey)

	const deliveries = 8
	outcomes := make(chan string, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := env.do(midtransRequest(body))
			if rec.Code != http.StatusOK {
				outcomes <- "status:" + rec.Result().Status
				return
			}
			var ack ackResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
				outcomes <- "decode"
				return
			}
			outcomes <- ack.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[string]int{}
	for outcome := range outcomes {
		counts[outcome]++
	}
	assert.Equal(t, 1, counts[string(domain.OutcomeTransitioned)])
	assert.Equal(t, deliveries-1, counts[string(domain.OutcomeDuplicate)])
	assert.Equal(t, int64(10), env.stock(t, "P1"))
}

func TestMidtransWebhook_ConflictAcknowledged(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.placeOrder(t)

	rec := env.do(midtransRequest(midtransBody(t, testOrderNumber, "settlement", testMidtransKey)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(midtransRequest(midtransBody(t, testOrderNumber, "cancel", testMidtransKey)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.OutcomeConflict), decodeAck(t, rec.Body.Bytes()).Outcome)

	order, err := env.store.Get(context.Background(), testOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	assert.Equal(t, int64(8), env.stock(t, "P1"))
}

func TestMidtransWebhook_PendingDoesNotTransition(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.placeOrder(t)

	rec := env.do(midtransRequest(midtransBody(t, testOrderNumber, "pending", testMidtransKey)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.OutcomeIgnored), decodeAck(t, rec.Body.Bytes()).Outcome)

	order, err := env.store.Get(context.Background(), testOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
}

func TestMidtransWebhook_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body func(t *testing.T) []byte
		want int
	}{
		{
			name: "bad signature",
			body: func(t *testing.T) []byte { return midtransBody(t, testOrderNumber, "settlement", "other-key") },
			want: http.StatusBadRequest,
		},
		{
			name: "missing fields",
			body: func(*testing.T) []byte { return []byte(`{"order_id":"TH-1","transaction_status":"settlement"}`) },
			want: http.StatusBadRequest,
		},
		{
			name: "not json",
			body: func(*testing.T) []byte { return []byte(`not json`) },
			want: http.StatusOK,
		},
		{
			name: "unknown order",
			body: func(t *testing.T) []byte { return midtransBody(t, "TH-MISSING", "settlement", testMidtransKey) },
			want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.placeOrder(t)

			rec := env.do(midtransRequest(tt.body(t)))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			order, err := env.store.Get(context.Background(), testOrderNumber)
			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusPending, order.Status)
		})
	}
}

func TestMidtransWebhook_InvalidGrossAmountStillApplies(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.placeOrder(t)

	for _, gross := range []string{"-1.00", "100000000000000000000.00"} {
		payload := map[string]string{
			"order_id":           testOrderNumber,
			"status_code":        "200",
			"gross_amount":       gross,
			"transaction_status": "settlement",
			"signature_key":      midtrans.Signature(testOrderNumber, "200", gross, testMidtransKey),
		}
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		rec := env.do(midtransRequest(body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	order, err := env.store.Get(context.Background(), testOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
}

type failingApplier struct {
	err error
}

func (a failingApplier) Apply(context.Context, domain.PaymentEvent) (reconcile.Result, error) {
	return reconcile.Result{}, a.err
}

func TestApplyEvent_ErrorStatusFollowsRetryability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "storage failure", err: errors.New("apply payment event: connection reset by peer"), want: http.StatusInternalServerError},
		{name: "version conflict", err: fmt.Errorf("apply payment event: %w", domain.ErrOrderVersionConflict), want: http.StatusInternalServerError},
		{name: "unknown order", err: domain.ErrOrderNotFound, want: http.StatusNotFound},
		{name: "invalid event", err: fmt.Errorf("invalid payment event: %w", errors.Join(domain.ErrOrderRefRequired)), want: http.StatusBadRequest},
		{name: "stock already released", err: fmt.Errorf("apply payment event: %w", domain.ErrStockAlreadyReleased), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRouter(Dependencies{
				Applier:  failingApplier{err: tt.err},
				Midtrans: midtrans.NewVerifier(testMidtransKey),
			})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, midtransRequest(midtransBody(t, testOrderNumber, "settlement", testMidtransKey)))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
