package appstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/coachgate/pkg/appstore"
	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

type endpoint struct {
	calls atomic.Int32
	srv   *httptest.Server
}

func newEndpoint(t *testing.T, status int, body any) *endpoint {
	t.Helper()
	e := &endpoint{}
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.calls.Add(1)

		var req map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "secret", req["password"])
		assert.Equal(t, true, req["exclude-old-transactions"])
		assert.NotEmpty(t, req["receipt-data"])

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func newVerifier(primary, secondary *endpoint) *appstore.Verifier {
	cfg := appstore.Config{
		SharedSecret:  "secret",
		ProductionURL: primary.srv.URL,
		Timeout:       5 * time.Second,
	}
	if secondary != nil {
		cfg.SandboxURL = secondary.srv.URL
	}
	return appstore.NewVerifier(cfg, appstore.WithClock(func() time.Time { return now }))
}

func receipt(txs ...map[string]any) map[string]any {
	return map[string]any{"status": 0, "latest_receipt_info": txs}
}

func tx(product, original string, purchased, expires time.Time) map[string]any {
	return map[string]any{
		"product_id":               product,
		"original_transaction_id":  original,
		"transaction_id":           original + "-" + ms(purchased),
		"purchase_date_ms":         ms(purchased),
		"expires_date_ms":          ms(expires),
		"is_trial_period":          "false",
		"is_in_intro_offer_period": "false",
	}
}

func TestVerifyProduction(t *testing.T) {
	t.Parallel()

	body := receipt(
		tx("coach.monthly", "100", now.Add(-48*time.Hour), now.Add(24*time.Hour)),
		tx("coach.monthly", "100", now.Add(-time.Hour), now.Add(30*24*time.Hour)),
	)
	trial := tx("coach.monthly", "100", now.Add(-2*time.Hour), now.Add(3*24*time.Hour))
	trial["is_trial_period"] = "true"
	body["latest_receipt_info"] = append(body["latest_receipt_info"].([]map[string]any), trial)
	body["pending_renewal_info"] = []map[string]any{{"original_transaction_id": "100", "auto_renew_status": "1"}}

	primary := newEndpoint(t, http.StatusOK, body)
	snap, err := newVerifier(primary, nil).Verify(context.Background(), "base64-receipt", "")
	require.NoError(t, err)

	assert.Equal(t, "coach.monthly", snap.ProductID)
	assert.Equal(t, "100", snap.OriginalTransactionID)
	assert.Equal(t, now.Add(30*24*time.Hour).UnixMilli(), snap.ExpiresTime.UnixMilli())
	assert.Equal(t, now.Add(-time.Hour).UnixMilli(), snap.PurchaseTime.UnixMilli())
	assert.False(t, snap.IsTrial)
	assert.Equal(t, subscription.EnvProduction, snap.Environment)
	assert.Equal(t, now, snap.VerifiedAt)
	require.NotNil(t, snap.AutoRenewStatus)
	assert.True(t, *snap.AutoRenewStatus)
	assert.EqualValues(t, 1, primary.calls.Load())
}

func TestVerifySandboxFallback(t *testing.T) {
	t.Parallel()

	primary := newEndpoint(t, http.StatusOK, map[string]any{"status": 21007})
	secondary := newEndpoint(t, http.StatusOK, receipt(tx("coach.monthly", "200", now, now.Add(time.Hour))))

	snap, err := newVerifier(primary, secondary).Verify(context.Background(), "r", "coach.monthly")
	require.NoError(t, err)
	assert.Equal(t, subscription.EnvSandbox, snap.Environment)
	assert.Equal(t, "200", snap.OriginalTransactionID)
	assert.EqualValues(t, 1, primary.calls.Load())
	assert.EqualValues(t, 1, secondary.calls.Load())
}

func TestVerifySandboxRetriedOnlyOnce(t *testing.T) {
	t.Parallel()

	primary := newEndpoint(t, http.StatusOK, map[string]any{"status": 21007})
	secondary := newEndpoint(t, http.StatusOK, map[string]any{"status": 21007})

	_, err := newVerifier(primary, secondary).Verify(context.Background(), "r", "")
	var rejected *appstore.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 21007, rejected.Status)
	assert.EqualValues(t, 1, secondary.calls.Load())
}

func TestVerifyProductSelection(t *testing.T) {
	t.Parallel()

	body := receipt(
		tx("coach.yearly", "300", now.Add(-time.Hour), now.Add(365*24*time.Hour)),
		tx("coach.monthly", "301", now.Add(-2*time.Hour), now.Add(30*24*time.Hour)),
		tx("coach.monthly", "302", now.Add(-time.Hour), now.Add(30*24*time.Hour)),
	)

	t.Run("matching product wins, tie broken by purchase", func(t *testing.T) {
		t.Parallel()
		snap, err := newVerifier(newEndpoint(t, http.StatusOK, body), nil).Verify(context.Background(), "r", "coach.monthly")
		require.NoError(t, err)
		assert.Equal(t, "302", snap.OriginalTransactionID)
	})

	t.Run("unknown product falls back to all transactions", func(t *testing.T) {
		t.Parallel()
		snap, err := newVerifier(newEndpoint(t, http.StatusOK, body), nil).Verify(context.Background(), "r", "coach.weekly")
		require.NoError(t, err)
		assert.Equal(t, "300", snap.OriginalTransactionID)
	})
}

func TestVerifyInAppFallback(t *testing.T) {
	t.Parallel()

	body := map[string]any{
		"status":  0,
		"receipt": map[string]any{"in_app": []map[string]any{tx("coach.monthly", "400", now, now.Add(time.Hour))}},
	}
	snap, err := newVerifier(newEndpoint(t, http.StatusOK, body), nil).Verify(context.Background(), "r", "")
	require.NoError(t, err)
	assert.Equal(t, "400", snap.OriginalTransactionID)
}

func TestVerifyErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty receipt", func(t *testing.T) {
		t.Parallel()
		_, err := newVerifier(newEndpoint(t, http.StatusOK, receipt()), nil).Verify(ctx, "", "")
		assert.ErrorIs(t, err, appstore.ErrEmptyReceipt)
	})

	t.Run("server error is transient", func(t *testing.T) {
		t.Parallel()
		_, err := newVerifier(newEndpoint(t, http.StatusServiceUnavailable, map[string]any{}), nil).Verify(ctx, "r", "")
		assert.ErrorIs(t, err, appstore.ErrTransient)
	})

	t.Run("apple internal status is transient", func(t *testing.T) {
		t.Parallel()
		for _, status := range []int{21005, 21100, 21199} {
			_, err := newVerifier(newEndpoint(t, http.StatusOK, map[string]any{"status": status}), nil).Verify(ctx, "r", "")
			assert.ErrorIs(t, err, appstore.ErrTransient, "status %d", status)
		}
	})

	t.Run("malformed receipt is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := newVerifier(newEndpoint(t, http.StatusOK, map[string]any{"status": 21003}), nil).Verify(ctx, "r", "")
		assert.ErrorIs(t, err, appstore.ErrRejected)
		var rejected *appstore.RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, 21003, rejected.Status)
	})

	t.Run("no transactions", func(t *testing.T) {
		t.Parallel()
		_, err := newVerifier(newEndpoint(t, http.StatusOK, receipt()), nil).Verify(ctx, "r", "")
		assert.ErrorIs(t, err, appstore.ErrNoActiveSubscription)
	})

	t.Run("unparsable transaction list", func(t *testing.T) {
		t.Parallel()
		body := map[string]any{"status": 0, "latest_receipt_info": "not a list"}
		_, err := newVerifier(newEndpoint(t, http.StatusOK, body), nil).Verify(ctx, "r", "")
		assert.ErrorIs(t, err, appstore.ErrNoActiveSubscription)
		assert.NotErrorIs(t, err, appstore.ErrTransient)
	})

	t.Run("malformed entries are skipped", func(t *testing.T) {
		t.Parallel()
		broken := map[string]any{"product_id": "coach.monthly", "expires_date_ms": map[string]any{"bad": true}}
		good := tx("coach.monthly", "300", now.Add(-time.Hour), now.Add(time.Hour))
		body := map[string]any{"status": 0, "latest_receipt_info": []any{broken, good}}
		snap, err := newVerifier(newEndpoint(t, http.StatusOK, body), nil).Verify(ctx, "r", "")
		require.NoError(t, err)
		assert.Equal(t, "300", snap.OriginalTransactionID)
	})

	t.Run("unreachable endpoint is transient", func(t *testing.T) {
		t.Parallel()
		e := newEndpoint(t, http.StatusOK, receipt())
		e.srv.Close()
		_, err := newVerifier(e, nil).Verify(ctx, "r", "")
		assert.ErrorIs(t, err, appstore.ErrTransient)
	})
}
