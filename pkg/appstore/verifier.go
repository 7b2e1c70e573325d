package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/coachgate/pkg/logger"
	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

const maxResponseSize = 8 << 20

// Verifier validates receipts with Apple. It holds no local state.
type Verifier struct {
	client        *http.Client
	productionURL string
	sandboxURL    string
	secret        string
	now           func() time.Time
	log           *slog.Logger
}

type Option func(*Verifier)

func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithClock overrides the time stamped into snapshots as VerifiedAt.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

func NewVerifier(cfg Config, opts ...Option) *Verifier {
	v := &Verifier{
		client:        &http.Client{Timeout: cfg.Timeout},
		productionURL: cfg.ProductionURL,
		sandboxURL:    cfg.SandboxURL,
		secret:        cfg.SharedSecret,
		now:           time.Now,
		log:           logger.Noop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates receipt and returns the snapshot of the most relevant
// transaction. When productID is set and at least one transaction matches
// it, only matching transactions are considered.
func (v *Verifier) Verify(ctx context.Context, receipt, productID string) (*subscription.Snapshot, error) {
	if receipt == "" {
		return nil, ErrEmptyReceipt
	}

	env := subscription.EnvProduction
	resp, err := v.post(ctx, v.productionURL, receipt)
	if err != nil {
		return nil, err
	}
	if resp.Status == statusSandboxReceipt {
		v.log.DebugContext(ctx, "sandbox receipt, retrying against sandbox endpoint")
		env = subscription.EnvSandbox
		if resp, err = v.post(ctx, v.sandboxURL, receipt); err != nil {
			return nil, err
		}
	}

	switch {
	case resp.Status == statusOK:
	case transientStatus(resp.Status):
		return nil, errors.Join(ErrTransient, fmt.Errorf("status %d", resp.Status))
	default:
		return nil, &RejectedError{Status: resp.Status}
	}

	tx, ok := selectTransaction(resp.transactions(), productID)
	if !ok {
		return nil, ErrNoActiveSubscription
	}

	return &subscription.Snapshot{
		ProductID:             tx.productID(),
		OriginalTransactionID: tx.originalTransactionID(),
		TransactionID:         tx.transactionID(),
		PurchaseTime:          tx.purchased(),
		ExpiresTime:           tx.expires(),
		IsTrial:               tx.trial(),
		IsIntroOffer:          tx.introOffer(),
		AutoRenewStatus:       resp.autoRenew(tx.originalTransactionID()),
		Environment:           env,
		VerifiedAt:            v.now().UTC(),
	}, nil
}

func (v *Verifier) post(ctx context.Context, url, receipt string) (*verifyResponse, error) {
	body, err := json.Marshal(verifyRequest{
		ReceiptData:            receipt,
		Password:               v.secret,
		ExcludeOldTransactions: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := v.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrTransient, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Join(ErrTransient, fmt.Errorf("http status %d", res.StatusCode))
	}
	if res.StatusCode != http.StatusOK {
		return nil, &RejectedError{Status: res.StatusCode}
	}

	var out verifyResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, errors.Join(ErrTransient, err)
	}
	return &out, nil
}

// selectTransaction picks the latest expiring transaction, breaking ties by
// purchase time.
func selectTransaction(txs transactionList, productID string) (transactionInfo, bool) {
	if len(txs) == 0 {
		return transactionInfo{}, false
	}

	candidates := txs
	if productID != "" {
		var matching transactionList
		for _, t := range txs {
			if t.productID() == productID {
				matching = append(matching, t)
			}
		}
		if len(matching) > 0 {
			candidates = matching
		}
	}

	best := candidates[0]
	for _, t := range candidates[1:] {
		if newer(t, best) {
			best = t
		}
	}
	return best, true
}

func newer(a, b transactionInfo) bool {
	ae, be := a.expires(), b.expires()
	switch {
	case ae == nil && be != nil:
		return false
	case ae != nil && be == nil:
		return true
	case ae != nil && !ae.Equal(*be):
		return ae.After(*be)
	}
	return a.purchased().After(b.purchased())
}
