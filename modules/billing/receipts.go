package billing

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/coachgate/handler"
	"github.com/dmitrymomot/coachgate/pkg/appstore"
	"github.com/dmitrymomot/coachgate/pkg/jwt"
	"github.com/dmitrymomot/coachgate/pkg/logger"
	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

type verifyRequest struct {
	ReceiptData string `json:"receiptData" validate:"required"`
	ProductID   string `json:"productId" validate:"omitempty,max=255"`
	UserID      string `json:"userId" validate:"omitempty,max=255"`
}

type subscriptionView struct {
	subscription.Snapshot
	Active bool `json:"active"`
}

type verifyResponse struct {
	IsValid      bool              `json:"isValid"`
	Subscription *subscriptionView `json:"subscription,omitempty"`
	Message      string            `json:"message"`
}

// Verification outcomes reported to metrics.
const (
	resultValid     = "valid"
	resultRejected  = "rejected"
	resultNoSub     = "no_subscription"
	resultTransient = "transient"
	resultConflict  = "conflict"
	resultError     = "error"
)

// verify validates a receipt and, for an authenticated caller, claims the
// transaction and stores the snapshot. Anonymous callers only get the result.
// A transaction owned by another user is reported invalid and never applied.
func (m *Module) verify(ctx handler.Context, req verifyRequest) handler.Response {
	userID := jwt.UserIDFromContext(ctx)
	if req.UserID != "" && req.UserID != userID {
		m.log.WarnContext(ctx, "ignoring receipt user id that does not match the caller",
			logger.UserID(userID),
			slog.String("claimed_user_id", req.UserID),
		)
	}
	log := m.log.With(logger.UserID(userID), logger.ProductID(req.ProductID))

	snap, err := m.verifier.Verify(ctx, req.ReceiptData, req.ProductID)
	if err != nil {
		var rejected *appstore.RejectedError
		switch {
		case errors.As(err, &rejected):
			m.metrics.ReceiptVerified(resultRejected)
			log.WarnContext(ctx, "receipt rejected", slog.Int("status", rejected.Status))
			return handler.JSON(verifyResponse{Message: fmt.Sprintf("Receipt rejected: status %d", rejected.Status)})
		case errors.Is(err, appstore.ErrNoActiveSubscription):
			m.metrics.ReceiptVerified(resultNoSub)
			return handler.JSON(verifyResponse{Message: "No subscription found in receipt"})
		case errors.Is(err, appstore.ErrTransient):
			m.metrics.ReceiptVerified(resultTransient)
			return handler.Error(errors.Join(handler.ErrUpstreamUnavailable.WithMessage("receipt verification is temporarily unavailable"), err))
		default:
			m.metrics.ReceiptVerified(resultError)
			return handler.Error(err)
		}
	}

	now := m.now()
	active := snap.IsActiveAt(now)

	if userID != "" {
		if snap.OriginalTransactionID != "" {
			summary := subscription.Summary{ExpiresTime: snap.ExpiresTime, Active: active}
			err := m.subs.Register(ctx, snap.OriginalTransactionID, userID, snap.ProductID, summary)
			if errors.Is(err, subscription.ErrTransactionConflict) {
				m.metrics.ReceiptVerified(resultConflict)
				return handler.JSON(verifyResponse{Message: "Subscription belongs to another account"})
			}
			if err != nil {
				m.metrics.ReceiptVerified(resultError)
				return handler.Error(err)
			}
		}
		if _, err := m.subs.Apply(ctx, userID, *snap, subscription.SourceClientVerification, nil); err != nil {
			m.metrics.ReceiptVerified(resultError)
			return handler.Error(err)
		}
	}

	m.metrics.ReceiptVerified(resultValid)
	log.InfoContext(ctx, "receipt verified",
		logger.TransactionID(snap.OriginalTransactionID),
		logger.Environment(string(snap.Environment)),
		slog.Bool("active", active),
		slog.Bool("stored", userID != ""),
	)
	return handler.JSON(verifyResponse{
		IsValid:      true,
		Subscription: &subscriptionView{Snapshot: *snap, Active: active},
		Message:      statusMessage(active),
	})
}

func statusMessage(active bool) string {
	if active {
		return "Subscription active"
	}
	return "Subscription expired"
}

type entitlementResponse struct {
	Entitled bool                 `json:"entitled"`
	Record   *subscription.Record `json:"record,omitempty"`
	At       time.Time            `json:"at"`
}

// entitlement returns the caller's stored record and whether it is active now.
func (m *Module) entitlement(ctx handler.Context, _ struct{}) handler.Response {
	userID := jwt.UserIDFromContext(ctx)
	now := m.now()

	rec, err := m.subs.Get(ctx, userID)
	if errors.Is(err, subscription.ErrRecordNotFound) {
		return handler.JSON(entitlementResponse{At: now.UTC()})
	}
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(entitlementResponse{
		Entitled: rec.IsActiveAt(now),
		Record:   rec,
		At:       now.UTC(),
	})
}
