package billing

import (
	"errors"
	"io"
	"log/slog"

	"github.com/dmitrymomot/coachgate/handler"
	"github.com/dmitrymomot/coachgate/pkg/appstore"
	"github.com/dmitrymomot/coachgate/pkg/logger"
)

const maxNotificationSize = 1 << 20

type ackResponse struct {
	Outcome string `json:"outcome"`
}

// notification receives App Store server notifications. Anything that cannot
// be acted on is acknowledged so the store stops retrying; only internal
// faults answer 500.
func (m *Module) notification(ctx handler.Context, _ struct{}) handler.Response {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxNotificationSize))
	if err != nil {
		return handler.Error(errors.Join(handler.ErrBadRequest, err))
	}

	n, err := appstore.ParseNotification(body, m.jws)
	if err != nil {
		outcome := "unparsable"
		if errors.Is(err, appstore.ErrUnverifiedPayload) || errors.Is(err, appstore.ErrInvalidCertificate) {
			outcome = "unverified"
		}
		m.metrics.NotificationHandled(outcome)
		m.log.WarnContext(ctx, "notification ignored", logger.Error(err), slog.String("outcome", outcome))
		return handler.JSON(ackResponse{Outcome: outcome})
	}

	outcome, err := m.reconciler.Handle(ctx, n)
	if err != nil {
		m.metrics.NotificationHandled("error")
		return handler.Error(err)
	}
	m.metrics.NotificationHandled(string(outcome))
	return handler.JSON(ackResponse{Outcome: string(outcome)})
}
