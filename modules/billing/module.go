package billing

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/coachgate/binder"
	"github.com/dmitrymomot/coachgate/handler"
	"github.com/dmitrymomot/coachgate/pkg/appstore"
	"github.com/dmitrymomot/coachgate/pkg/jwt"
	"github.com/dmitrymomot/coachgate/pkg/logger"
	"github.com/dmitrymomot/coachgate/pkg/subscription"
	"github.com/dmitrymomot/coachgate/pkg/validator"
)

// ReceiptVerifier validates a receipt with the store.
type ReceiptVerifier interface {
	Verify(ctx context.Context, receipt, productID string) (*subscription.Snapshot, error)
}

// NotificationHandler applies a parsed notification.
type NotificationHandler interface {
	Handle(ctx context.Context, n *subscription.Notification) (subscription.Outcome, error)
}

// Recorder counts billing events.
type Recorder interface {
	ReceiptVerified(result string)
	NotificationHandled(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ReceiptVerified(string)     {}
func (noopRecorder) NotificationHandled(string) {}

type Module struct {
	verifier   ReceiptVerifier
	subs       subscription.Service
	reconciler NotificationHandler
	jws        *appstore.JWSVerifier
	auth       *jwt.Service
	validate   *validator.Validator
	metrics    Recorder
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*Module)

// WithAuth enables bearer tokens. Without it every request is anonymous and
// the entitlement endpoint is not mounted.
func WithAuth(s *jwt.Service) Option {
	return func(m *Module) {
		m.auth = s
	}
}

// WithSignatureVerifier checks signed notification payloads against the
// Apple root. Without it signed payloads are decoded unverified.
func WithSignatureVerifier(v *appstore.JWSVerifier) Option {
	return func(m *Module) {
		m.jws = v
	}
}

func WithMetrics(r Recorder) Option {
	return func(m *Module) {
		if r != nil {
			m.metrics = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

func New(verifier ReceiptVerifier, subs subscription.Service, reconciler NotificationHandler, opts ...Option) *Module {
	if verifier == nil {
		panic("billing: receipt verifier is required")
	}
	if subs == nil {
		panic("billing: subscription service is required")
	}
	if reconciler == nil {
		panic("billing: notification handler is required")
	}

	m := &Module{
		verifier:   verifier,
		subs:       subs,
		reconciler: reconciler,
		validate:   validator.New(),
		metrics:    noopRecorder{},
		now:        time.Now,
		log:        logger.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("billing"))
	return m
}

// Handle returns the module router.
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	onError := handler.NewErrorHandler[handler.Context](m.log)

	if m.jws == nil {
		m.log.Warn("notification signatures are not verified")
	}

	r.Post("/appstore/notifications", handler.Wrap(m.notification,
		handler.WithErrorHandler[handler.Context, struct{}](onError),
	))

	r.Group(func(r chi.Router) {
		if m.auth != nil {
			r.Use(jwt.OptionalUser(m.auth, unauthorized))
		}
		r.Post("/receipts/verify", handler.Wrap(m.verify,
			handler.WithBinders[handler.Context, verifyRequest](binder.JSON()),
			handler.WithValidator[handler.Context, verifyRequest](m.validate.Struct),
			handler.WithErrorHandler[handler.Context, verifyRequest](onError),
		))
	})

	if m.auth != nil {
		r.Group(func(r chi.Router) {
			r.Use(jwt.RequireUser(m.auth, unauthorized))
			r.Get("/entitlement", handler.Wrap(m.entitlement,
				handler.WithErrorHandler[handler.Context, struct{}](onError),
			))
		})
	}

	return r
}

func unauthorized(w http.ResponseWriter, r *http.Request, _ error) {
	handler.RenderError(w, r, handler.ErrUnauthorized)
}
