package coaching

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/coachgate/binder"
	"github.com/dmitrymomot/coachgate/handler"
	"github.com/dmitrymomot/coachgate/pkg/coach"
	"github.com/dmitrymomot/coachgate/pkg/jwt"
	"github.com/dmitrymomot/coachgate/pkg/logger"
	"github.com/dmitrymomot/coachgate/pkg/quota"
	"github.com/dmitrymomot/coachgate/pkg/ratelimit"
	"github.com/dmitrymomot/coachgate/pkg/validator"
)

type Module struct {
	svc      *coach.Service
	policy   *quota.Policy
	auth     *jwt.Service
	limiter  *ratelimit.Limiter
	validate *validator.Validator
	log      *slog.Logger
}

type Option func(*Module)

// WithAnonymousLimiter throttles the anonymous endpoints per client address.
func WithAnonymousLimiter(l *ratelimit.Limiter) Option {
	return func(m *Module) {
		m.limiter = l
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

func New(svc *coach.Service, policy *quota.Policy, auth *jwt.Service, opts ...Option) *Module {
	if svc == nil {
		panic("coaching: coach service is required")
	}
	if policy == nil {
		panic("coaching: quota policy is required")
	}
	if auth == nil {
		panic("coaching: jwt service is required")
	}

	m := &Module{
		svc:      svc,
		policy:   policy,
		auth:     auth,
		validate: validator.New(),
		log:      logger.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("coaching"))
	return m
}

// Handle returns the module router.
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	onError := handler.NewErrorHandler[handler.Context](m.log)

	r.Group(func(r chi.Router) {
		r.Use(jwt.RequireUser(m.auth, unauthorized))

		r.Post("/chat", wrap(m.chat, onError, m.validate, binder.JSON()))
		r.Post("/voice", wrap(m.voice, onError, m.validate, binder.JSON()))
		r.Post("/speech", wrap(m.speech, onError, m.validate, binder.JSON()))
		r.Post("/affirmations", wrap(m.affirmation, onError, nil, binder.JSON(binder.AllowEmpty())))
		r.Post("/crisis-guidance", wrap(m.crisisGuidance, onError, m.validate, binder.JSON(binder.AllowEmpty())))
	})

	r.Group(func(r chi.Router) {
		if m.limiter != nil {
			r.Use(ratelimit.Middleware(m.limiter, ratelimit.WithOnLimitReached(throttled)))
		}
		r.Post("/onboarding-report", wrap(m.onboardingReport, onError, m.validate, binder.JSON()))
	})

	r.Group(func(r chi.Router) {
		r.Use(jwt.OptionalUser(m.auth, unauthorized))
		r.Get("/quota/{resource}", wrap(m.quota, onError, nil, binder.Path(chi.URLParam), bindQuery))
	})

	return r
}

// wrap applies the module's binders, validator and error handler.
func wrap[R any](h handler.HandlerFunc[handler.Context, R], onError handler.ErrorHandler[handler.Context], v *validator.Validator, binders ...handler.Bind) http.HandlerFunc {
	opts := []handler.WrapOption[handler.Context, R]{
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](onError),
	}
	if v != nil {
		opts = append(opts, handler.WithValidator[handler.Context, R](v.Struct))
	}
	return handler.Wrap(h, opts...)
}

func unauthorized(w http.ResponseWriter, r *http.Request, _ error) {
	handler.RenderError(w, r, handler.ErrUnauthorized)
}

func throttled(w http.ResponseWriter, r *http.Request, _ time.Duration) {
	handler.RenderError(w, r, handler.ErrTooManyRequests)
}
