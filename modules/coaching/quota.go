package coaching

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/coachgate/handler"
	"github.com/dmitrymomot/coachgate/pkg/jwt"
	"github.com/dmitrymomot/coachgate/pkg/quota"
)

type quotaRequest struct {
	Resource string `path:"resource"`
	DeviceID string
}

// bindQuery reads the device id of device-scoped resources.
func bindQuery(r *http.Request, v any) error {
	if req, ok := v.(*quotaRequest); ok {
		req.DeviceID = r.URL.Query().Get("deviceId")
	}
	return nil
}

type windowView struct {
	Period    string    `json:"period"`
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetsAt  time.Time `json:"resetsAt"`
}

type quotaResponse struct {
	Resource  string       `json:"resource"`
	CanUse    bool         `json:"canUse"`
	Remaining int64        `json:"remaining"`
	Limit     int64        `json:"limit"`
	Unit      string       `json:"unit"`
	Windows   []windowView `json:"windows"`
	ResetsAt  time.Time    `json:"resetsAt"`
	Resets    string       `json:"resets"`
}

// quota reports the caller's usage of one resource. User-scoped resources
// need a bearer token; device-scoped ones take the deviceId query parameter.
func (m *Module) quota(ctx handler.Context, req quotaRequest) handler.Response {
	resource, err := m.policy.ParseResource(strings.ReplaceAll(req.Resource, "-", "_"))
	if err != nil {
		return handler.Error(httpError(err))
	}
	rule, err := m.policy.Rule(resource)
	if err != nil {
		return handler.Error(httpError(err))
	}

	subject := jwt.UserIDFromContext(ctx)
	if rule.Scope == quota.ScopeDevice {
		if req.DeviceID == "" {
			return handler.Error(fieldError("deviceId", "is required"))
		}
		subject = req.DeviceID
	}
	if subject == "" {
		return handler.Error(handler.ErrUnauthorized)
	}

	u, err := m.svc.Quota(ctx, subject, resource)
	if err != nil {
		return handler.Error(httpError(err))
	}

	windows := make([]windowView, len(u.Windows))
	for i, w := range u.Windows {
		windows[i] = windowView{
			Period:    string(w.Period),
			Limit:     w.Limit,
			Used:      w.Used + w.Reserved,
			Remaining: w.Remaining,
			ResetsAt:  w.ResetAt.UTC(),
		}
	}
	return handler.JSON(quotaResponse{
		Resource:  string(u.Resource),
		CanUse:    u.CanUse,
		Remaining: u.Remaining(),
		Limit:     u.Binding.Limit,
		Unit:      string(u.Unit),
		Windows:   windows,
		ResetsAt:  u.Binding.ResetAt.UTC(),
		Resets:    u.Binding.Period.Resets(),
	})
}
