package coaching

import (
	"github.com/dmitrymomot/coachgate/handler"
	"github.com/dmitrymomot/coachgate/pkg/coach"
	"github.com/dmitrymomot/coachgate/pkg/jwt"
)

type chatRequest struct {
	Message   string          `json:"message" validate:"required"`
	History   []coach.Message `json:"history" validate:"max=50,dive"`
	IsDeep    *bool           `json:"isDeep"`
	SessionID string          `json:"sessionId" validate:"omitempty,max=128"`
	coach.Streak
}

func (m *Module) chat(ctx handler.Context, req chatRequest) handler.Response {
	out, err := m.svc.Chat(ctx, jwt.UserIDFromContext(ctx), coach.ChatInput{
		Message:   req.Message,
		History:   req.History,
		Streak:    req.Streak,
		Deep:      req.IsDeep,
		SessionID: req.SessionID,
	})
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(out)
}

type voiceRequest struct {
	Message string `json:"message" validate:"required"`
}

func (m *Module) voice(ctx handler.Context, req voiceRequest) handler.Response {
	out, err := m.svc.Voice(ctx, jwt.UserIDFromContext(ctx), req.Message)
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(out)
}

type speechRequest struct {
	Text             string `json:"text" validate:"required,max=4000"`
	EstimatedSeconds int64  `json:"estimatedSeconds" validate:"gte=0,lte=600"`
}

func (m *Module) speech(ctx handler.Context, req speechRequest) handler.Response {
	out, err := m.svc.Speech(ctx, jwt.UserIDFromContext(ctx), req.Text, req.EstimatedSeconds)
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(out)
}

func (m *Module) affirmation(ctx handler.Context, _ struct{}) handler.Response {
	out, err := m.svc.Affirmation(ctx, jwt.UserIDFromContext(ctx))
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(out)
}

type crisisRequest struct {
	coach.Streak
}

func (m *Module) crisisGuidance(ctx handler.Context, req crisisRequest) handler.Response {
	out, err := m.svc.CrisisGuidance(ctx, jwt.UserIDFromContext(ctx), req.Streak)
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(out)
}

type reportRequest struct {
	DeviceID    string   `json:"deviceId" validate:"required,max=128"`
	Frequency   string   `json:"frequency" validate:"max=64"`
	Effects     []string `json:"effects" validate:"max=20,dive,max=200"`
	Triggers    []string `json:"triggers" validate:"max=20,dive,max=200"`
	Goals       []string `json:"goals" validate:"max=20,dive,max=200"`
	GoalDetails string   `json:"goalDetails" validate:"max=1000"`
}

func (m *Module) onboardingReport(ctx handler.Context, req reportRequest) handler.Response {
	out, err := m.svc.OnboardingReport(ctx, coach.ReportInput{
		DeviceID:    req.DeviceID,
		Frequency:   req.Frequency,
		Effects:     req.Effects,
		Triggers:    req.Triggers,
		Goals:       req.Goals,
		GoalDetails: req.GoalDetails,
	})
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(out)
}
