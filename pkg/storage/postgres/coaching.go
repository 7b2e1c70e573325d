package postgres

import (
	"context"

	"github.com/dmitrymomot/coachgate/pkg/coach"
	"github.com/dmitrymomot/coachgate/pkg/pg"
)

// Coaching implements coach.Store.
type Coaching struct {
	db pg.DBTX
}

func NewCoaching(db pg.DBTX) *Coaching {
	return &Coaching{db: db}
}

func (s *Coaching) SaveExchange(ctx context.Context, e coach.Exchange) error {
	_, err := pg.Conn(ctx, s.db).Exec(ctx, `
INSERT INTO chat_exchanges (id, session_id, user_id, kind, user_text, reply_text, response_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.SessionID, e.UserID, string(e.Kind), e.UserText, e.ReplyText, e.ResponseType, e.CreatedAt)
	return err
}

func (s *Coaching) SaveReport(ctx context.Context, r coach.Report) error {
	_, err := pg.Conn(ctx, s.db).Exec(ctx, `
INSERT INTO onboarding_reports (id, device_id, frequency, effects, triggers, goals, goal_details, insight, estimated_days, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.DeviceID, r.Frequency, nonNil(r.Effects), nonNil(r.Triggers), nonNil(r.Goals),
		r.GoalDetails, r.Insight, r.EstimatedDays, r.CreatedAt)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
