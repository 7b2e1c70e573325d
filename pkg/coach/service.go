package coach

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrymomot/coachgate/pkg/logger"
	"github.com/dmitrymomot/coachgate/pkg/quota"
)

const defaultReply = "Sorry, something went wrong."

// Service runs the metered coaching actions.
type Service struct {
	ledger       *quota.Ledger
	entitlements Entitlements
	provider     Provider
	store        Store
	tx           Transactor
	persona      string
	now          func() time.Time
	log          *slog.Logger
}

type Option func(*Service)

// WithTransactor makes result persistence and usage commit share a transaction.
func WithTransactor(tx Transactor) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

func WithPersona(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.persona = name
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService panics if any dependency is nil.
func NewService(ledger *quota.Ledger, entitlements Entitlements, provider Provider, store Store, opts ...Option) *Service {
	if ledger == nil {
		panic("coach: quota ledger is required")
	}
	if entitlements == nil {
		panic("coach: entitlements are required")
	}
	if provider == nil {
		panic("coach: provider is required")
	}
	if store == nil {
		panic("coach: store is required")
	}

	s := &Service{
		ledger:       ledger,
		entitlements: entitlements,
		provider:     provider,
		store:        store,
		tx:           noTx,
		persona:      "Coach",
		now:          time.Now,
		log:          logger.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("coach"))
	return s
}

type ChatInput struct {
	Message   string
	History   []Message
	Streak    Streak
	Deep      *bool // nil means classify the message
	SessionID string
}

type ChatReply struct {
	Reply        string `json:"reply"`
	SessionID    string `json:"sessionId"`
	ResponseType string `json:"responseType"`
}

func checkMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return ErrMessageRequired
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// Chat answers a coaching message and stores the exchange.
func (s *Service) Chat(ctx context.Context, userID string, in ChatInput) (*ChatReply, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	if err := checkMessage(in.Message); err != nil {
		return nil, err
	}

	deep := IsDeep(in.Message)
	if in.Deep != nil {
		deep = *in.Deep
	}
	req := CompletionRequest{
		System:      chatPrompt(s.persona, deep, in.Streak),
		History:     in.History,
		Prompt:      in.Message,
		MaxTokens:   200,
		Temperature: 0.8,
	}
	responseType := "casual"
	if deep {
		req.MaxTokens, req.Temperature, responseType = 500, 0.85, "deep"
	}
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return run(ctx, s, meter[*ChatReply]{
		subject:  userID,
		resource: quota.Chat,
		amount:   1,
		call: func(ctx context.Context) (*ChatReply, error) {
			reply, err := s.complete(ctx, req)
			if err != nil {
				return nil, err
			}
			return &ChatReply{Reply: reply, SessionID: sessionID, ResponseType: responseType}, nil
		},
		persist: func(ctx context.Context, out *ChatReply) error {
			return s.store.SaveExchange(ctx, Exchange{
				ID:           uuid.NewString(),
				SessionID:    sessionID,
				UserID:       userID,
				Kind:         KindChat,
				UserText:     in.Message,
				ReplyText:    out.Reply,
				ResponseType: responseType,
				CreatedAt:    s.now(),
			})
		},
	})
}

type VoiceReply struct {
	Reply          string `json:"reply"`
	RemainingToday int64  `json:"remainingToday"`
}

// Voice answers a spoken message with a short reply.
func (s *Service) Voice(ctx context.Context, userID, message string) (*VoiceReply, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	if err := checkMessage(message); err != nil {
		return nil, err
	}

	out, err := run(ctx, s, meter[*VoiceReply]{
		subject:  userID,
		resource: quota.Voice,
		amount:   1,
		call: func(ctx context.Context) (*VoiceReply, error) {
			reply, err := s.complete(ctx, CompletionRequest{
				System:      voicePrompt(s.persona),
				Prompt:      message,
				MaxTokens:   150,
				Temperature: 0.9,
			})
			if err != nil {
				return nil, err
			}
			return &VoiceReply{Reply: reply}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	out.RemainingToday = s.remaining(ctx, userID, quota.Voice)
	return out, nil
}

type SpeechResult struct {
	AudioBase64      string `json:"audioBase64,omitempty"`
	UseFallback      bool   `json:"useFallback"`
	Message          string `json:"message,omitempty"`
	RemainingSeconds int64  `json:"remainingSeconds"`
}

// Speech synthesizes text. The caller's duration estimate is reserved and
// the measured duration of the returned audio is committed. Provider
// failures yield UseFallback so the client can speak on-device.
func (s *Service) Speech(ctx context.Context, userID, text string, estimatedSeconds int64) (*SpeechResult, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextRequired
	}
	if estimatedSeconds <= 0 {
		estimatedSeconds = EstimateSpeechSeconds(text)
	}

	audio, err := run(ctx, s, meter[[]byte]{
		subject:  userID,
		resource: quota.Speech,
		amount:   estimatedSeconds,
		call: func(ctx context.Context) ([]byte, error) {
			return s.provider.Speak(ctx, text)
		},
		measure: func(audio []byte) int64 {
			secs, err := wavSeconds(audio)
			if err != nil {
				s.log.WarnContext(ctx, "cannot measure speech audio, committing estimate", logger.Error(err))
				return estimatedSeconds
			}
			return secs
		},
	})
	switch {
	case err == nil:
		return &SpeechResult{
			AudioBase64:      base64.StdEncoding.EncodeToString(audio),
			RemainingSeconds: s.remaining(ctx, userID, quota.Speech),
		}, nil
	case degradable(err):
		s.log.WarnContext(ctx, "speech provider failed, using fallback", logger.UserID(userID), logger.Error(err))
		return &SpeechResult{
			UseFallback:      true,
			Message:          "Premium speech is unavailable right now.",
			RemainingSeconds: s.remaining(ctx, userID, quota.Speech),
		}, nil
	default:
		return nil, err
	}
}

// EstimateSpeechSeconds guesses the spoken length of text at about 150
// words per minute.
func EstimateSpeechSeconds(text string) int64 {
	words := len(strings.Fields(text))
	return max(1, int64(math.Ceil(float64(words)/2.5)))
}

type Affirmation struct {
	Affirmation    string    `json:"affirmation"`
	RemainingToday int64     `json:"remainingToday"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// Affirmation generates a set of affirmations, one per line.
func (s *Service) Affirmation(ctx context.Context, userID string) (*Affirmation, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	text, err := run(ctx, s, meter[string]{
		subject:  userID,
		resource: quota.Affirmation,
		amount:   1,
		call: func(ctx context.Context) (string, error) {
			return s.provider.Complete(ctx, CompletionRequest{
				System:      affirmationSystem,
				Prompt:      affirmationUser,
				MaxTokens:   150,
				Temperature: 0.8,
			})
		},
	})
	if err != nil {
		return nil, err
	}
	return &Affirmation{
		Affirmation:    text,
		RemainingToday: s.remaining(ctx, userID, quota.Affirmation),
		GeneratedAt:    s.now().UTC(),
	}, nil
}

type Guidance struct {
	MainText      string    `json:"mainText"`
	GuidanceText  string    `json:"guidanceText"`
	RemainingUses int64     `json:"remainingUses"`
	Timestamp     time.Time `json:"timestamp"`
	IsFallback    bool      `json:"isFallback"`
}

type guidanceReply struct {
	MainText     string `json:"mainText"`
	Main         string `json:"main"`
	GuidanceText string `json:"guidanceText"`
	Guidance     string `json:"guidance"`
}

// CrisisGuidance returns grounding guidance for an urgent moment.
func (s *Service) CrisisGuidance(ctx context.Context, userID string, streak Streak) (*Guidance, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	g, err := run(ctx, s, meter[*Guidance]{
		subject:  userID,
		resource: quota.CrisisGuidance,
		amount:   1,
		call: func(ctx context.Context) (*Guidance, error) {
			raw, err := s.provider.Complete(ctx, CompletionRequest{
				System:      crisisPrompt(s.persona, streak),
				Prompt:      crisisUser(streak),
				MaxTokens:   400,
				Temperature: 0.85,
				JSON:        true,
			})
			if err != nil {
				return nil, err
			}
			var r guidanceReply
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				return nil, errors.Join(ErrMalformedReply, err)
			}
			return &Guidance{
				MainText:     firstNonEmpty(r.MainText, r.Main, defaultMainText),
				GuidanceText: firstNonEmpty(r.GuidanceText, r.Guidance, defaultGuidance),
			}, nil
		},
	})
	switch {
	case err == nil:
	case degradable(err):
		s.log.WarnContext(ctx, "crisis guidance provider failed, using fallback", logger.UserID(userID), logger.Error(err))
		g = &Guidance{IsFallback: true}
		g.MainText, g.GuidanceText = FallbackGuidance(streak)
	default:
		return nil, err
	}

	g.RemainingUses = s.remaining(ctx, userID, quota.CrisisGuidance)
	g.Timestamp = s.now().UTC()
	return g, nil
}

type ReportInput struct {
	DeviceID    string
	Frequency   string
	Effects     []string
	Triggers    []string
	Goals       []string
	GoalDetails string
}

type ReportResult struct {
	ID             string `json:"id,omitempty"`
	Insight        string `json:"insight"`
	EstimatedDays  int    `json:"estimatedDays"`
	RemainingToday int64  `json:"remainingToday"`
	IsFallback     bool   `json:"isFallback"`
}

type reportReply struct {
	Insight       string `json:"insight"`
	EstimatedDays int    `json:"estimatedDays"`
}

// OnboardingReport generates the pre-signup report for a device.
func (s *Service) OnboardingReport(ctx context.Context, in ReportInput) (*ReportResult, error) {
	if in.DeviceID == "" {
		return nil, ErrDeviceRequired
	}

	rep, err := run(ctx, s, meter[*ReportResult]{
		subject:  in.DeviceID,
		resource: quota.OnboardingReport,
		amount:   1,
		call: func(ctx context.Context) (*ReportResult, error) {
			raw, err := s.provider.Complete(ctx, CompletionRequest{
				System:      reportPrompt(s.persona, in),
				Prompt:      reportUser,
				MaxTokens:   400,
				Temperature: 0.8,
				JSON:        true,
			})
			if err != nil {
				return nil, err
			}
			var r reportReply
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				return nil, errors.Join(ErrMalformedReply, err)
			}
			if r.EstimatedDays <= 0 {
				r.EstimatedDays = DefaultEstimatedDays
			}
			return &ReportResult{ID: uuid.NewString(), Insight: r.Insight, EstimatedDays: r.EstimatedDays}, nil
		},
		persist: func(ctx context.Context, out *ReportResult) error {
			return s.store.SaveReport(ctx, Report{
				ID:            out.ID,
				DeviceID:      in.DeviceID,
				Frequency:     orDefault(in.Frequency, "Unknown"),
				Effects:       in.Effects,
				Triggers:      in.Triggers,
				Goals:         in.Goals,
				GoalDetails:   in.GoalDetails,
				Insight:       out.Insight,
				EstimatedDays: out.EstimatedDays,
				CreatedAt:     s.now(),
			})
		},
	})
	switch {
	case err == nil:
	case degradable(err):
		s.log.WarnContext(ctx, "report provider failed, using fallback", logger.DeviceID(in.DeviceID), logger.Error(err))
		rep = &ReportResult{Insight: fallbackInsight, EstimatedDays: DefaultEstimatedDays, IsFallback: true}
	default:
		return nil, err
	}

	rep.RemainingToday = s.remaining(ctx, in.DeviceID, quota.OnboardingReport)
	return rep, nil
}

// Quota reports the usage of resource for subject.
func (s *Service) Quota(ctx context.Context, subject string, resource quota.Resource) (*quota.Usage, error) {
	return s.ledger.Usage(ctx, subject, resource)
}

// complete is Complete with the chat default for empty replies.
func (s *Service) complete(ctx context.Context, req CompletionRequest) (string, error) {
	reply, err := s.provider.Complete(ctx, req)
	if errors.Is(err, ErrEmptyReply) {
		return defaultReply, nil
	}
	return reply, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
