package coach_test

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/coachgate/pkg/coach"
	"github.com/dmitrymomot/coachgate/pkg/quota"
)

var now = time.Date(2026, 10, 16, 9, 15, 0, 0, time.UTC)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Complete(ctx context.Context, req coach.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Speak(ctx context.Context, text string) ([]byte, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveExchange(ctx context.Context, e coach.Exchange) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockStore) SaveReport(ctx context.Context, r coach.Report) error {
	return m.Called(ctx, r).Error(0)
}

type entitlements map[string]bool

func (e entitlements) Entitled(_ context.Context, userID string) bool {
	return e[userID]
}

// txCounters holds commits until the surrounding transaction finishes.
type txCounters struct {
	*quota.MemoryStore
	mu      sync.Mutex
	pending []func()
}

func (s *txCounters) Transactional() bool { return true }

func (s *txCounters) Commit(ctx context.Context, key quota.CounterKey, reserved, actual int64, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, func() {
		_ = s.MemoryStore.Commit(ctx, key, reserved, actual, retention)
	})
	return nil
}

// failingTx runs fn, then fails to commit and drops its writes.
func (s *txCounters) failingTx(ctx context.Context, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	return errors.New("commit failed")
}

type fixture struct {
	svc      *coach.Service
	ledger   *quota.Ledger
	provider *mockProvider
	store    *mockStore
	txCalls  int
	mu       sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{provider: &mockProvider{}, store: &mockStore{}}
	f.ledger = quota.NewLedger(quota.NewMemoryStore(), quota.DefaultPolicy(), quota.WithClock(func() time.Time { return now }))
	f.svc = coach.NewService(f.ledger, entitlements{"paid": true}, f.provider, f.store,
		coach.WithClock(func() time.Time { return now }),
		coach.WithPersona("Tester"),
		coach.WithTransactor(func(ctx context.Context, fn func(context.Context) error) error {
			f.mu.Lock()
			f.txCalls++
			f.mu.Unlock()
			return fn(ctx)
		}),
	)
	return f
}

func (f *fixture) usage(t *testing.T, subject string, r quota.Resource) *quota.Usage {
	t.Helper()
	u, err := f.ledger.Usage(context.Background(), subject, r)
	require.NoError(t, err)
	return u
}

func TestNewServicePanics(t *testing.T) {
	t.Parallel()

	ledger := quota.NewLedger(quota.NewMemoryStore(), quota.DefaultPolicy())
	assert.Panics(t, func() { coach.NewService(nil, entitlements{}, &mockProvider{}, &mockStore{}) })
	assert.Panics(t, func() { coach.NewService(ledger, nil, &mockProvider{}, &mockStore{}) })
	assert.Panics(t, func() { coach.NewService(ledger, entitlements{}, nil, &mockStore{}) })
	assert.Panics(t, func() { coach.NewService(ledger, entitlements{}, &mockProvider{}, nil) })
}

func TestChat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("commits usage and stores exchange", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.MatchedBy(func(r coach.CompletionRequest) bool {
			return r.MaxTokens == 500 && r.Prompt == "I feel an urge right now" && len(r.History) == 1
		})).Return("Breathe with me.", nil).Once()
		f.store.On("SaveExchange", mock.Anything, mock.MatchedBy(func(e coach.Exchange) bool {
			return e.UserID == "paid" && e.SessionID == "s1" && e.ReplyText == "Breathe with me." && e.Kind == coach.KindChat
		})).Return(nil).Once()

		reply, err := f.svc.Chat(ctx, "paid", coach.ChatInput{
			Message:   "I feel an urge right now",
			History:   []coach.Message{{Role: coach.RoleAssistant, Content: "Hi"}},
			SessionID: "s1",
		})
		require.NoError(t, err)
		assert.Equal(t, "Breathe with me.", reply.Reply)
		assert.Equal(t, "deep", reply.ResponseType)
		assert.Equal(t, "s1", reply.SessionID)

		u := f.usage(t, "paid", quota.Chat)
		assert.EqualValues(t, 1, u.Windows[0].Used)
		assert.EqualValues(t, 0, u.Windows[0].Reserved)
		assert.Equal(t, 1, f.txCalls)
		f.provider.AssertExpectations(t)
		f.store.AssertExpectations(t)
	})

	t.Run("generates session id and honours explicit casual flag", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.MatchedBy(func(r coach.CompletionRequest) bool {
			return r.MaxTokens == 200
		})).Return("", coach.ErrEmptyReply).Once()
		f.store.On("SaveExchange", mock.Anything, mock.Anything).Return(nil).Once()

		casual := false
		reply, err := f.svc.Chat(ctx, "paid", coach.ChatInput{Message: "help", Deep: &casual})
		require.NoError(t, err)
		assert.Equal(t, "casual", reply.ResponseType)
		assert.NotEmpty(t, reply.SessionID)
		assert.Equal(t, "Sorry, something went wrong.", reply.Reply)
	})

	t.Run("requires entitlement", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Chat(ctx, "free", coach.ChatInput{Message: "hello"})
		assert.ErrorIs(t, err, coach.ErrNotEntitled)
		f.provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("provider failure releases reservation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.Anything).Return("", coach.ErrProviderUnavailable).Once()

		_, err := f.svc.Chat(ctx, "paid", coach.ChatInput{Message: "hello"})
		assert.ErrorIs(t, err, coach.ErrProviderUnavailable)

		u := f.usage(t, "paid", quota.Chat)
		assert.EqualValues(t, 0, u.Windows[0].Used)
		assert.EqualValues(t, 0, u.Windows[0].Reserved)
	})

	t.Run("persist failure releases reservation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.Anything).Return("ok", nil).Once()
		f.store.On("SaveExchange", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

		_, err := f.svc.Chat(ctx, "paid", coach.ChatInput{Message: "hello"})
		assert.ErrorIs(t, err, coach.ErrPersistFailed)

		u := f.usage(t, "paid", quota.Chat)
		assert.EqualValues(t, 0, u.Windows[0].Used)
		assert.EqualValues(t, 0, u.Windows[0].Reserved)
	})

	t.Run("rolled back commit releases reservation", func(t *testing.T) {
		t.Parallel()
		store := &txCounters{MemoryStore: quota.NewMemoryStore()}
		ledger := quota.NewLedger(store, quota.DefaultPolicy(), quota.WithClock(func() time.Time { return now }))
		provider, saved := &mockProvider{}, &mockStore{}
		provider.On("Complete", mock.Anything, mock.Anything).Return("ok", nil).Once()
		saved.On("SaveExchange", mock.Anything, mock.Anything).Return(nil).Once()
		svc := coach.NewService(ledger, entitlements{"paid": true}, provider, saved,
			coach.WithClock(func() time.Time { return now }),
			coach.WithTransactor(store.failingTx),
		)

		_, err := svc.Chat(ctx, "paid", coach.ChatInput{Message: "hello"})
		require.Error(t, err)

		u, err := ledger.Usage(ctx, "paid", quota.Chat)
		require.NoError(t, err)
		for _, w := range u.Windows {
			assert.EqualValues(t, 0, w.Used)
			assert.EqualValues(t, 0, w.Reserved)
		}
	})

	t.Run("hourly limit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.Anything).Return("ok", nil)
		f.store.On("SaveExchange", mock.Anything, mock.Anything).Return(nil)

		for range 20 {
			_, err := f.svc.Chat(ctx, "paid", coach.ChatInput{Message: "hello"})
			require.NoError(t, err)
		}
		_, err := f.svc.Chat(ctx, "paid", coach.ChatInput{Message: "hello"})
		var denied *quota.DeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, quota.Hourly, denied.Period)
		assert.Equal(t, time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC), denied.ResetAt)
		f.provider.AssertNumberOfCalls(t, "Complete", 20)
	})

	t.Run("validates message", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Chat(ctx, "paid", coach.ChatInput{Message: "   "})
		assert.ErrorIs(t, err, coach.ErrMessageRequired)

		long := make([]rune, coach.MaxMessageLength+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err = f.svc.Chat(ctx, "paid", coach.ChatInput{Message: string(long)})
		assert.ErrorIs(t, err, coach.ErrMessageTooLong)

		_, err = f.svc.Chat(ctx, "", coach.ChatInput{Message: "hi"})
		assert.ErrorIs(t, err, coach.ErrUserRequired)
	})
}

func TestChatSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	proceed := make(chan struct{})
	saved := make(chan struct{})

	f.provider.On("Complete", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-proceed
	}).Return("late reply", nil).Once()
	f.store.On("SaveExchange", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(saved)
	}).Return(nil).Once()

	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.Chat(ctx, "paid", coach.ChatInput{Message: "hello"})
		errc <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	close(proceed)
	<-saved

	assert.Eventually(t, func() bool {
		u, err := f.ledger.Usage(context.Background(), "paid", quota.Chat)
		return err == nil && u.Windows[0].Used == 1 && u.Windows[0].Reserved == 0
	}, time.Second, 10*time.Millisecond)
}

func TestVoiceAndAffirmation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.provider.On("Complete", mock.Anything, mock.MatchedBy(func(r coach.CompletionRequest) bool {
		return r.MaxTokens == 150 && r.Temperature == 0.9
	})).Return("Short and warm.", nil).Once()
	f.provider.On("Complete", mock.Anything, mock.MatchedBy(func(r coach.CompletionRequest) bool {
		return r.MaxTokens == 150 && r.Temperature == 0.8
	})).Return("I am strong\nI am calm", nil)

	v, err := f.svc.Voice(ctx, "paid", "talk to me")
	require.NoError(t, err)
	assert.Equal(t, "Short and warm.", v.Reply)
	assert.EqualValues(t, 49, v.RemainingToday)

	for want := int64(2); want >= 0; want-- {
		a, err := f.svc.Affirmation(ctx, "paid")
		require.NoError(t, err)
		assert.Equal(t, want, a.RemainingToday)
		assert.Equal(t, now, a.GeneratedAt)
	}
	_, err = f.svc.Affirmation(ctx, "paid")
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
}

func wav(seconds int) []byte {
	const rate = 8000
	data := make([]byte, rate*2*seconds)
	b := []byte("RIFF")
	b = binary.LittleEndian.AppendUint32(b, uint32(36+len(data)))
	b = append(b, "WAVEfmt "...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint32(b, rate)
	b = binary.LittleEndian.AppendUint32(b, rate*2)
	b = binary.LittleEndian.AppendUint16(b, 2)
	b = binary.LittleEndian.AppendUint16(b, 16)
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

func TestSpeech(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("commits measured duration", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		audio := wav(7)
		f.provider.On("Speak", mock.Anything, "hello there").Return(audio, nil).Once()

		res, err := f.svc.Speech(ctx, "paid", "hello there", 30)
		require.NoError(t, err)
		assert.False(t, res.UseFallback)
		assert.Equal(t, base64.StdEncoding.EncodeToString(audio), res.AudioBase64)
		assert.EqualValues(t, 240-7, res.RemainingSeconds)
	})

	t.Run("estimate larger than remaining is denied", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Speech(ctx, "paid", "hello", 241)
		assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	})

	t.Run("provider failure falls back without usage", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Speak", mock.Anything, mock.Anything).Return(nil, coach.ErrProviderUnavailable).Once()

		res, err := f.svc.Speech(ctx, "paid", "hello", 10)
		require.NoError(t, err)
		assert.True(t, res.UseFallback)
		assert.Empty(t, res.AudioBase64)
		assert.EqualValues(t, 240, res.RemainingSeconds)
	})

	t.Run("unmeasurable audio commits estimate", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Speak", mock.Anything, mock.Anything).Return([]byte("mp3?"), nil).Once()

		res, err := f.svc.Speech(ctx, "paid", "hello", 12)
		require.NoError(t, err)
		assert.EqualValues(t, 240-12, res.RemainingSeconds)
	})

	t.Run("not entitled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Speech(ctx, "free", "hello", 5)
		assert.ErrorIs(t, err, coach.ErrNotEntitled)
	})
}

func TestCrisisGuidance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no entitlement needed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.MatchedBy(func(r coach.CompletionRequest) bool {
			return r.JSON
		})).Return(`{"main":"Stay with me.","guidanceText":"Breathe in for four."}`, nil).Once()

		g, err := f.svc.CrisisGuidance(ctx, "free", coach.Streak{Current: 4, Longest: 9})
		require.NoError(t, err)
		assert.Equal(t, "Stay with me.", g.MainText)
		assert.Equal(t, "Breathe in for four.", g.GuidanceText)
		assert.False(t, g.IsFallback)
		assert.EqualValues(t, 9, g.RemainingUses)
	})

	t.Run("malformed json falls back without usage", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.Anything).Return("not json", nil).Once()

		g, err := f.svc.CrisisGuidance(ctx, "free", coach.Streak{Current: 4})
		require.NoError(t, err)
		assert.True(t, g.IsFallback)
		assert.Contains(t, g.MainText, "4 days")
		assert.EqualValues(t, 10, g.RemainingUses)
	})
}

func TestOnboardingReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stores report", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.MatchedBy(func(r coach.CompletionRequest) bool {
			return r.JSON && r.Prompt == "Generate the report JSON"
		})).Return(`{"insight":"You can do this."}`, nil).Once()
		f.store.On("SaveReport", mock.Anything, mock.MatchedBy(func(r coach.Report) bool {
			return r.DeviceID == "device-1" && r.EstimatedDays == 15 && r.Frequency == "Unknown"
		})).Return(nil).Once()

		rep, err := f.svc.OnboardingReport(ctx, coach.ReportInput{DeviceID: "device-1", Goals: []string{"focus"}})
		require.NoError(t, err)
		assert.Equal(t, "You can do this.", rep.Insight)
		assert.Equal(t, coach.DefaultEstimatedDays, rep.EstimatedDays)
		assert.NotEmpty(t, rep.ID)
		assert.EqualValues(t, 4, rep.RemainingToday)
		f.store.AssertExpectations(t)
	})

	t.Run("provider failure falls back", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("Complete", mock.Anything, mock.Anything).Return("", coach.ErrProviderUnavailable).Once()

		rep, err := f.svc.OnboardingReport(ctx, coach.ReportInput{DeviceID: "device-1"})
		require.NoError(t, err)
		assert.True(t, rep.IsFallback)
		assert.Equal(t, coach.DefaultEstimatedDays, rep.EstimatedDays)
		assert.EqualValues(t, 5, rep.RemainingToday)
		f.store.AssertNotCalled(t, "SaveReport", mock.Anything, mock.Anything)
	})

	t.Run("device required", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.OnboardingReport(ctx, coach.ReportInput{})
		assert.ErrorIs(t, err, coach.ErrDeviceRequired)
	})
}

func TestQuota(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	u, err := f.svc.Quota(context.Background(), "paid", quota.Chat)
	require.NoError(t, err)
	assert.True(t, u.CanUse)
	assert.EqualValues(t, 20, u.Remaining())
}
