// Package event implements the participant registry and the shared event
// configuration on top of a storage.Store.
package event

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/models"
	"github.com/rkrmr33/bukber/internal/storage"
)

// maxConfigAttempts bounds the merge loop when concurrent admin writes race.
const maxConfigAttempts = 5

var errStaleVersion = &apperrors.Error{Kind: apperrors.KindConflict, Reason: apperrors.ReasonStaleVersion}

// Manager handles participants and the event configuration
type Manager struct {
	store         storage.Store
	now           func() time.Time
	lotteryPrefix string
	retryAttempts uint
	newBackOff    func() backoff.BackOff
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLotteryPrefix turns lottery numbers into "<prefix>-NNNN" ticket codes
func WithLotteryPrefix(prefix string) Option {
	return func(m *Manager) {
		m.lotteryPrefix = strings.TrimSpace(prefix)
	}
}

// WithRetry sets how many times a transient storage failure is attempted and
// the first backoff interval.
func WithRetry(attempts uint, initial time.Duration) Option {
	return func(m *Manager) {
		if attempts == 0 {
			attempts = 1
		}
		m.retryAttempts = attempts
		m.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = 20 * initial
			return b
		}
	}
}

// NewManager creates a new event manager
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		now:   time.Now,
	}
	WithRetry(4, 100*time.Millisecond)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListParticipants returns the full snapshot, newest first, access codes included
func (m *Manager) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	return retry(ctx, m, func() ([]models.Participant, error) {
		return m.store.ListParticipants(ctx)
	})
}

// GetParticipant retrieves a participant by id
func (m *Manager) GetParticipant(ctx context.Context, id string) (models.Participant, error) {
	return retry(ctx, m, func() (models.Participant, error) {
		return m.store.GetParticipant(ctx, id)
	})
}

// FindByName looks a participant up by case-insensitive name
func (m *Manager) FindByName(ctx context.Context, name string) (models.Participant, bool, error) {
	p, err := retry(ctx, m, func() (models.Participant, error) {
		return m.store.FindParticipantByNameKey(ctx, models.NameKey(name))
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.Participant{}, false, nil
	}
	if err != nil {
		return models.Participant{}, false, err
	}
	return p, true, nil
}

// Register creates a participant with a fresh id, access code and lottery
// number. A name already taken (case-insensitively) fails with a conflict
// naming the existing participant.
func (m *Manager) Register(ctx context.Context, name string) (models.Registration, error) {
	clean, err := ValidateName(name)
	if err != nil {
		return models.Registration{}, err
	}

	accessCode, err := generateAccessCode()
	if err != nil {
		return models.Registration{}, err
	}
	lotteryNumber, err := generateLotteryNumber(m.lotteryPrefix)
	if err != nil {
		return models.Registration{}, err
	}

	participant := models.Participant{
		ID:            uuid.NewString(),
		Name:          clean,
		AccessCode:    accessCode,
		LotteryNumber: lotteryNumber,
		CreatedAt:     m.now().UTC(),
	}

	key := models.NameKey(clean)
	_, err = retry(ctx, m, func() (struct{}, error) {
		return struct{}{}, m.store.InsertParticipant(ctx, participant, key)
	})
	if errors.Is(err, apperrors.ErrConflict) {
		existing, found, ferr := m.FindByName(ctx, clean)
		if ferr != nil {
			return models.Registration{}, ferr
		}
		if !found {
			return models.Registration{}, err
		}
		conflict, _ := apperrors.As(err)
		return models.Registration{}, conflict.WithMetadata(apperrors.MetaParticipantID, existing.ID)
	}
	if err != nil {
		return models.Registration{}, err
	}

	return models.Registration{
		ID:            participant.ID,
		Name:          participant.Name,
		AccessCode:    participant.AccessCode,
		LotteryNumber: participant.LotteryNumber,
	}, nil
}

// Verify checks an access code against the participant's. The comparison is
// exact after trimming surrounding whitespace.
func (m *Manager) Verify(ctx context.Context, id, accessCode string) (models.Participant, error) {
	code, err := ValidateAccessCode(accessCode)
	if err != nil {
		return models.Participant{}, err
	}

	p, err := m.GetParticipant(ctx, id)
	if err != nil {
		return models.Participant{}, err
	}

	if subtle.ConstantTimeCompare([]byte(p.AccessCode), []byte(code)) != 1 {
		return models.Participant{}, apperrors.Auth(apperrors.ReasonInvalidCode, "invalid access code")
	}
	return p, nil
}

// SubmitQuizAnswer records the participant's answer for the current quiz.
// An unknown id is a silent no-op. The first answer is final: repeating it
// succeeds, changing it fails with a conflict.
func (m *Manager) SubmitQuizAnswer(ctx context.Context, id string, index int) error {
	if index < 0 || index >= models.QuizOptionCount {
		return apperrors.Validation(apperrors.ReasonInvalidRequest, "quiz answer must be between 0 and 3")
	}

	cfg, err := m.GetConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.EventStatus != models.StatusQuiz || cfg.QuizData == nil {
		return apperrors.PhaseClosed("the quiz is not open")
	}

	applied, err := retry(ctx, m, func() (bool, error) {
		return m.store.SetQuizAnswer(ctx, id, index)
	})
	if err != nil || applied {
		return err
	}

	p, err := m.GetParticipant(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.QuizAnswer != nil && *p.QuizAnswer != index {
		return apperrors.Conflict(apperrors.ReasonAnswerLocked, "quiz answer already submitted")
	}
	return nil
}

// SaveMessage overwrites the participant's message while the message board is open
func (m *Manager) SaveMessage(ctx context.Context, id, text string) error {
	message, err := ValidateMessage(text)
	if err != nil {
		return err
	}

	cfg, err := m.GetConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.EventStatus != models.StatusMessages {
		return apperrors.PhaseClosed("the message board is not open")
	}

	_, err = retry(ctx, m, func() (struct{}, error) {
		return struct{}{}, m.store.SetMessage(ctx, id, message, m.now())
	})
	return err
}

// DeleteParticipant permanently removes a participant
func (m *Manager) DeleteParticipant(ctx context.Context, id string) error {
	_, err := retry(ctx, m, func() (struct{}, error) {
		return struct{}{}, m.store.DeleteParticipant(ctx, id)
	})
	return err
}

// GetConfig returns the current event configuration, or the default
func (m *Manager) GetConfig(ctx context.Context) (models.EventConfig, error) {
	return retry(ctx, m, func() (models.EventConfig, error) {
		return m.store.GetConfig(ctx)
	})
}

// ConfigChange is a merge into the event configuration. Nil fields are kept.
type ConfigChange struct {
	Status *models.EventStatus
	Quiz   *models.QuizData
	// ExpectedVersion rejects the write when the stored version differs.
	// Without it, concurrent admin writes are last-write-wins.
	ExpectedVersion *int64
}

// SetPhase merges the event status, preserving quiz content
func (m *Manager) SetPhase(ctx context.Context, status models.EventStatus, expectedVersion *int64) (models.EventConfig, error) {
	return m.UpdateConfig(ctx, ConfigChange{Status: &status, ExpectedVersion: expectedVersion})
}

// SetQuiz merges quiz content, preserving the event status
func (m *Manager) SetQuiz(ctx context.Context, quiz models.QuizData, expectedVersion *int64) (models.EventConfig, error) {
	return m.UpdateConfig(ctx, ConfigChange{Quiz: &quiz, ExpectedVersion: expectedVersion})
}

// UpdateConfig applies change and bumps the configuration version. Replacing
// the quiz question starts a new round and clears every recorded answer.
func (m *Manager) UpdateConfig(ctx context.Context, change ConfigChange) (models.EventConfig, error) {
	if change.Status == nil && change.Quiz == nil {
		return models.EventConfig{}, apperrors.Validation(apperrors.ReasonInvalidRequest, "nothing to update")
	}
	if change.Status != nil && !change.Status.Valid() {
		return models.EventConfig{}, apperrors.Validation(apperrors.ReasonInvalidRequest, "unknown event status")
	}
	var quiz *models.QuizData
	if change.Quiz != nil {
		q, err := ValidateQuiz(*change.Quiz)
		if err != nil {
			return models.EventConfig{}, err
		}
		quiz = &q
	}

	for attempt := 0; attempt < maxConfigAttempts; attempt++ {
		current, err := m.GetConfig(ctx)
		if err != nil {
			return models.EventConfig{}, err
		}
		if change.ExpectedVersion != nil && current.Version != *change.ExpectedVersion {
			return models.EventConfig{}, apperrors.Conflict(apperrors.ReasonStaleVersion, "config was changed by someone else")
		}

		next := current
		resetAnswers := false
		if change.Status != nil {
			next.EventStatus = *change.Status
		}
		if quiz != nil {
			resetAnswers = current.QuizData != nil && !sameQuestion(*current.QuizData, *quiz)
			cp := *quiz
			cp.Options = append([]string(nil), quiz.Options...)
			next.QuizData = &cp
		}
		next.UpdatedAt = m.now().UTC()

		saved, err := retry(ctx, m, func() (models.EventConfig, error) {
			return m.store.PutConfig(ctx, next, current.Version, resetAnswers)
		})
		if err == nil {
			return saved, nil
		}
		if change.ExpectedVersion == nil && errors.Is(err, errStaleVersion) {
			continue
		}
		return models.EventConfig{}, err
	}
	return models.EventConfig{}, apperrors.Conflict(apperrors.ReasonStaleVersion, "config is changing too quickly, try again")
}

func sameQuestion(a, b models.QuizData) bool {
	if a.Question != b.Question || len(a.Options) != len(b.Options) {
		return false
	}
	for i := range a.Options {
		if a.Options[i] != b.Options[i] {
			return false
		}
	}
	return true
}

// retry runs op with bounded exponential backoff while it fails with a
// connectivity error. Any other error is returned immediately.
func retry[T any](ctx context.Context, m *Manager, op func() (T, error)) (T, error) {
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !apperrors.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(m.newBackOff()), backoff.WithMaxTries(m.retryAttempts))

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return v, err
}
