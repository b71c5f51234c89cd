// Package storage defines the persistence contracts for participants and the
// shared event configuration.
package storage

import (
	"context"
	"time"

	"github.com/rkrmr33/bukber/internal/models"
)

// ParticipantStore persists participant records.
//
// Implementations return apperrors.ErrNotFound for unknown ids,
// apperrors.ErrConflict when a name key is already taken and
// apperrors.ErrConnectivity for transient backend failures.
type ParticipantStore interface {
	// ListParticipants returns every participant, newest first.
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	GetParticipant(ctx context.Context, id string) (models.Participant, error)
	// FindParticipantByNameKey looks a participant up by models.NameKey.
	FindParticipantByNameKey(ctx context.Context, nameKey string) (models.Participant, error)
	// InsertParticipant stores p under the unique name key.
	InsertParticipant(ctx context.Context, p models.Participant, nameKey string) error
	// SetQuizAnswer records index only when no answer is stored yet and
	// reports whether the row was written.
	SetQuizAnswer(ctx context.Context, id string, index int) (bool, error)
	SetMessage(ctx context.Context, id, message string, at time.Time) error
	DeleteParticipant(ctx context.Context, id string) error
}

// ConfigStore persists the single event configuration document.
type ConfigStore interface {
	// GetConfig returns the stored configuration, or the default when none exists.
	GetConfig(ctx context.Context) (models.EventConfig, error)
	// PutConfig writes cfg with version prevVersion+1 only if the stored version
	// is still prevVersion, otherwise it fails with apperrors.ErrConflict. When
	// resetAnswers is set every participant's quiz answer is cleared in the same
	// transaction.
	PutConfig(ctx context.Context, cfg models.EventConfig, prevVersion int64, resetAnswers bool) (models.EventConfig, error)
}

// Store is the full persistence surface used by the event manager.
type Store interface {
	ParticipantStore
	ConfigStore
	Close() error
}
