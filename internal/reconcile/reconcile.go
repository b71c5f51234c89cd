// Package reconcile decides, from a submitted name and an optional access
// code, whether a device registers a new participant or signs in as an
// existing one.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/event"
	"github.com/rkrmr33/bukber/internal/models"
	"github.com/rkrmr33/bukber/internal/session"
)

// State of a single registration attempt
type State string

const (
	StateNameEntry     State = "name_entry"
	StateCodeEntry     State = "code_entry"
	StateAuthenticated State = "authenticated"
	StateRejected      State = "rejected" // wrong code; the code may be resubmitted
)

// Directory is what an attempt needs from the participant registry.
type Directory interface {
	// Lookup searches the caller's current registry snapshot by
	// case-insensitive name. It does not go to the server.
	Lookup(name string) (models.Participant, bool)
	Register(ctx context.Context, name string) (models.Registration, error)
	Verify(ctx context.Context, id, accessCode string) (models.Participant, error)
}

// Attempt is one pass through the name → code → session flow.
type Attempt struct {
	dir      Directory
	sessions session.Store

	mu           sync.Mutex
	state        State
	name         string
	targetID     string
	registration *models.Registration
}

// NewAttempt starts an attempt in name entry
func NewAttempt(dir Directory, sessions session.Store) *Attempt {
	return &Attempt{
		dir:      dir,
		sessions: sessions,
		state:    StateNameEntry,
	}
}

// State returns the current state
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Name returns the normalized name the attempt resolved
func (a *Attempt) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// NameLocked reports whether the name can no longer be edited
func (a *Attempt) NameLocked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateCodeEntry || a.state == StateRejected
}

// Registration returns the ticket issued when the attempt created a new participant
func (a *Attempt) Registration() (models.Registration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registration == nil {
		return models.Registration{}, false
	}
	return *a.registration, true
}

// Reset returns the attempt to name entry
func (a *Attempt) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

func (a *Attempt) reset() {
	a.state = StateNameEntry
	a.name = ""
	a.targetID = ""
	a.registration = nil
}

// SubmitName resolves name against the registry snapshot. A known name moves
// the attempt to code entry without side effects; an unknown name registers
// a new participant and binds the session to it. Once the name is locked,
// further submissions are ignored and the attempt stays where it is.
func (a *Attempt) SubmitName(ctx context.Context, name string) (State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateNameEntry {
		return a.state, nil
	}

	clean, err := event.ValidateName(name)
	if err != nil {
		return a.state, err
	}

	if existing, ok := a.dir.Lookup(clean); ok {
		a.toCodeEntry(clean, existing.ID)
		return a.state, nil
	}

	reg, err := a.dir.Register(ctx, clean)
	if err != nil {
		// Registered elsewhere after our snapshot was taken.
		if appErr, ok := apperrors.As(err); ok && appErr.Kind == apperrors.KindConflict {
			if id := appErr.Metadata[apperrors.MetaParticipantID]; id != "" {
				a.toCodeEntry(clean, id)
				return a.state, nil
			}
		}
		return a.state, err
	}

	if err := a.sessions.Save(session.Session{ParticipantID: reg.ID, AccessCode: reg.AccessCode}); err != nil {
		return a.state, err
	}
	a.name = clean
	a.registration = &reg
	a.state = StateAuthenticated
	return a.state, nil
}

// SubmitCode verifies an access code for the name found in SubmitName.
func (a *Attempt) SubmitCode(ctx context.Context, code string) (State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateCodeEntry && a.state != StateRejected {
		return a.state, apperrors.Validation(apperrors.ReasonInvalidRequest, "no access code was requested")
	}

	clean, err := event.ValidateAccessCode(code)
	if err != nil {
		return a.state, err
	}

	p, err := a.dir.Verify(ctx, a.targetID, clean)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrAuth):
		a.state = StateRejected
		return a.state, err
	case errors.Is(err, apperrors.ErrNotFound):
		// Deleted while we were asking for the code.
		a.reset()
		return a.state, err
	default:
		return a.state, err
	}

	if err := a.sessions.Save(session.Session{ParticipantID: p.ID, AccessCode: clean}); err != nil {
		return a.state, err
	}
	a.state = StateAuthenticated
	return a.state, nil
}

func (a *Attempt) toCodeEntry(name, id string) {
	a.name = name
	a.targetID = id
	a.state = StateCodeEntry
}
