package models

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// EventStatus is the global phase that decides which interaction panel is active
type EventStatus string

const (
	StatusWaiting  EventStatus = "waiting"  // Before anything interactive starts
	StatusQuiz     EventStatus = "quiz"     // Quiz question open for answers
	StatusMessages EventStatus = "messages" // Message board open
	StatusFinished EventStatus = "finished" // Event over
)

// Valid reports whether s is one of the known phases
func (s EventStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusQuiz, StatusMessages, StatusFinished:
		return true
	}
	return false
}

// QuizOptionCount is the number of options every quiz question carries
const QuizOptionCount = 4

// QuizData is the single quiz question of the current round
type QuizData struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// EventConfig is the shared phase/quiz document
type EventConfig struct {
	EventStatus EventStatus `json:"eventStatus"`
	QuizData    *QuizData   `json:"quizData,omitempty"`
	Version     int64       `json:"version"`
	UpdatedAt   time.Time   `json:"updatedAt,omitzero"`
}

// DefaultEventConfig is what clients see before the first admin write
func DefaultEventConfig() EventConfig {
	return EventConfig{EventStatus: StatusWaiting}
}

// Participant represents a registered attendee
type Participant struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	AccessCode       string     `json:"accessCode,omitempty"` // Only sent to the owner and the admin
	LotteryNumber    string     `json:"lotteryNumber"`
	QuizAnswer       *int       `json:"quizAnswer"`
	Message          string     `json:"message"`
	MessageUpdatedAt *time.Time `json:"messageUpdatedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Public returns the participant without its access code
func (p Participant) Public() Participant {
	p.AccessCode = ""
	return p
}

// HasAnswered reports whether a quiz answer is recorded
func (p Participant) HasAnswered() bool {
	return p.QuizAnswer != nil
}

// PublicParticipants strips access codes from a snapshot
func PublicParticipants(list []Participant) []Participant {
	out := make([]Participant, len(list))
	for i, p := range list {
		out[i] = p.Public()
	}
	return out
}

// Registration is returned once, to the device that registered
type Registration struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccessCode    string `json:"accessCode"`
	LotteryNumber string `json:"lotteryNumber"`
}

// ParticipantUpdate is the body of a participant PATCH
type ParticipantUpdate struct {
	QuizAnswer *int    `json:"quizAnswer,omitempty"`
	Message    *string `json:"message,omitempty"`
}

// ConfigUpdate is the body of an admin config PATCH
type ConfigUpdate struct {
	EventStatus     *EventStatus `json:"eventStatus,omitempty"`
	QuizData        *QuizData    `json:"quizData,omitempty"`
	QuizMarkdown    string       `json:"quizMarkdown,omitempty"`
	ExpectedVersion *int64       `json:"expectedVersion,omitempty"`
}

// WebSocketMessage represents messages sent via WebSocket
type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocket frame types. Every frame carries a full snapshot.
const (
	MessageTypeParticipants = "participants"
	MessageTypeConfig       = "config"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	ParticipantID string `json:"participantId,omitempty"`
}

// AdminToken is returned by a successful admin login
type AdminToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NormalizeName trims surrounding whitespace from a submitted name
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// NameKey is the case-insensitive form names are compared and indexed by.
// A Caser is stateful, so each call gets its own.
func NameKey(name string) string {
	return cases.Fold().String(NormalizeName(name))
}
