// Package panel decides what a participant can do in the current event phase.
package panel

import (
	"sort"
	"strings"
	"time"

	"github.com/rkrmr33/bukber/internal/models"
)

// Kind is the interaction a participant is offered
type Kind string

const (
	KindIdle          Kind = "idle"           // Nothing interactive
	KindQuizQuestion  Kind = "quiz_question"  // Question with selectable options
	KindQuizAnswered  Kind = "quiz_answered"  // Confirmation of a recorded answer
	KindMessageEditor Kind = "message_editor" // Text box with an explicit save
)

// View is the rendered panel. Only the fields relevant to Kind are set; the
// correct quiz answer is never exposed.
type View struct {
	Kind     Kind     `json:"kind"`
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`
	Answer   *int     `json:"answer,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Render is a pure function of the event configuration and the participant
func Render(cfg models.EventConfig, p models.Participant) View {
	switch cfg.EventStatus {
	case models.StatusQuiz:
		if cfg.QuizData == nil {
			return View{Kind: KindIdle}
		}
		if p.HasAnswered() {
			answer := *p.QuizAnswer
			return View{Kind: KindQuizAnswered, Answer: &answer}
		}
		return View{
			Kind:     KindQuizQuestion,
			Question: cfg.QuizData.Question,
			Options:  append([]string(nil), cfg.QuizData.Options...),
		}
	case models.StatusMessages:
		return View{Kind: KindMessageEditor, Message: p.Message}
	default:
		// waiting, finished and anything unknown
		return View{Kind: KindIdle}
	}
}

// FeedItem is one entry of the message board
type FeedItem struct {
	ParticipantID string    `json:"participantId"`
	Name          string    `json:"name"`
	Message       string    `json:"message"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Feed returns the non-empty messages of everyone except excludeID, most
// recently updated first.
func Feed(participants []models.Participant, excludeID string) []FeedItem {
	items := make([]FeedItem, 0, len(participants))
	for _, p := range participants {
		if p.ID == excludeID || strings.TrimSpace(p.Message) == "" {
			continue
		}
		item := FeedItem{ParticipantID: p.ID, Name: p.Name, Message: p.Message, UpdatedAt: p.CreatedAt}
		if p.MessageUpdatedAt != nil {
			item.UpdatedAt = *p.MessageUpdatedAt
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items
}
