package event

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/models"
)

const (
	MinNameLength    = 2
	MaxNameLength    = 60
	MaxMessageLength = 500
)

var accessCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidateName trims name and checks its length in runes
func ValidateName(name string) (string, error) {
	clean := models.NormalizeName(name)
	if clean == "" {
		return "", apperrors.Validation(apperrors.ReasonInvalidName, "name is required")
	}
	n := utf8.RuneCountInString(clean)
	if n < MinNameLength {
		return "", apperrors.Validation(apperrors.ReasonInvalidName,
			fmt.Sprintf("name must be at least %d characters", MinNameLength))
	}
	if n > MaxNameLength {
		return "", apperrors.Validation(apperrors.ReasonInvalidName,
			fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	return clean, nil
}

// ValidateAccessCode trims code and checks it is six digits
func ValidateAccessCode(code string) (string, error) {
	clean := strings.TrimSpace(code)
	if !accessCodePattern.MatchString(clean) {
		return "", apperrors.Validation(apperrors.ReasonInvalidCode, "access code must be 6 digits")
	}
	return clean, nil
}

// ValidateMessage trims text; empty and oversized messages are rejected
func ValidateMessage(text string) (string, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return "", apperrors.Validation(apperrors.ReasonInvalidRequest, "message is empty")
	}
	if utf8.RuneCountInString(clean) > MaxMessageLength {
		return "", apperrors.Validation(apperrors.ReasonInvalidRequest,
			fmt.Sprintf("message must be at most %d characters", MaxMessageLength))
	}
	return clean, nil
}

// ValidateQuiz trims quiz content and checks it has a question, four
// non-empty options and a correct answer among them.
func ValidateQuiz(q models.QuizData) (models.QuizData, error) {
	out := models.QuizData{
		Question:      strings.TrimSpace(q.Question),
		CorrectAnswer: q.CorrectAnswer,
	}
	if out.Question == "" {
		return models.QuizData{}, apperrors.Validation(apperrors.ReasonInvalidRequest, "quiz question is required")
	}
	if len(q.Options) != models.QuizOptionCount {
		return models.QuizData{}, apperrors.Validation(apperrors.ReasonInvalidRequest,
			fmt.Sprintf("quiz needs exactly %d options, got %d", models.QuizOptionCount, len(q.Options)))
	}
	for i, opt := range q.Options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return models.QuizData{}, apperrors.Validation(apperrors.ReasonInvalidRequest,
				fmt.Sprintf("quiz option %d is empty", i+1))
		}
		out.Options = append(out.Options, opt)
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= models.QuizOptionCount {
		return models.QuizData{}, apperrors.Validation(apperrors.ReasonInvalidRequest, "correct answer must be between 0 and 3")
	}
	return out, nil
}

// generateAccessCode returns a random code in 100000..999999
func generateAccessCode() (string, error) {
	n, err := randomBelow(900000)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(100000+n, 10), nil
}

// generateLotteryNumber returns a random number in 1000..9999, prefixed when a prefix is configured
func generateLotteryNumber(prefix string) (string, error) {
	n, err := randomBelow(9000)
	if err != nil {
		return "", err
	}
	number := strconv.FormatInt(1000+n, 10)
	if prefix == "" {
		return number, nil
	}
	return strings.ToUpper(prefix) + "-" + number, nil
}

func randomBelow(max int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, fmt.Errorf("generate random number: %w", err)
	}
	return n.Int64(), nil
}
