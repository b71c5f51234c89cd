package parser

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/models"
)

// ParseQuizMarkdown parses a single quiz question written as
//
//	### Question text
//	- option
//	- option
//	- option
//	- option
//	* Answer: option
//
// The answer may repeat an option's text or name it by letter (A-D).
// A leading "# title" line is allowed and ignored.
func ParseQuizMarkdown(markdown string) (models.QuizData, error) {
	var (
		quiz      models.QuizData
		answer    string
		seenQ     bool
		questions int
	)
	scanner := bufio.NewScanner(strings.NewReader(markdown))

	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())

		// Skip empty lines
		if trimmed == "" {
			continue
		}

		// Parse question (### prefix)
		if strings.HasPrefix(trimmed, "###") {
			questions++
			seenQ = true
			quiz.Question = strings.TrimSpace(strings.TrimPrefix(trimmed, "###"))
			continue
		}

		// Title lines before the question
		if strings.HasPrefix(trimmed, "#") && !seenQ {
			continue
		}

		// Parse options (- prefix)
		if strings.HasPrefix(trimmed, "-") && seenQ {
			quiz.Options = append(quiz.Options, strings.TrimSpace(strings.TrimPrefix(trimmed, "-")))
			continue
		}

		// Parse answer (* Answer: prefix)
		if strings.HasPrefix(trimmed, "*") && seenQ {
			answerLine := strings.TrimSpace(strings.TrimPrefix(trimmed, "*"))
			if strings.HasPrefix(answerLine, "Answer:") {
				answer = strings.TrimSpace(strings.TrimPrefix(answerLine, "Answer:"))
			}
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return models.QuizData{}, fmt.Errorf("error reading markdown: %w", err)
	}

	if questions == 0 || quiz.Question == "" {
		return models.QuizData{}, invalid("quiz must have a question")
	}
	if questions > 1 {
		return models.QuizData{}, invalid("quiz must have exactly one question, got %d", questions)
	}
	if len(quiz.Options) != models.QuizOptionCount {
		return models.QuizData{}, invalid("question must have exactly %d options, got %d", models.QuizOptionCount, len(quiz.Options))
	}
	for i, opt := range quiz.Options {
		if opt == "" {
			return models.QuizData{}, invalid("option %d is empty", i+1)
		}
	}
	if answer == "" {
		return models.QuizData{}, invalid("question has no answer")
	}

	idx, ok := answerIndex(quiz.Options, answer)
	if !ok {
		return models.QuizData{}, invalid("answer '%s' not found in options", answer)
	}
	quiz.CorrectAnswer = idx

	return quiz, nil
}

// answerIndex resolves answer to an option index, by exact text first and then by letter
func answerIndex(options []string, answer string) (int, bool) {
	for i, opt := range options {
		if opt == answer {
			return i, true
		}
	}
	if len(answer) == 1 {
		letter := strings.ToUpper(answer)[0]
		if letter >= 'A' && int(letter-'A') < len(options) {
			return int(letter - 'A'), true
		}
	}
	return 0, false
}

func invalid(format string, args ...any) error {
	return apperrors.Validation(apperrors.ReasonInvalidRequest, fmt.Sprintf(format, args...))
}
