// Package sqlite implements storage.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/models"
	"github.com/rkrmr33/bukber/internal/storage"
	"github.com/rkrmr33/bukber/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const participantColumns = `id, name, access_code, lottery_number, quiz_answer, message, message_updated_at, created_at`

// Store provides a SQLite-backed storage.Store.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := migrate(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ListParticipants returns all participants, newest first.
func (s *Store) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY seq DESC`)
	if err != nil {
		return nil, mapError("list participants", err)
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, mapError("scan participant", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list participants", err)
	}
	return participants, nil
}

// GetParticipant returns the participant with the given id.
func (s *Store) GetParticipant(ctx context.Context, id string) (models.Participant, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, apperrors.NotFound("participant not found")
	}
	if err != nil {
		return models.Participant{}, mapError("get participant", err)
	}
	return p, nil
}

// FindParticipantByNameKey returns the participant registered under nameKey.
func (s *Store) FindParticipantByNameKey(ctx context.Context, nameKey string) (models.Participant, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE name_key = ?`, nameKey)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, apperrors.NotFound("participant not found")
	}
	if err != nil {
		return models.Participant{}, mapError("find participant", err)
	}
	return p, nil
}

// InsertParticipant stores a new participant. The unique index on name_key
// turns a concurrent duplicate registration into a conflict.
func (s *Store) InsertParticipant(ctx context.Context, p models.Participant, nameKey string) error {
	query := `INSERT INTO participants
		(id, name, name_key, access_code, lottery_number, quiz_answer, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var answer sql.NullInt64
	if p.QuizAnswer != nil {
		answer = sql.NullInt64{Int64: int64(*p.QuizAnswer), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, query,
		p.ID, p.Name, nameKey, p.AccessCode, p.LotteryNumber, answer, p.Message,
		p.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(apperrors.ReasonDuplicateName, "name is already registered")
		}
		return mapError("insert participant", err)
	}
	return nil
}

// SetQuizAnswer writes index only when the participant has no answer yet.
func (s *Store) SetQuizAnswer(ctx context.Context, id string, index int) (bool, error) {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE participants SET quiz_answer = ? WHERE id = ? AND quiz_answer IS NULL`, index, id)
	if err != nil {
		return false, mapError("set quiz answer", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, mapError("set quiz answer", err)
	}
	return rowsAffected > 0, nil
}

// SetMessage overwrites the participant's message.
func (s *Store) SetMessage(ctx context.Context, id, message string, at time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE participants SET message = ?, message_updated_at = ? WHERE id = ?`,
		message, at.UTC().Format(timeFormat), id)
	if err != nil {
		return mapError("set message", err)
	}
	return requireRow(result, "set message")
}

// DeleteParticipant permanently removes a participant.
func (s *Store) DeleteParticipant(ctx context.Context, id string) error {
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return mapError("delete participant", err)
	}
	return requireRow(result, "delete participant")
}

// GetConfig returns the event configuration, or the default when unset.
func (s *Store) GetConfig(ctx context.Context) (models.EventConfig, error) {
	cfg, err := getConfig(ctx, s.sqlDB)
	if err != nil {
		return models.EventConfig{}, mapError("get config", err)
	}
	return cfg, nil
}

// PutConfig performs a compare-and-set on the configuration version.
func (s *Store) PutConfig(ctx context.Context, cfg models.EventConfig, prevVersion int64, resetAnswers bool) (models.EventConfig, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return models.EventConfig{}, mapError("begin config write", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getConfig(ctx, tx)
	if err != nil {
		return models.EventConfig{}, mapError("read config", err)
	}
	if current.Version != prevVersion {
		return models.EventConfig{}, apperrors.Conflict(apperrors.ReasonStaleVersion,
			fmt.Sprintf("config changed: expected version %d, found %d", prevVersion, current.Version))
	}

	cfg.Version = prevVersion + 1
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}

	var question, options sql.NullString
	var correct sql.NullInt64
	if cfg.QuizData != nil {
		encoded, err := json.Marshal(cfg.QuizData.Options)
		if err != nil {
			return models.EventConfig{}, fmt.Errorf("encode quiz options: %w", err)
		}
		question = sql.NullString{String: cfg.QuizData.Question, Valid: true}
		options = sql.NullString{String: string(encoded), Valid: true}
		correct = sql.NullInt64{Int64: int64(cfg.QuizData.CorrectAnswer), Valid: true}
	}

	upsert := `INSERT INTO event_config
		(id, event_status, quiz_question, quiz_options, quiz_correct_answer, version, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			event_status = excluded.event_status,
			quiz_question = excluded.quiz_question,
			quiz_options = excluded.quiz_options,
			quiz_correct_answer = excluded.quiz_correct_answer,
			version = excluded.version,
			updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsert,
		string(cfg.EventStatus), question, options, correct, cfg.Version,
		cfg.UpdatedAt.UTC().Format(timeFormat),
	); err != nil {
		return models.EventConfig{}, mapError("write config", err)
	}

	if resetAnswers {
		if _, err := tx.ExecContext(ctx, `UPDATE participants SET quiz_answer = NULL`); err != nil {
			return models.EventConfig{}, mapError("reset quiz answers", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.EventConfig{}, mapError("commit config write", err)
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getConfig(ctx context.Context, q queryer) (models.EventConfig, error) {
	var (
		status    string
		question  sql.NullString
		options   sql.NullString
		correct   sql.NullInt64
		version   int64
		updatedAt string
	)
	err := q.QueryRowContext(ctx, `SELECT event_status, quiz_question, quiz_options, quiz_correct_answer, version, updated_at
		FROM event_config WHERE id = 1`).Scan(&status, &question, &options, &correct, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultEventConfig(), nil
	}
	if err != nil {
		return models.EventConfig{}, err
	}

	cfg := models.EventConfig{
		EventStatus: models.EventStatus(status),
		Version:     version,
	}
	if cfg.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return models.EventConfig{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if question.Valid {
		quiz := &models.QuizData{Question: question.String, CorrectAnswer: int(correct.Int64)}
		if err := json.Unmarshal([]byte(options.String), &quiz.Options); err != nil {
			return models.EventConfig{}, fmt.Errorf("decode quiz options: %w", err)
		}
		cfg.QuizData = quiz
	}
	return cfg, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row scanner) (models.Participant, error) {
	var (
		p                models.Participant
		answer           sql.NullInt64
		messageUpdatedAt sql.NullString
		createdAt        string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.AccessCode, &p.LotteryNumber, &answer, &p.Message, &messageUpdatedAt, &createdAt); err != nil {
		return models.Participant{}, err
	}

	if answer.Valid {
		idx := int(answer.Int64)
		p.QuizAnswer = &idx
	}
	if messageUpdatedAt.Valid {
		at, err := time.Parse(timeFormat, messageUpdatedAt.String)
		if err != nil {
			return models.Participant{}, fmt.Errorf("parse message_updated_at: %w", err)
		}
		p.MessageUpdatedAt = &at
	}
	at, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return models.Participant{}, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = at
	return p, nil
}

func requireRow(result sql.Result, op string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if rowsAffected == 0 {
		return apperrors.NotFound("participant not found")
	}
	return nil
}

// mapError classifies driver errors. Busy and locked databases are transient.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	value := strings.ToLower(err.Error())
	if strings.Contains(value, "database is locked") || strings.Contains(value, "sqlite_busy") ||
		strings.Contains(value, "database is busy") || strings.Contains(value, "sql: database is closed") {
		return apperrors.Connectivity("storage unavailable", fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
