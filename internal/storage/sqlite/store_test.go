package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "bukber.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testParticipant(id, name string, createdAt time.Time) models.Participant {
	return models.Participant{
		ID:            id,
		Name:          name,
		AccessCode:    "482913",
		LotteryNumber: "1234",
		CreatedAt:     createdAt,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("Expected error for empty path, got nil")
	}
}

func TestOpenTwiceReappliesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bukber.db")
	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_ = first.Close()

	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer second.Close()

	version, err := schemaVersion(context.Background(), second.sqlDB)
	if err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected schema version 2, got %d", version)
	}
}

func TestInsertAndListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 20, 17, 0, 0, 0, time.UTC)

	for i, name := range []string{"Alya", "Budi", "Citra"} {
		p := testParticipant(name+"-id", name, base.Add(time.Duration(i)*time.Second))
		if err := store.InsertParticipant(ctx, p, models.NameKey(name)); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	list, err := store.ListParticipants(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 participants, got %d", len(list))
	}
	want := []string{"Citra", "Budi", "Alya"}
	for i, p := range list {
		if p.Name != want[i] {
			t.Errorf("Expected participant %d to be %s, got %s", i, want[i], p.Name)
		}
		if p.QuizAnswer != nil {
			t.Errorf("Expected nil quiz answer for %s", p.Name)
		}
	}
	if !list[2].CreatedAt.Equal(base) {
		t.Errorf("Expected created_at %v, got %v", base, list[2].CreatedAt)
	}
}

func TestInsertDuplicateNameKeyConflicts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.InsertParticipant(ctx, testParticipant("p1", "Alya", time.Now()), models.NameKey("Alya")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := store.InsertParticipant(ctx, testParticipant("p2", "alya", time.Now()), models.NameKey("alya"))
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
}

func TestGetAndFindParticipant(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.InsertParticipant(ctx, testParticipant("p1", "Alya", time.Now()), models.NameKey("Alya")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	p, err := store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.AccessCode != "482913" {
		t.Errorf("Expected access code 482913, got %s", p.AccessCode)
	}

	found, err := store.FindParticipantByNameKey(ctx, models.NameKey("  ALYA "))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != "p1" {
		t.Errorf("Expected p1, got %s", found.ID)
	}

	if _, err := store.GetParticipant(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := store.FindParticipantByNameKey(ctx, "nobody"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestSetQuizAnswerOnlyOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.InsertParticipant(ctx, testParticipant("p1", "Alya", time.Now()), "alya"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	applied, err := store.SetQuizAnswer(ctx, "p1", 2)
	if err != nil || !applied {
		t.Fatalf("Expected first answer applied, got applied=%v err=%v", applied, err)
	}
	applied, err = store.SetQuizAnswer(ctx, "p1", 3)
	if err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if applied {
		t.Error("Expected second answer not to be applied")
	}

	p, _ := store.GetParticipant(ctx, "p1")
	if p.QuizAnswer == nil || *p.QuizAnswer != 2 {
		t.Errorf("Expected quiz answer 2, got %v", p.QuizAnswer)
	}

	applied, err = store.SetQuizAnswer(ctx, "missing", 1)
	if err != nil || applied {
		t.Errorf("Expected no-op for unknown id, got applied=%v err=%v", applied, err)
	}
}

func TestSetMessageAndDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.InsertParticipant(ctx, testParticipant("p1", "Alya", time.Now()), "alya"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	at := time.Date(2025, 3, 20, 18, 30, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := store.SetMessage(ctx, "p1", "Selamat Ramadhan!", at); err != nil {
			t.Fatalf("set message: %v", err)
		}
	}
	p, _ := store.GetParticipant(ctx, "p1")
	if p.Message != "Selamat Ramadhan!" {
		t.Errorf("Expected message to be stored, got %q", p.Message)
	}
	if p.MessageUpdatedAt == nil || !p.MessageUpdatedAt.Equal(at) {
		t.Errorf("Expected message timestamp %v, got %v", at, p.MessageUpdatedAt)
	}

	if err := store.SetMessage(ctx, "missing", "x", at); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	if err := store.DeleteParticipant(ctx, "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteParticipant(ctx, "p1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}

func TestConfigDefaultsAndVersioning(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cfg, err := store.GetConfig(ctx)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.EventStatus != models.StatusWaiting || cfg.QuizData != nil || cfg.Version != 0 {
		t.Fatalf("Expected default config, got %+v", cfg)
	}

	cfg.EventStatus = models.StatusQuiz
	cfg.QuizData = &models.QuizData{
		Question:      "Apa singkatan dari HTML?",
		Options:       []string{"Hyper Text Markup Language", "B", "C", "D"},
		CorrectAnswer: 0,
	}
	saved, err := store.PutConfig(ctx, cfg, 0, false)
	if err != nil {
		t.Fatalf("put config: %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("Expected version 1, got %d", saved.Version)
	}

	if _, err := store.PutConfig(ctx, cfg, 0, false); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected stale version conflict, got %v", err)
	}

	loaded, err := store.GetConfig(ctx)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if loaded.EventStatus != models.StatusQuiz {
		t.Errorf("Expected status quiz, got %s", loaded.EventStatus)
	}
	if loaded.QuizData == nil || len(loaded.QuizData.Options) != 4 || loaded.QuizData.Options[0] != "Hyper Text Markup Language" {
		t.Errorf("Expected quiz to round-trip, got %+v", loaded.QuizData)
	}
}

func TestPutConfigResetsAnswers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.InsertParticipant(ctx, testParticipant("p1", "Alya", time.Now()), "alya"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.SetQuizAnswer(ctx, "p1", 1); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	if _, err := store.PutConfig(ctx, models.DefaultEventConfig(), 0, true); err != nil {
		t.Fatalf("put config: %v", err)
	}
	p, _ := store.GetParticipant(ctx, "p1")
	if p.QuizAnswer != nil {
		t.Errorf("Expected answers reset, got %d", *p.QuizAnswer)
	}
}
