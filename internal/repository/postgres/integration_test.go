//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/freeeve/markov-rps/internal/model"
	"github.com/freeeve/markov-rps/internal/testutil"
)

var testDB *sql.DB

func setup(t *testing.T) {
	t.Helper()
	if testDB == nil {
		testDB = testutil.SetupDB(t)
	}
	testutil.CleanupDB(t, testDB)
}

func newMatch(opponent string, score int) *model.Match {
	return &model.Match{
		Player:     "Rock",
		Opponent:   opponent,
		Rounds:     100,
		Wins:       50 + score/2,
		Losses:     50 - score/2,
		FinalScore: score,
		PeakScore:  score + 3,
		Source:     "arena",
	}
}

func TestSaveMatchAssignsIDAndTimestamp(t *testing.T) {
	setup(t)
	repo := NewMatchRepo(testDB)

	m := newMatch("random", 4)
	if err := repo.SaveMatch(context.Background(), m); err != nil {
		t.Fatalf("save: %v", err)
	}
	if m.ID == "" {
		t.Error("expected generated ID")
	}
	if m.CreatedAt.IsZero() {
		t.Error("expected created_at")
	}

	got, err := repo.FindByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil {
		t.Fatal("expected match")
	}
	if got.Opponent != "random" || got.FinalScore != 4 || got.PeakScore != 7 || got.Source != "arena" {
		t.Errorf("unexpected match: %+v", got)
	}
}

func TestFindByIDMissing(t *testing.T) {
	setup(t)
	repo := NewMatchRepo(testDB)

	for _, id := range []string{"00000000-0000-0000-0000-000000000000", "not-a-uuid"} {
		got, err := repo.FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("find %q: %v", id, err)
		}
		if got != nil {
			t.Errorf("expected nil for %q", id)
		}
	}
}

func TestListRecentOrder(t *testing.T) {
	setup(t)
	repo := NewMatchRepo(testDB)
	ctx := context.Background()

	for _, opp := range []string{"a", "b", "c"} {
		if err := repo.SaveMatch(ctx, newMatch(opp, 0)); err != nil {
			t.Fatalf("save %s: %v", opp, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	matches, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Opponent != "c" || matches[1].Opponent != "b" {
		t.Errorf("expected newest first, got %s, %s", matches[0].Opponent, matches[1].Opponent)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	setup(t)
	repo := NewMatchRepo(testDB)
	ctx := context.Background()

	if err := repo.SaveMatch(ctx, newMatch("old", 0)); err != nil {
		t.Fatal(err)
	}
	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
}
