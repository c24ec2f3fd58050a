//go:build integration

package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/freeeve/markov-rps/internal/model"
	"github.com/freeeve/markov-rps/internal/repository/postgres"
	redisrepo "github.com/freeeve/markov-rps/internal/repository/redis"
	"github.com/freeeve/markov-rps/internal/testutil"
	"github.com/freeeve/markov-rps/pkg/rps"
)

// testEnv holds shared test infrastructure.
type testEnv struct {
	db        *sql.DB
	rdb       *goredis.Client
	matchRepo *postgres.MatchRepo
	store     *redisrepo.Client
}

var env *testEnv

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	if env == nil {
		db := testutil.SetupDB(t)
		rdb := testutil.SetupRedis(t)
		env = &testEnv{
			db:        db,
			rdb:       rdb,
			matchRepo: postgres.NewMatchRepo(db),
			store:     redisrepo.NewClientFromPool(rdb),
		}
	}
	testutil.CleanupDB(t, env.db)
	testutil.CleanupRedis(t, env.rdb)
	return env
}

// TestFullSessionLifecycle tests: create -> play -> finish -> match persisted.
func TestFullSessionLifecycle(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	svc := NewSessionService(e.store, e.matchRepo, nil, SessionConfig{TTL: time.Minute, MaxRounds: 500})

	sess, err := svc.Create(ctx, "integration")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 60; i++ {
		if _, err := svc.Play(ctx, sess.ID, rps.Paper); err != nil {
			t.Fatalf("play %d: %v", i, err)
		}
	}

	live, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if live.RoundsPlayed() != 60 {
		t.Fatalf("expected 60 rounds, got %d", live.RoundsPlayed())
	}
	if live.Wins <= live.Losses {
		t.Errorf("expected the agent to beat a constant opponent: %d-%d", live.Wins, live.Losses)
	}

	match, err := svc.Finish(ctx, sess.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	saved, err := e.matchRepo.FindByID(ctx, match.ID)
	if err != nil {
		t.Fatalf("find match: %v", err)
	}
	if saved == nil || saved.Rounds != 60 || saved.FinalScore != live.Score {
		t.Fatalf("unexpected saved match: %+v", saved)
	}

	after, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get finished: %v", err)
	}
	if after.Status != model.SessionFinished {
		t.Errorf("expected finished status, got %s", after.Status)
	}
	if n, _ := svc.ActiveSessions(ctx); n != 0 {
		t.Errorf("expected no active sessions, got %d", n)
	}
}

// TestConcurrentPlaysRedis hammers a single session from many goroutines.
func TestConcurrentPlaysRedis(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	svc := NewSessionService(e.store, e.matchRepo, nil, SessionConfig{TTL: time.Minute})

	sess, err := svc.Create(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Play(ctx, sess.ID, rps.Rock); err != nil {
				t.Errorf("play: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RoundsPlayed() != 30 {
		t.Errorf("expected 30 rounds, got %d", got.RoundsPlayed())
	}
}
