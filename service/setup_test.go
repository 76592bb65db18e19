package service

import (
	"testing"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/config"
	"chainvote-backend/database"
	"chainvote-backend/models"
	"chainvote-backend/mq"
	"chainvote-backend/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// fixedNow 测试统一使用的当前时间
var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db         *gorm.DB
	elections  repository.ElectionRepository
	votes      repository.VoteRepository
	electionSv *ElectionService
	voteSv     *VoteService
	authSv     *AuthService
	results    *cache.ResultsCache
	bus        *mq.MemoryBus
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { database.Close(db) })
	return db
}

// setupTestEnv 组装不依赖 Redis 的完整服务层
func setupTestEnv(t *testing.T, tallyMode string) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	elections := repository.NewElectionRepository(db)
	votes := repository.NewVoteRepository(db)
	results := cache.NewResultsCache(nil, cache.NewLocalLocker(), time.Minute)
	bus := mq.NewMemoryBus()

	electionSv := NewElectionService(elections, votes, NewTallyStrategy(tallyMode, votes), results, nil, time.UTC)
	electionSv.now = func() time.Time { return fixedNow }

	authSv := NewAuthService(repository.NewProfileRepository(db), cache.NewMemoryRevocationStore(), config.AuthConfig{
		JWTSecret: "test-secret",
		Issuer:    "chainvote-test",
		TokenTTL:  time.Hour,
	})
	authSv.bcryptCost = bcrypt.MinCost

	return &testEnv{
		db:         db,
		elections:  elections,
		votes:      votes,
		electionSv: electionSv,
		voteSv:     NewVoteService(electionSv, votes, bus, nil),
		authSv:     authSv,
		results:    results,
		bus:        bus,
	}
}

// boardElection 创建一个已开始的三人选举
func (e *testEnv) boardElection(t *testing.T) (*models.Election, map[string]models.Candidate) {
	t.Helper()
	election, err := e.electionSv.CreateElection(t.Context(), uuid.NewString(), models.CreateElectionRequest{
		Title:      "Board Election",
		StartDate:  "2025-03-01",
		EndDate:    "2025-03-08",
		Candidates: []string{"Alice", "Bob", "Carol"},
	})
	require.NoError(t, err)

	candidates, err := e.elections.ListCandidates(t.Context(), election.ID)
	require.NoError(t, err)
	byName := make(map[string]models.Candidate, len(candidates))
	for _, c := range candidates {
		byName[c.Name] = c
	}
	return election, byName
}

func votesFor(t *testing.T, e *testEnv, electionID, name string) int64 {
	t.Helper()
	result, err := e.electionSv.Tallies(t.Context(), electionID)
	require.NoError(t, err)
	for _, c := range result.Candidates {
		if c.Name == name {
			return c.Votes
		}
	}
	t.Fatalf("candidate %s not found", name)
	return 0
}
