package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"chainvote-backend/config"
	"chainvote-backend/database"
	"chainvote-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB 每个测试使用独立的内存数据库
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

func seedElection(t *testing.T, repo ElectionRepository, companyID string, names ...string) (*models.Election, []models.Candidate) {
	t.Helper()
	election := &models.Election{
		CompanyID:       companyID,
		Title:           "Election " + uuid.NewString()[:8],
		StartDate:       time.Now().Add(-time.Hour),
		EndDate:         time.Now().Add(time.Hour),
		ContractAddress: "0x" + uuid.NewString(),
		Status:          models.StatusActive,
	}
	candidates := make([]models.Candidate, len(names))
	for i, n := range names {
		candidates[i] = models.Candidate{Name: n}
	}
	require.NoError(t, repo.CreateWithCandidates(context.Background(), election, candidates))
	return election, candidates
}

// memoryFilter 测试用的精确“布隆过滤器”
type memoryFilter struct {
	mu     sync.Mutex
	items  map[string]bool
	err    error
	addErr error
}

func newMemoryFilter() *memoryFilter {
	return &memoryFilter{items: make(map[string]bool)}
}

func (f *memoryFilter) Add(_ context.Context, item string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.items[item] = true
	return nil
}

func (f *memoryFilter) Contains(_ context.Context, item string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.items[item], nil
}

func (f *memoryFilter) setAddErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addErr = err
}
