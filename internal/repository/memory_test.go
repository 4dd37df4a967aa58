package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileRepositoryReloadsSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "transactions.json")

	repo, err := OpenFileRepository(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newPayout("PAYOUT_1", baseTime)))
	_, err = repo.Update(ctx, "PAYOUT_1", func(tx *models.Transaction) error {
		tx.Status = domain.StatusProcessing
		tx.ExternalID = "T1"
		return nil
	})
	require.NoError(t, err)
	assert.False(t, repo.Degraded())

	reopened, err := OpenFileRepository(path, zap.NewNop())
	require.NoError(t, err)
	got, err := reopened.GetByExternalID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "PAYOUT_1", got.ID)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func TestFileRepositoryLoadsLegacyPayoutsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payouts.json")
	legacy := `{"payouts":[{"txn_id":"PAYOUT_LEGACY","amount":250,"status":"processing","gateway_order_id":"T9","gateway_name":"payraizen","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"}]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	repo, err := OpenFileRepository(path, zap.NewNop())
	require.NoError(t, err)

	got, err := repo.GetByExternalID(context.Background(), "T9")
	require.NoError(t, err)
	assert.Equal(t, domain.KindPayout, got.Kind)
	assert.Equal(t, "250", got.Amount.String())
}

func TestFileRepositoryRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenFileRepository(path, zap.NewNop())
	assert.Error(t, err)
}

func TestFileRepositoryDegradesOnWriteFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	repo, err := OpenFileRepository(filepath.Join(dir, "transactions.json"), zap.NewNop())
	require.NoError(t, err)

	// Replace the snapshot directory with a regular file so every write fails.
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPayout("PAYOUT_MEM", baseTime)))
	assert.True(t, repo.Degraded())

	got, err := repo.GetByID(ctx, "PAYOUT_MEM")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)
	tx := newPayout("PAYOUT_COPY", baseTime)
	require.NoError(t, repo.Create(ctx, tx))

	tx.Status = domain.StatusFailed
	got, err := repo.GetByID(ctx, "PAYOUT_COPY")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	got.Status = domain.StatusCompleted
	again, err := repo.GetByID(ctx, "PAYOUT_COPY")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}

func TestMemoryRepositoryListTieBreaksOnInsertOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)
	same := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newPayout("PAYOUT_FIRST", same)))
	require.NoError(t, repo.Create(ctx, newPayout("PAYOUT_SECOND", same)))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "PAYOUT_SECOND", list[0].ID)
}
