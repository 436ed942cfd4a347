package repository

import (
	"context"
	"testing"
	"time"

	"intentrouter/internal/models"

	"github.com/stretchr/testify/require"
)

func TestMemoryDepositRepository(t *testing.T) {
	repo := NewMemoryDepositRepository()
	ctx := context.Background()

	_, err := repo.GetByIntentID(ctx, "0x01")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.MarkClaimed(ctx, "0x01", time.Now()), ErrNotFound)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"0x01", "0x02", "0x03"} {
		require.NoError(t, repo.Create(ctx, &models.DepositRecord{
			IntentID:  id,
			User:      "0xuser",
			Status:    models.DepositStatusQueued,
			IsAsync:   true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	record, err := repo.GetByIntentID(ctx, "0x02")
	require.NoError(t, err)
	require.Equal(t, "0x02", record.IntentID)

	claimedAt := base.Add(time.Hour)
	require.NoError(t, repo.MarkClaimed(ctx, "0x02", claimedAt))
	record, err = repo.GetByIntentID(ctx, "0x02")
	require.NoError(t, err)
	require.Equal(t, models.DepositStatusClaimed, record.Status)
	require.NotNil(t, record.ClaimedAt)
	require.True(t, record.ClaimedAt.Equal(claimedAt))
	require.Empty(t, record.PendingRequestID)

	// Newest first, paged.
	records, total, err := repo.FindByUser(ctx, "0xuser", 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, records, 2)
	require.Equal(t, "0x03", records[0].IntentID)
	require.Equal(t, "0x02", records[1].IntentID)

	records, _, err = repo.FindByUser(ctx, "0xuser", 2, 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "0x01", records[0].IntentID)

	records, total, err = repo.FindByUser(ctx, "0xother", 1, 10)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, records)

	// Out-of-range paging parameters are clamped, not sliced negatively.
	records, total, err = repo.FindByUser(ctx, "0xuser", 0, -5)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, records, 3)
}

func TestMemoryNonceRepository_WriteOnce(t *testing.T) {
	repo := NewMemoryNonceRepository()
	ctx := context.Background()

	used, err := repo.IsUsed(ctx, "0xuser", 1)
	require.NoError(t, err)
	require.False(t, used)

	require.NoError(t, repo.MarkUsed(ctx, "0xuser", 1))
	require.ErrorIs(t, repo.MarkUsed(ctx, "0xuser", 1), ErrNonceUsed)

	used, err = repo.IsUsed(ctx, "0xuser", 1)
	require.NoError(t, err)
	require.True(t, used)

	// Other users and nonces remain free.
	require.NoError(t, repo.MarkUsed(ctx, "0xuser", 2))
	require.NoError(t, repo.MarkUsed(ctx, "0xother", 1))
}
