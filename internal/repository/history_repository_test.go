package repository

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/scenecheck/internal/apperrors"
)

func newTestRepository(t *testing.T) *HistoryRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "history.db")
	db, err := OpenDatabase(context.Background(), DriverSQLite, path, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewHistoryRepository(db, zap.NewNop())
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.Append(ctx, "a@example.com", "https://img.example/1.png", `{"answer":true}`)
	require.NoError(t, err)
	second, err := repo.Append(ctx, "a@example.com", "https://img.example/2.png", `{"answer":false}`)
	require.NoError(t, err)

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestAppendRejectsNonObjectJudgement(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, text := range []string{"", "not json", "[1,2]", "null", `"str"`} {
		_, err := repo.Append(ctx, "a@example.com", "https://img.example/x.png", text)
		require.Error(t, err, "text %q", text)
		assert.True(t, errors.Is(err, ErrInvalidJudgement), "text %q", text)
	}

	count, err := repo.CountByOwner(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListByOwnerOrdersNewestFirstAndIsolatesOwners(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 4; i++ {
		rec, err := repo.Append(ctx, "a@example.com", "https://img.example/a.png", `{"n":1}`)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	_, err := repo.Append(ctx, "b@example.com", "https://img.example/b.png", `{"n":2}`)
	require.NoError(t, err)

	records, err := repo.ListByOwner(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, rec := range records {
		assert.Equal(t, ids[len(ids)-1-i], rec.ID)
		assert.Equal(t, "a@example.com", rec.OwnerIdentity)
	}

	other, err := repo.ListByOwner(ctx, "b@example.com")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "https://img.example/b.png", other[0].SourceURL)
}

func TestListByOwnerEmpty(t *testing.T) {
	repo := newTestRepository(t)

	records, err := repo.ListByOwner(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestDecodeJudgementRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	text := `{"reasoning":["step1","step2"],"answer":true,"details":{"confidence":0.5}}`
	_, err := repo.Append(ctx, "a@example.com", "https://img.example/a.png", text)
	require.NoError(t, err)

	records, err := repo.ListByOwner(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, text, records[0].Judgement)

	decoded, err := DecodeJudgement(records[0])
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"reasoning": []any{"step1", "step2"},
		"answer":    true,
		"details":   map[string]any{"confidence": json.Number("0.5")},
	}, decoded)
}

func TestDecodeJudgementKeepsLargeIntegersExact(t *testing.T) {
	text := `{"answer":true,"trace_id":12345678901234567891,"score":0.1000000000000000055511151231257827}`

	decoded, err := DecodeJudgement(HistoryRecord{Judgement: text})
	require.NoError(t, err)

	rendered, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, text, string(rendered))
	assert.Contains(t, string(rendered), "12345678901234567891")
}

func TestDecodeJudgementRejectsTrailingData(t *testing.T) {
	_, err := DecodeJudgement(HistoryRecord{Judgement: `{"a":1} {"b":2}`})
	assert.True(t, errors.Is(err, apperrors.ErrStorageFault))
}

func TestListByOwnerFollowsInsertionOrderNotClock(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// 01:59 EDT is 05:59Z and the later 01:10 EST is 06:10Z, but the stored
	// local text of the second sorts before the first.
	edt := time.FixedZone("EDT", -4*60*60)
	est := time.FixedZone("EST", -5*60*60)
	first := &HistoryRecord{
		OwnerIdentity: "a@example.com",
		SourceURL:     "https://img.example/first.png",
		Judgement:     `{"answer":true}`,
		CreatedAt:     time.Date(2026, 11, 1, 1, 59, 0, 0, edt),
	}
	second := &HistoryRecord{
		OwnerIdentity: "a@example.com",
		SourceURL:     "https://img.example/second.png",
		Judgement:     `{"answer":false}`,
		CreatedAt:     time.Date(2026, 11, 1, 1, 10, 0, 0, est),
	}
	require.NoError(t, repo.db.WithContext(ctx).Create(first).Error)
	require.NoError(t, repo.db.WithContext(ctx).Create(second).Error)

	// A clock that stepped back must not reorder either.
	third := &HistoryRecord{
		OwnerIdentity: "a@example.com",
		SourceURL:     "https://img.example/third.png",
		Judgement:     `{"answer":true}`,
		CreatedAt:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.db.WithContext(ctx).Create(third).Error)

	records, err := repo.ListByOwner(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []uint{third.ID, second.ID, first.ID}, []uint{records[0].ID, records[1].ID, records[2].ID})
	assert.Equal(t, "https://img.example/third.png", records[0].SourceURL)
	assert.Equal(t, "https://img.example/first.png", records[2].SourceURL)
}

func TestDecodeJudgementReportsStorageFault(t *testing.T) {
	_, err := DecodeJudgement(HistoryRecord{Judgement: "{broken"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageFault))
}

func TestOpenDatabaseRejectsMissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "history.db")
	_, err := OpenDatabase(context.Background(), DriverSQLite, bad, zap.NewNop())
	require.Error(t, err)
}

func TestOpenDatabaseRejectsUnknownDriver(t *testing.T) {
	_, err := OpenDatabase(context.Background(), "oracle", "x", zap.NewNop())
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Ping(context.Background()))
}
