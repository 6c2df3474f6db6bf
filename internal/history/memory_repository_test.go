package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithpw/zenithpw/internal/history"
)

func TestInMemoryRepository_RecordAndList(t *testing.T) {
	repo := history.NewInMemoryRepository()
	ctx := context.Background()
	base := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	older, err := history.NewEntry("key-1", history.KindInterpolation,
		map[string]float64{"latitude": 1, "longitude": 2}, 3.3167, base)
	require.NoError(t, err)
	newer, err := history.NewEntry("key-1", history.KindFeatures,
		map[string]string{"stationId": "ABMF"}, 2.4368, base.Add(time.Minute))
	require.NoError(t, err)
	other, err := history.NewEntry("key-2", history.KindError, map[string]any{}, map[string]any{}, base)
	require.NoError(t, err)

	require.NoError(t, repo.Record(ctx, older))
	require.NoError(t, repo.Record(ctx, newer))
	require.NoError(t, repo.Record(ctx, other))

	assert.NotEmpty(t, older.ID)
	assert.NotEqual(t, older.ID, newer.ID)

	entries, err := repo.ListByAPIKey(ctx, "key-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, history.KindFeatures, entries[0].Kind)
	assert.Equal(t, history.KindInterpolation, entries[1].Kind)
	assert.JSONEq(t, `{"latitude":1,"longitude":2}`, string(entries[1].Input))
	assert.JSONEq(t, `3.3167`, string(entries[1].Output))
}

func TestInMemoryRepository_UnknownKeyIsEmpty(t *testing.T) {
	entries, err := history.NewInMemoryRepository().ListByAPIKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestInMemoryRepository_RejectsInvalidEntry(t *testing.T) {
	repo := history.NewInMemoryRepository()

	err := repo.Record(context.Background(), &history.Entry{Kind: history.KindFeatures})
	assert.ErrorIs(t, err, history.ErrInvalidEntry)
}

func TestNewEntry_UnmarshalableInput(t *testing.T) {
	_, err := history.NewEntry("key", history.KindFeatures, make(chan int), nil, time.Now())
	assert.Error(t, err)
}
