package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/congregate/internal/database"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/loggy"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLRepository(db, loggy.NewNoopLogger())
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	member := entity.Record{
		entity.FieldID:     "m-1",
		"full_name":        "Ana Ruiz",
		"is_baptized":      true,
		entity.FieldSynced: false,
	}
	require.NoError(t, repo.Put(ctx, entity.Members, member))

	got, err := repo.Get(ctx, entity.Members, "m-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana Ruiz", got["full_name"])
	assert.Equal(t, true, got["is_baptized"])
	assert.False(t, got.Synced())

	// Upsert replaces the whole record
	require.NoError(t, repo.Put(ctx, entity.Members, entity.Record{
		entity.FieldID:     "m-1",
		"full_name":        "Ana Ruiz de Lopez",
		entity.FieldSynced: true,
	}))

	got, err = repo.Get(ctx, entity.Members, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Ruiz de Lopez", got["full_name"])
	assert.NotContains(t, got, "is_baptized")
	assert.True(t, got.Synced())
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.Get(context.Background(), entity.Members, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.Put(ctx, entity.Income, entity.Record{entity.FieldID: "shared", "amount": json.Number("10.50")}))
	require.NoError(t, repo.Put(ctx, entity.Expenses, entity.Record{entity.FieldID: "shared", "amount": json.Number("3")}))

	income, err := repo.GetAll(ctx, entity.Income)
	require.NoError(t, err)
	require.Len(t, income, 1)
	assert.Equal(t, json.Number("10.50"), income[0]["amount"], "numbers must keep their textual precision")

	require.NoError(t, repo.Clear(ctx, entity.Income))

	income, err = repo.GetAll(ctx, entity.Income)
	require.NoError(t, err)
	assert.Empty(t, income)

	expenses, err := repo.GetAll(ctx, entity.Expenses)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.Put(ctx, entity.Members, entity.Record{entity.FieldID: "m-1"}))
	require.NoError(t, repo.Delete(ctx, entity.Members, "m-1"))
	require.NoError(t, repo.Delete(ctx, entity.Members, "m-1"))

	got, err := repo.Get(ctx, entity.Members, "m-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCountUnsynced(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.Put(ctx, entity.Members, entity.Record{entity.FieldID: "a", entity.FieldSynced: false}))
	require.NoError(t, repo.Put(ctx, entity.Members, entity.Record{entity.FieldID: "b", entity.FieldSynced: true}))
	require.NoError(t, repo.Put(ctx, entity.Members, entity.Record{entity.FieldID: "c"}))

	n, err := repo.CountUnsynced(ctx, entity.Members)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPutRequiresID(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Put(context.Background(), entity.Members, entity.Record{"full_name": "No Id"})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestStorageFailuresAreClassified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db, loggy.NewNoopLogger())
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO records").WillReturnError(errors.New("database is locked"))
	err = repo.Put(ctx, entity.Members, entity.Record{entity.FieldID: "m-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "put", storageErr.Op)
	assert.Equal(t, entity.Members, storageErr.Collection)

	mock.ExpectQuery("SELECT data, synced FROM records").WillReturnError(errors.New("disk I/O error"))
	_, err = repo.GetAll(ctx, entity.Members)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}
