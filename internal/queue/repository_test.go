package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/congregate/internal/database"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"github.com/tildaslashalef/congregate/internal/store"
)

func newTestQueue(t *testing.T) *SQLQueue {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLQueue(db, loggy.NewNoopLogger())
}

func TestEnqueueThenList(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	before := time.Now().Add(-time.Second)
	id, err := q.Enqueue(ctx, entity.Members, KindInsert, entity.Record{
		entity.FieldID:     "m-1",
		"full_name":        "Ana Ruiz",
		entity.FieldSynced: false,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	ops, err := q.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	op := ops[0]
	assert.Equal(t, id, op.ID)
	assert.Equal(t, entity.Members, op.Collection)
	assert.Equal(t, KindInsert, op.Kind)
	assert.Equal(t, 0, op.AttemptCount)
	assert.Equal(t, "m-1", op.RecordID())
	assert.Equal(t, "Ana Ruiz", op.Payload["full_name"])
	assert.NotContains(t, op.Payload, entity.FieldSynced, "local-only fields never reach the queue")
	assert.True(t, op.EnqueuedAt.After(before))
}

func TestListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	var ids []int64
	for _, c := range []entity.Collection{entity.Members, entity.Income, entity.Members, entity.Expenses} {
		id, err := q.Enqueue(ctx, c, KindInsert, entity.Record{entity.FieldID: entity.NewID()})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1], "ids must grow with enqueue order")
	}

	all, err := q.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, op := range all {
		assert.Equal(t, ids[i], op.ID)
	}

	members, err := q.ListByCollection(ctx, entity.Members)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, ids[0], members[0].ID)
	assert.Equal(t, ids[2], members[1].ID)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRemoveTwiceIsSafe(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	id, err := q.Enqueue(ctx, entity.Members, KindDelete, entity.Record{entity.FieldID: "m-1"})
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, id))
	require.NoError(t, q.Remove(ctx, id))

	op, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestIncrementAttempt(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	id, err := q.Enqueue(ctx, entity.Income, KindUpdate, entity.Record{entity.FieldID: "i-1", "amount": "25.00"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.IncrementAttempt(ctx, id))
	}

	op, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, op.AttemptCount)
	assert.True(t, op.Exhausted(5))

	t.Run("missing id is a no-op", func(t *testing.T) {
		require.NoError(t, q.IncrementAttempt(ctx, 9999))
		n, err := q.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	id, err := q.Enqueue(ctx, entity.Members, KindUpdate, entity.Record{entity.FieldID: "m-1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.IncrementAttempt(ctx, id))
		}()
	}
	wg.Wait()

	op, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, op.AttemptCount)
}

func TestMarkDeadLetterNeverLowers(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	id, err := q.Enqueue(ctx, entity.Members, KindInsert, entity.Record{entity.FieldID: "m-1"})
	require.NoError(t, err)

	require.NoError(t, q.MarkDeadLetter(ctx, id, 5))
	op, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, op.AttemptCount)

	for i := 0; i < 2; i++ {
		require.NoError(t, q.IncrementAttempt(ctx, id))
	}
	require.NoError(t, q.MarkDeadLetter(ctx, id, 5))

	op, err = q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, op.AttemptCount)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, entity.Expenses, KindInsert, entity.Record{entity.FieldID: entity.NewID()})
		require.NoError(t, err)
	}
	require.NoError(t, q.Clear(ctx))

	ops, err := q.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestStorageFailureSurfacesAsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := NewSQLQueue(db, loggy.NewNoopLogger())
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO pending_operations").WillReturnError(errors.New("disk full"))
	_, err = q.Enqueue(ctx, entity.Members, KindInsert, entity.Record{entity.FieldID: "m-1"})
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)

	mock.ExpectExec("UPDATE pending_operations SET attempt_count = attempt_count \\+ 1").
		WithArgs(int64(7)).
		WillReturnError(errors.New("database is locked"))
	err = q.IncrementAttempt(ctx, 7)
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)

	mock.ExpectQuery("SELECT .+ FROM pending_operations ORDER BY id ASC").WillReturnError(errors.New("disk I/O error"))
	_, err = q.ListAll(ctx)
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("DELETE")
	require.NoError(t, err)
	assert.Equal(t, KindDelete, k)

	_, err = ParseKind("UPSERT")
	assert.Error(t, err)
}
