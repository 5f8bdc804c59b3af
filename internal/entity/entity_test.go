package entity

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}

func TestParseCollection(t *testing.T) {
	c, err := ParseCollection("income")
	require.NoError(t, err)
	assert.Equal(t, Income, c)
	assert.True(t, c.SoftDeletes())
	assert.False(t, Members.SoftDeletes())
	assert.True(t, Sectors.ReadOnly())

	_, err = ParseCollection("pastors")
	assert.Error(t, err)
}

func TestRecordHelpers(t *testing.T) {
	r := Record{FieldID: "abc", "full_name": "Ana Ruiz"}

	assert.Equal(t, "abc", r.ID())
	assert.False(t, r.Synced(), "missing flag reads as unsynced")
	assert.False(t, r.Deleted())

	synced := r.WithSynced(true)
	assert.True(t, synced.Synced())
	assert.False(t, r.Synced(), "WithSynced must not mutate the receiver")

	merged := r.Merge(Record{"phone": "7777-0000"})
	assert.Equal(t, "7777-0000", merged["phone"])
	assert.NotContains(t, r, "phone")

	assert.NotContains(t, synced.Remote(), FieldSynced)
	assert.NotContains(t, r.WithoutID(), FieldID)

	assert.True(t, Record{FieldDeletedAt: "2024-01-01T00:00:00Z"}.Deleted())
	assert.False(t, Record{FieldDeletedAt: nil}.Deleted())
	assert.Empty(t, Record{FieldID: 42}.ID())
	assert.Equal(t, "7", Record{FieldID: json.Number("7")}.ID())
}
