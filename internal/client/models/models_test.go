package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{" b", "a", "", "b ", "  "}))
	assert.Empty(t, NormalizeTags(nil))
}

func TestValidateDate(t *testing.T) {
	assert.NoError(t, ValidateDate("2024-02-29"))
	assert.Error(t, ValidateDate("2023-02-29"))
	assert.Error(t, ValidateDate("05/01/2024"))
}

func TestOperationType_CaseInsensitive(t *testing.T) {
	var ch SyncChange
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"operationType":"Deleted"}`), &ch))
	assert.Equal(t, OperationDeleted, ch.Operation)

	err := json.Unmarshal([]byte(`{"id":1,"operationType":"moved"}`), &ch)
	assert.Error(t, err)
}

func TestSyncChange_ToEntry(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ch := SyncChange{
		ID: 7, UserID: "u1", Date: "2024-05-01", Operation: OperationUpdated, ServerTimestamp: ts,
		Entry: &EntrySnapshot{Date: "2024-05-01", Title: "T", Body: "B", Tags: []string{"z", "a"}},
	}

	e, err := ch.ToEntry()
	require.NoError(t, err)
	assert.Equal(t, EntryKey{UserID: "u1", Date: "2024-05-01"}, e.Key())
	assert.Equal(t, []string{"a", "z"}, e.Tags)
	require.NotNil(t, e.LastAppliedChangeID)
	assert.Equal(t, int64(7), *e.LastAppliedChangeID)
	assert.False(t, e.NeedsSync)
	assert.Equal(t, ts, e.UpdatedAt)

	ch.Entry = nil
	_, err = ch.ToEntry()
	assert.Error(t, err)
}

func TestSyncChange_FromClient(t *testing.T) {
	ch := SyncChange{Metadata: []string{"source:web", "client:abc"}}

	assert.True(t, ch.FromClient("abc"))
	assert.False(t, ch.FromClient("ab"))
	assert.False(t, ch.FromClient(""))
	assert.False(t, (&SyncChange{}).FromClient("abc"))
}
