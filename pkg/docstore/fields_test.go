package docstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFields(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("existing map is not modified", func(t *testing.T) {
		existing := map[string]json.RawMessage{"a": json.RawMessage(`1`)}
		next, err := applyFields(existing, Fields{"a": 2}, now)
		require.NoError(t, err)
		assert.JSONEq(t, `1`, string(existing["a"]))
		assert.JSONEq(t, `2`, string(next["a"]))
	})

	t.Run("union of objects with nested timestamp", func(t *testing.T) {
		note := map[string]any{"text": "hello", "timestamp": ServerTimestamp}
		next, err := applyFields(nil, Fields{"notes": ArrayUnion(note)}, now)
		require.NoError(t, err)

		next, err = applyFields(next, Fields{"notes": ArrayUnion(note)}, now)
		require.NoError(t, err)

		var notes []struct {
			Text      string    `json:"text"`
			Timestamp time.Time `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal(next["notes"], &notes))
		require.Len(t, notes, 1)
		assert.Equal(t, "hello", notes[0].Text)
		assert.True(t, notes[0].Timestamp.Equal(now))
	})

	t.Run("union over non-array fails", func(t *testing.T) {
		existing := map[string]json.RawMessage{"tags": json.RawMessage(`"x"`)}
		_, err := applyFields(existing, Fields{"tags": ArrayUnion("y")}, now)
		assert.Error(t, err)
	})

	t.Run("raw message kept verbatim", func(t *testing.T) {
		next, err := applyFields(nil, Fields{"h": json.RawMessage(`[{"role":"user"}]`)}, now)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"role":"user"}]`, string(next["h"]))
	})
}

func TestRefPath(t *testing.T) {
	ref := CollectionRef{Tenant: "app", UserID: "u1", Collection: "notes_collection"}.Doc("space")
	assert.Equal(t, "artifacts/app/users/u1/notes_collection/space", ref.Path())
	assert.NoError(t, ref.Validate())
	assert.ErrorIs(t, Ref{}.Validate(), ErrInvalidRef)
}
