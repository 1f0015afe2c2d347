package activitypub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("Create with embedded object", func(t *testing.T) {
		require := require.New(t)
		c := Classify(map[string]any{
			"id":    "https://example.com/activities/1",
			"type":  "Create",
			"actor": "https://example.com/users/alice",
			"to":    []any{"https://www.w3.org/ns/activitystreams#Public"},
			"cc":    "https://example.com/users/alice/followers",
			"object": map[string]any{
				"id":      "https://example.com/notes/1",
				"type":    "Note",
				"content": "hello",
			},
		})
		require.Equal(KindCreate, c.Kind)
		require.Equal("Create", c.RawKind)
		require.Equal("https://example.com/users/alice", c.Actor)
		require.Equal("hello", c.Object["content"])
		require.Equal([]string{"https://www.w3.org/ns/activitystreams#Public"}, c.To)
		require.Equal([]string{"https://example.com/users/alice/followers"}, c.CC)
	})

	t.Run("Create without object degrades to unknown", func(t *testing.T) {
		c := Classify(map[string]any{
			"id":    "https://example.com/activities/1",
			"type":  "Create",
			"actor": "https://example.com/users/alice",
		})
		require.Equal(t, KindUnknown, c.Kind)
		require.Equal(t, "Create", c.RawKind)
	})

	t.Run("Follow with string object", func(t *testing.T) {
		c := Classify(map[string]any{
			"id":     "https://example.com/activities/2",
			"type":   "Follow",
			"actor":  "https://example.com/users/alice",
			"object": "https://example.org/users/bob",
		})
		require.Equal(t, KindFollow, c.Kind)
		require.Equal(t, "https://example.org/users/bob", c.Target)
	})

	t.Run("Accept with embedded object reference", func(t *testing.T) {
		c := Classify(map[string]any{
			"id":    "https://example.org/activities/3",
			"type":  "Accept",
			"actor": "https://example.org/users/bob",
			"object": map[string]any{
				"id":   "https://example.com/activities/2",
				"type": "Follow",
			},
		})
		require.Equal(t, KindAccept, c.Kind)
		require.Equal(t, "https://example.com/activities/2", c.Ref)
	})

	t.Run("Undo", func(t *testing.T) {
		c := Classify(map[string]any{
			"id":     "https://example.com/activities/4",
			"type":   "Undo",
			"actor":  "https://example.com/users/alice",
			"object": "https://example.com/activities/2",
		})
		require.Equal(t, KindUndo, c.Kind)
		require.Equal(t, "https://example.com/activities/2", c.Ref)
	})

	t.Run("unrecognised type", func(t *testing.T) {
		c := Classify(map[string]any{
			"id":    "https://example.com/activities/5",
			"type":  "Arrive",
			"actor": "https://example.com/users/alice",
		})
		require.Equal(t, KindUnknown, c.Kind)
		require.Equal(t, "Arrive", c.RawKind)
	})

	t.Run("total on junk", func(t *testing.T) {
		for _, body := range []map[string]any{
			nil,
			{},
			{"type": 42},
			{"type": "Follow", "object": 42},
			{"type": "Accept", "object": map[string]any{}},
			{"type": "Undo", "object": []any{"a", "b"}},
			{"to": map[string]any{"not": "a list"}},
		} {
			c := Classify(body)
			require.Equal(t, KindUnknown, c.Kind)
		}
	})

	t.Run("published parsing", func(t *testing.T) {
		require := require.New(t)
		c := Classify(map[string]any{
			"type":      "Follow",
			"object":    "https://example.org/users/bob",
			"published": "2026-08-22T10:00:00Z",
		})
		require.Equal(time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC), c.Published)

		// a junk timestamp falls back to now rather than failing
		c = Classify(map[string]any{
			"type":      "Follow",
			"object":    "https://example.org/users/bob",
			"published": "yesterday",
		})
		require.WithinDuration(time.Now(), c.Published, time.Minute)
	})
}

func TestKindString(t *testing.T) {
	require := require.New(t)
	require.Equal("Create", KindCreate.String())
	require.Equal("Follow", KindFollow.String())
	require.Equal("Accept", KindAccept.String())
	require.Equal("Undo", KindUndo.String())
	require.Equal("Unknown", KindUnknown.String())
	require.Equal("Unknown", Kind(99).String())
}
