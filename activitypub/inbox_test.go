package activitypub

import (
	"bytes"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
	"github.com/tinyfed/tinyfed/internal/httpsig"
	"github.com/tinyfed/tinyfed/internal/httpx"
	"github.com/tinyfed/tinyfed/models"
	"gorm.io/gorm"
)

func postSigned(t *testing.T, env *Env, key *rsa.PrivateKey, keyID string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	require := require.New(t)

	body, err := json.Marshal(payload)
	require.NoError(err)
	req, err := http.NewRequest("POST", "https://"+env.Domain+"/inbox", bytes.NewReader(body))
	require.NoError(err)
	req.Header.Set("Content-Type", "application/activity+json")
	if key != nil {
		require.NoError(httpsig.Sign(req, keyID, key, body))
	}

	rec := httptest.NewRecorder()
	handler := httpx.HandlerFunc(func(*http.Request) *Env { return env }, InboxCreate)
	handler(rec, req)
	return rec
}

func TestInboxCreate(t *testing.T) {
	db := setupTestDB(t)

	t.Run("Follow then Accept then Undo", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()
		env := testEnv(t, tx, "local.example")

		local := mockLocalAccount(t, tx, "carol", "local.example", "hunter2").Actor
		alice, aliceKey := mockRemoteActor(t, tx, "alice", "remote.example")
		follows := models.NewFollows(tx)

		// inbound Follow creates a pending edge
		rec := postSigned(t, env, aliceKey, alice.PublicKeyID(), map[string]any{
			"id":     "https://remote.example/activities/f1",
			"type":   "Follow",
			"actor":  alice.ID,
			"object": local.ID,
		})
		require.Equal(http.StatusAccepted, rec.Code)

		status, err := follows.Status(alice.ID, local.ID)
		require.NoError(err)
		require.Equal(models.FollowPending, status)

		// inbound Undo removes it
		rec = postSigned(t, env, aliceKey, alice.PublicKeyID(), map[string]any{
			"id":     "https://remote.example/activities/u1",
			"type":   "Undo",
			"actor":  alice.ID,
			"object": "https://remote.example/activities/f1",
		})
		require.Equal(http.StatusAccepted, rec.Code)

		status, err = follows.Status(alice.ID, local.ID)
		require.NoError(err)
		require.Equal(models.FollowStatus(""), status)
	})

	t.Run("Accept of an outbound follow", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()
		env := testEnv(t, tx, "local.example")

		local := mockLocalAccount(t, tx, "carol", "local.example", "hunter2").Actor
		bob, bobKey := mockRemoteActor(t, tx, "bob", "remote.example")
		follows := models.NewFollows(tx)

		// carol already sent a Follow to bob
		const followID = "https://local.example/activities/f2"
		require.NoError(follows.Follow(followID, local.ID, bob.ID))

		rec := postSigned(t, env, bobKey, bob.PublicKeyID(), map[string]any{
			"id":     "https://remote.example/activities/a1",
			"type":   "Accept",
			"actor":  bob.ID,
			"object": followID,
		})
		require.Equal(http.StatusAccepted, rec.Code)

		status, err := follows.Status(local.ID, bob.ID)
		require.NoError(err)
		require.Equal(models.FollowAccepted, status)
	})

	t.Run("redelivery applies side effects once", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()
		env := testEnv(t, tx, "local.example")

		local := mockLocalAccount(t, tx, "carol", "local.example", "hunter2").Actor
		alice, aliceKey := mockRemoteActor(t, tx, "alice", "remote.example")
		follows := models.NewFollows(tx)

		payload := map[string]any{
			"id":     "https://remote.example/activities/f3",
			"type":   "Follow",
			"actor":  alice.ID,
			"object": local.ID,
		}
		rec := postSigned(t, env, aliceKey, alice.PublicKeyID(), payload)
		require.Equal(http.StatusAccepted, rec.Code)

		// accept, then redeliver the original Follow; the accepted edge
		// must not be reset to pending
		_, err := follows.Accept(alice.ID, local.ID)
		require.NoError(err)

		rec = postSigned(t, env, aliceKey, alice.PublicKeyID(), payload)
		require.Equal(http.StatusAccepted, rec.Code)

		status, err := follows.Status(alice.ID, local.ID)
		require.NoError(err)
		require.Equal(models.FollowAccepted, status)

		count, err := models.NewActivities(tx).CountByActor(alice.ID)
		require.NoError(err)
		require.EqualValues(1, count)
	})

	t.Run("Create persists the note", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()
		env := testEnv(t, tx, "local.example")

		alice, aliceKey := mockRemoteActor(t, tx, "alice", "remote.example")

		rec := postSigned(t, env, aliceKey, alice.PublicKeyID(), map[string]any{
			"id":    "https://remote.example/activities/c1",
			"type":  "Create",
			"actor": alice.ID,
			"to":    []any{PublicAudience},
			"object": map[string]any{
				"id":           "https://remote.example/notes/n1",
				"type":         "Note",
				"attributedTo": alice.ID,
				"content":      "shipping #golang notes",
			},
		})
		require.Equal(http.StatusAccepted, rec.Code)

		note, err := models.NewNotes(tx).FindByID("https://remote.example/notes/n1")
		require.NoError(err)
		require.Equal(alice.ID, note.AttributedToID)
		require.Equal([]string{"#golang"}, note.Tags)
	})

	t.Run("unrecognised type is archived", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()
		env := testEnv(t, tx, "local.example")

		alice, aliceKey := mockRemoteActor(t, tx, "alice", "remote.example")

		rec := postSigned(t, env, aliceKey, alice.PublicKeyID(), map[string]any{
			"id":    "https://remote.example/activities/x1",
			"type":  "Arrive",
			"actor": alice.ID,
		})
		require.Equal(http.StatusAccepted, rec.Code)

		activity, err := models.NewActivities(tx).FindByID("https://remote.example/activities/x1")
		require.NoError(err)
		require.Equal("Arrive", activity.ActivityType)
	})

	t.Run("rejected activity leaves no rows behind", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()
		env := testEnv(t, tx, "local.example")

		alice, aliceKey := mockRemoteActor(t, tx, "alice", "remote.example")
		bob, _ := mockRemoteActor(t, tx, "bob", "remote.example")

		// alice signs a Create whose note claims to be bob's
		const activityID = "https://remote.example/activities/c2"
		rec := postSigned(t, env, aliceKey, alice.PublicKeyID(), map[string]any{
			"id":    activityID,
			"type":  "Create",
			"actor": alice.ID,
			"object": map[string]any{
				"id":           "https://remote.example/notes/n2",
				"type":         "Note",
				"attributedTo": bob.ID,
				"content":      "forged",
			},
		})
		require.Equal(http.StatusBadRequest, rec.Code)

		// the envelope must roll back with the rejected side effect, so
		// a corrected redelivery of the same id is not short-circuited
		_, err := models.NewActivities(tx).FindByID(activityID)
		require.ErrorIs(err, gorm.ErrRecordNotFound)
		_, err = models.NewNotes(tx).FindByID("https://remote.example/notes/n2")
		require.ErrorIs(err, gorm.ErrRecordNotFound)

		rec = postSigned(t, env, aliceKey, alice.PublicKeyID(), map[string]any{
			"id":    activityID,
			"type":  "Create",
			"actor": alice.ID,
			"object": map[string]any{
				"id":           "https://remote.example/notes/n2",
				"type":         "Note",
				"attributedTo": alice.ID,
				"content":      "genuine",
			},
		})
		require.Equal(http.StatusAccepted, rec.Code)

		note, err := models.NewNotes(tx).FindByID("https://remote.example/notes/n2")
		require.NoError(err)
		require.Equal(alice.ID, note.AttributedToID)
	})

	t.Run("unsigned request is rejected", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()
		env := testEnv(t, tx, "local.example")

		alice, _ := mockRemoteActor(t, tx, "alice", "remote.example")

		rec := postSigned(t, env, nil, "", map[string]any{
			"id":     "https://remote.example/activities/f4",
			"type":   "Follow",
			"actor":  alice.ID,
			"object": "https://local.example/users/carol",
		})
		require.Equal(http.StatusBadRequest, rec.Code)
	})

	t.Run("payload actor must match signing actor", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()
		env := testEnv(t, tx, "local.example")

		local := mockLocalAccount(t, tx, "carol", "local.example", "hunter2").Actor
		alice, aliceKey := mockRemoteActor(t, tx, "alice", "remote.example")
		bob, _ := mockRemoteActor(t, tx, "bob", "remote.example")

		rec := postSigned(t, env, aliceKey, alice.PublicKeyID(), map[string]any{
			"id":     "https://remote.example/activities/f5",
			"type":   "Follow",
			"actor":  bob.ID,
			"object": local.ID,
		})
		require.Equal(http.StatusUnauthorized, rec.Code)

		status, err := models.NewFollows(tx).Status(bob.ID, local.ID)
		require.NoError(err)
		require.Equal(models.FollowStatus(""), status)
	})
}
