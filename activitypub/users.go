package activitypub

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tinyfed/tinyfed/internal/algorithms"
	"github.com/tinyfed/tinyfed/internal/httpx"
	"github.com/tinyfed/tinyfed/internal/to"
	"github.com/tinyfed/tinyfed/models"
)

// UsersShow returns a local actor's profile document, including the
// public key remote servers need to verify this actor's signatures.
func UsersShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := models.NewActors(env.DB).Find(chi.URLParam(r, "username"))
	if err != nil {
		return httpx.Error(http.StatusNotFound, err)
	}
	return to.ActivityJSON(w, map[string]any{
		"@context":          Context,
		"id":                actor.ID,
		"type":              "Person",
		"preferredUsername": actor.Username,
		"name":              actor.Name,
		"summary":           actor.Summary,
		"inbox":             actor.Inbox(),
		"outbox":            actor.Outbox(),
		"followers":         actor.Followers(),
		"following":         actor.Following(),
		"publicKey": map[string]any{
			"id":           actor.PublicKeyID(),
			"owner":        actor.ID,
			"publicKeyPem": string(actor.PublicKey),
		},
	})
}

// FollowersIndex returns the actors with an accepted follow of the
// given actor.
func FollowersIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	return followCollection(env, w, r, "followers")
}

// FollowingIndex returns the actors the given actor has an accepted
// follow of.
func FollowingIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	return followCollection(env, w, r, "following")
}

func followCollection(env *Env, w http.ResponseWriter, r *http.Request, which string) error {
	actor, err := models.NewActors(env.DB).Find(chi.URLParam(r, "username"))
	if err != nil {
		return httpx.Error(http.StatusNotFound, err)
	}
	follows := models.NewFollows(env.DB)

	var members []*models.Actor
	var id string
	switch which {
	case "followers":
		id = actor.Followers()
		members, err = follows.Followers(actor.ID)
	case "following":
		id = actor.Following()
		members, err = follows.Following(actor.ID)
	}
	if err != nil {
		return err
	}
	return to.ActivityJSON(w, map[string]any{
		"@context":   Context,
		"id":         id,
		"type":       "OrderedCollection",
		"totalItems": len(members),
		"orderedItems": algorithms.Map(members, func(a *models.Actor) string {
			return a.ID
		}),
	})
}
