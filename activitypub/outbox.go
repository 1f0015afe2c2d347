package activitypub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/tinyfed/tinyfed/internal/httpx"
	"github.com/tinyfed/tinyfed/internal/to"
	"github.com/tinyfed/tinyfed/models"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// OutboxIndex returns an actor's outbox as an OrderedCollection. By
// default only a summary with the total and page links is returned;
// ?page=true returns a page of the actor's publicly addressed
// activities, newest first.
func OutboxIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := models.NewActors(env.DB).Find(chi.URLParam(r, "username"))
	if err != nil {
		return httpx.Error(http.StatusNotFound, err)
	}
	activities := models.NewActivities(env.DB)

	if !parseBool(r.URL.Query().Get("page")) {
		count, err := activities.PublicCountByActor(actor.ID, PublicAudience)
		if err != nil {
			return err
		}
		return to.ActivityJSON(w, map[string]any{
			"@context":   Context,
			"id":         actor.Outbox(),
			"type":       "OrderedCollection",
			"totalItems": count,
			"first":      actor.Outbox() + "?page=true",
			"last":       actor.Outbox() + "?min_id=0&page=true",
		})
	}

	page, err := activities.PublicByActor(actor.ID, PublicAudience, 20, 0)
	if err != nil {
		return err
	}
	var items []map[string]any
	for _, activity := range page {
		items = append(items, activity.Object)
	}
	return to.ActivityJSON(w, map[string]any{
		"@context":     Context,
		"id":           actor.Outbox() + "?page=true",
		"type":         "OrderedCollectionPage",
		"partOf":       actor.Outbox(),
		"orderedItems": items,
	})
}

// OutboxCreate accepts an activity from the actor's owner, assigns it a
// server generated id, applies its local side effects, and fans it out
// to the resolved recipients. The response is the stored activity; the
// fan-out continues after the response is written, so a slow remote
// server never holds the publisher's request open.
func OutboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := authenticate(env, r)
	if err != nil {
		return err
	}
	if actor.Username != chi.URLParam(r, "username") {
		return httpx.Error(http.StatusForbidden, fmt.Errorf("authenticated as %q, posting as %q", actor.Username, chi.URLParam(r, "username")))
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}

	activity, err := publish(env, actor, payload)
	if err != nil {
		return err
	}

	// Delivery is detached from the request context: the publisher's
	// activity is already durable, and disconnecting must not abort the
	// fan-out.
	go func() {
		deliverer := NewDeliverer(env.DB, actor)
		res, err := deliverer.ResolveRecipients(activity.To, activity.CC)
		if err != nil {
			env.Log().Error("resolve recipients", "activity", activity.ID, "error", err)
			return
		}
		for recipient, rerr := range res.Failed {
			env.Log().Warn("resolve recipient", "activity", activity.ID, "recipient", recipient, "error", rerr)
		}
		report, err := deliverer.Deliver(context.Background(), activity.Object, res.Inboxes)
		if err != nil {
			env.Log().Error("deliver", "activity", activity.ID, "error", err)
			return
		}
		env.Log().Info("delivered", "activity", activity.ID,
			slog.Int("succeeded", len(report.Succeeded())),
			slog.Int("failed", len(report.Failed())))
	}()

	w.WriteHeader(http.StatusCreated)
	return to.ActivityJSON(w, activity.Object)
}

// publish assigns ids, applies the activity's local side effects, and
// archives the envelope.
func publish(env *Env, actor *models.Actor, payload map[string]any) (*models.Activity, error) {
	c := Classify(payload)
	published := time.Now().UTC()

	activity := &models.Activity{
		ID:           fmt.Sprintf("https://%s/activities/%s", env.Domain, uuid.New()),
		ActorID:      actor.ID,
		ActivityType: c.RawKind,
		To:           c.To,
		CC:           c.CC,
		Published:    published,
	}

	switch c.Kind {
	case KindCreate:
		content := stringFromAny(c.Object["content"])
		note := &models.Note{
			ID:             fmt.Sprintf("https://%s/notes/%s", env.Domain, uuid.New()),
			AttributedToID: actor.ID,
			Content:        content,
			To:             c.To,
			CC:             c.CC,
			Published:      published,
			Tags:           models.TagsFromContent(content),
		}
		if inReplyTo := stringFromAny(c.Object["inReplyTo"]); inReplyTo != "" {
			note.InReplyToID = &inReplyTo
		}
		if err := models.NewNotes(env.DB).Create(note); err != nil {
			return nil, err
		}
		activity.Object = map[string]any{
			"@context":  Context,
			"id":        activity.ID,
			"type":      "Create",
			"actor":     actor.ID,
			"published": published.Format(time.RFC3339),
			"to":        c.To,
			"cc":        c.CC,
			"object": map[string]any{
				"id":           note.ID,
				"type":         "Note",
				"attributedTo": actor.ID,
				"content":      note.Content,
				"published":    published.Format(time.RFC3339),
				"to":           c.To,
				"cc":           c.CC,
			},
		}
	case KindFollow:
		// The target must be resolvable before a pending edge is
		// recorded; the fetch also caches the target's profile and key
		// for delivery.
		fetcher := NewRemoteActorFetcher(env.DB)
		target, err := models.NewActors(env.DB).FindOrCreate(c.Target, fetcher.Fetch)
		if err != nil {
			return nil, httpx.Error(http.StatusBadGateway, fmt.Errorf("resolve follow target: %w", err))
		}
		if err := models.NewFollows(env.DB).Follow(activity.ID, actor.ID, target.ID); err != nil {
			return nil, err
		}
		activity.To = []string{target.ID}
		activity.Object = envelope(activity, actor, "Follow", target.ID)
	case KindAccept:
		follows := models.NewFollows(env.DB)
		follow, err := follows.FindByActivityID(c.Ref)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, httpx.Error(http.StatusNotFound, fmt.Errorf("no follow with activity id %q", c.Ref))
		}
		if err != nil {
			return nil, err
		}
		if follow.FollowingID != actor.ID {
			return nil, httpx.Error(http.StatusForbidden, errors.New("only the followed actor can accept a follow"))
		}
		if _, err := follows.Accept(follow.FollowerID, follow.FollowingID); err != nil {
			return nil, err
		}
		// The Accept goes back to the follower, not the audience.
		activity.To = []string{follow.FollowerID}
		activity.CC = nil
		activity.Object = envelope(activity, actor, "Accept", c.Ref)
	case KindUndo:
		follows := models.NewFollows(env.DB)
		follow, err := follows.FindByActivityID(c.Ref)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, httpx.Error(http.StatusNotFound, fmt.Errorf("no follow with activity id %q", c.Ref))
		}
		if err != nil {
			return nil, err
		}
		if follow.FollowerID != actor.ID {
			return nil, httpx.Error(http.StatusForbidden, errors.New("only the follower can undo a follow"))
		}
		if _, err := follows.Undo(follow.FollowerID, follow.FollowingID); err != nil {
			return nil, err
		}
		activity.To = []string{follow.FollowingID}
		activity.CC = nil
		activity.Object = envelope(activity, actor, "Undo", c.Ref)
	default:
		return nil, httpx.Error(http.StatusBadRequest, fmt.Errorf("unsupported activity type: %q", c.RawKind))
	}

	if _, err := models.NewActivities(env.DB).Create(activity); err != nil {
		return nil, err
	}
	return activity, nil
}

func envelope(activity *models.Activity, actor *models.Actor, kind, object string) map[string]any {
	return map[string]any{
		"@context":  Context,
		"id":        activity.ID,
		"type":      kind,
		"actor":     actor.ID,
		"object":    object,
		"published": activity.Published.Format(time.RFC3339),
		"to":        activity.To,
		"cc":        activity.CC,
	}
}

// authenticate resolves HTTP basic auth credentials to a local actor.
func authenticate(env *Env, r *http.Request) (*models.Actor, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, httpx.Error(http.StatusUnauthorized, errors.New("missing credentials"))
	}
	actor, err := models.NewActors(env.DB).Find(username)
	if err != nil {
		return nil, httpx.Error(http.StatusUnauthorized, errors.New("invalid username or password"))
	}
	account, err := models.NewAccounts(env.DB).AccountForActor(actor)
	if err != nil {
		return nil, httpx.Error(http.StatusUnauthorized, errors.New("invalid username or password"))
	}
	if err := account.CheckPassword(password); err != nil {
		return nil, httpx.Error(http.StatusUnauthorized, errors.New("invalid username or password"))
	}
	return actor, nil
}
