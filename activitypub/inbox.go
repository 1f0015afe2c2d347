package activitypub

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-json-experiment/json"
	"github.com/tinyfed/tinyfed/internal/httpsig"
	"github.com/tinyfed/tinyfed/internal/httpx"
	"github.com/tinyfed/tinyfed/models"
	"gorm.io/gorm"
)

// InboxCreate processes an activity delivered by a remote server.
//
// The pipeline is verify, archive, apply. The signature must verify and
// name the same actor as the payload before anything is stored. The
// archive insert and the side effects commit together: a rejected or
// failed request persists nothing, so the remote's retry starts from a
// clean slate. The activity envelope is keyed on its id; a redelivered
// activity is acknowledged without re-applying its side effects.
// Activities of unrecognised types are archived but otherwise ignored,
// so a newer peer never causes an error here.
func InboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}

	v := httpsig.Verify(r, body, env.GetKey)
	switch v.Result {
	case httpsig.ResultValid:
		// continue
	case httpsig.ResultMalformed:
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("signature %s: %w", v.Result, v.Err))
	default:
		return httpx.Error(http.StatusUnauthorized, fmt.Errorf("signature %s: %w", v.Result, v.Err))
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}

	c := Classify(payload)
	if c.ID == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("activity has no id"))
	}
	if c.Actor != v.ActorID {
		return httpx.Error(http.StatusUnauthorized, fmt.Errorf("activity actor %q does not match signing actor %q", c.Actor, v.ActorID))
	}

	err = env.DB.Transaction(func(tx *gorm.DB) error {
		created, err := models.NewActivities(tx).Create(&models.Activity{
			ID:           c.ID,
			ActorID:      v.ActorID,
			ActivityType: c.RawKind,
			Object:       payload,
			To:           c.To,
			CC:           c.CC,
			Published:    c.Published,
		})
		if err != nil {
			return err
		}
		if !created {
			// Redelivery. The side effects were applied the first time.
			return nil
		}
		return applyInbound(tx, c)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func applyInbound(tx *gorm.DB, c Classification) error {
	switch c.Kind {
	case KindCreate:
		return applyCreate(tx, c)
	case KindFollow:
		return applyFollow(tx, c)
	case KindAccept:
		return applyAccept(tx, c)
	case KindUndo:
		return applyUndo(tx, c)
	default:
		// Archived with the envelope; nothing further to apply.
		return nil
	}
}

func applyCreate(tx *gorm.DB, c Classification) error {
	attributedTo := stringFromAny(c.Object["attributedTo"])
	if attributedTo != c.Actor {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("object attributed to %q, activity actor is %q", attributedTo, c.Actor))
	}
	id := stringFromAny(c.Object["id"])
	if id == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("object has no id"))
	}
	content := stringFromAny(c.Object["content"])
	note := &models.Note{
		ID:             id,
		AttributedToID: c.Actor,
		Content:        content,
		To:             stringsFromAny(c.Object["to"]),
		CC:             stringsFromAny(c.Object["cc"]),
		Published:      timeFromAnyOrNow(c.Object["published"]),
		Tags:           models.TagsFromContent(content),
	}
	if inReplyTo := stringFromAny(c.Object["inReplyTo"]); inReplyTo != "" {
		note.InReplyToID = &inReplyTo
	}
	return models.NewNotes(tx).Create(note)
}

func applyFollow(tx *gorm.DB, c Classification) error {
	target, err := models.NewActors(tx).FindByID(c.Target)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Follow of an actor not hosted here; archive only.
		return nil
	}
	if err != nil {
		return err
	}
	if !target.IsLocal() {
		return nil
	}
	return models.NewFollows(tx).Follow(c.ID, c.Actor, target.ID)
}

func applyAccept(tx *gorm.DB, c Classification) error {
	follows := models.NewFollows(tx)
	follow, err := follows.FindByActivityID(c.Ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Accept of a Follow this server never sent.
		return nil
	}
	if err != nil {
		return err
	}
	// Only the followed actor may accept.
	if follow.FollowingID != c.Actor {
		return httpx.Error(http.StatusUnauthorized, fmt.Errorf("actor %q cannot accept a follow of %q", c.Actor, follow.FollowingID))
	}
	_, err = follows.Accept(follow.FollowerID, follow.FollowingID)
	return err
}

func applyUndo(tx *gorm.DB, c Classification) error {
	follows := models.NewFollows(tx)
	follow, err := follows.FindByActivityID(c.Ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	// Only the follower may undo their own follow.
	if follow.FollowerID != c.Actor {
		return httpx.Error(http.StatusUnauthorized, fmt.Errorf("actor %q cannot undo a follow by %q", c.Actor, follow.FollowerID))
	}
	_, err = follows.Undo(follow.FollowerID, follow.FollowingID)
	return err
}
