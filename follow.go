package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/tinyfed/tinyfed/activitypub"
	"github.com/tinyfed/tinyfed/internal/webfinger"
	"github.com/tinyfed/tinyfed/models"
	"gorm.io/gorm"
)

type FollowCmd struct {
	Object string `required:"" help:"handle or actor url to follow"`
	Actor  string `required:"" help:"username of the local actor to follow with"`
}

func (f *FollowCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}

	actor, err := models.NewActors(db).Find(f.Actor)
	if err != nil {
		return err
	}
	u, err := url.Parse(actor.ID)
	if err != nil {
		return err
	}

	// a user@host handle resolves through webfinger; anything else is
	// taken to be the actor url itself
	object := f.Object
	if acct, err := webfinger.Parse(object); err == nil && acct.Host != "" {
		resource, err := acct.Fetch(context.Background())
		if err != nil {
			return err
		}
		object, err = resource.ActivityPub()
		if err != nil {
			return err
		}
	}

	fetcher := activitypub.NewRemoteActorFetcher(db)
	target, err := models.NewActors(db).FindOrCreate(object, fetcher.Fetch)
	if err != nil {
		return err
	}

	activityID := fmt.Sprintf("https://%s/activities/%s", u.Host, uuid.New())
	if err := models.NewFollows(db).Follow(activityID, actor.ID, target.ID); err != nil {
		return err
	}

	client, err := activitypub.NewClient(actor)
	if err != nil {
		return err
	}
	return client.Post(context.Background(), target.Inbox(), map[string]any{
		"@context": activitypub.Context,
		"id":       activityID,
		"type":     "Follow",
		"actor":    actor.ID,
		"object":   target.ID,
	})
}
