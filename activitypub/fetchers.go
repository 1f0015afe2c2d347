package activitypub

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tinyfed/tinyfed/models"
	"gorm.io/gorm"
)

// RemoteActorFetcher retrieves the published profile of a remote actor
// so its public key and addressing details can be cached locally.
type RemoteActorFetcher struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewRemoteActorFetcher(db *gorm.DB) *RemoteActorFetcher {
	return &RemoteActorFetcher{
		db:      db,
		timeout: DefaultDeliveryTimeout,
	}
}

// Fetch dereferences uri and converts the actor document into a local
// Actor record. The cached username is qualified with the actor's host
// so remote handles cannot collide with local ones. The fetch is
// bounded: an unresponsive origin fails the lookup rather than holding
// up the caller, which may be an inbound request verifying a signature.
func (f *RemoteActorFetcher) Fetch(uri string) (*models.Actor, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	var obj map[string]any
	err = requests.URL(uri).
		Accept(`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/json",
		).
		ToJSON(&obj).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch actor %s: %w", uri, err)
	}

	id := stringFromAny(obj["id"])
	publicKey := stringFromAny(mapFromAny(obj["publicKey"])["publicKeyPem"])
	username := stringFromAny(obj["preferredUsername"])
	if id == "" || publicKey == "" || username == "" {
		return nil, fmt.Errorf("fetch actor %s: missing required fields", uri)
	}

	return &models.Actor{
		ID:        id,
		Username:  username + "@" + u.Host,
		Name:      stringFromAny(obj["name"]),
		Summary:   stringFromAny(obj["summary"]),
		PublicKey: []byte(publicKey),
	}, nil
}
