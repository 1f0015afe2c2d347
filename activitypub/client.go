package activitypub

import (
	"context"
	"crypto"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/go-json-experiment/json"
	"github.com/tinyfed/tinyfed/internal/httpsig"
	"github.com/tinyfed/tinyfed/models"
)

// Client is an ActivityPub client which can be used to fetch remote
// resources and post activities, signing every request as a local actor.
type Client struct {
	keyID      string
	privateKey crypto.PrivateKey
}

// NewClient returns a client that signs as the given local actor.
// Remote actors cannot sign; their key never leaves their own server.
func NewClient(signAs *models.Actor) (*Client, error) {
	privateKey, err := signAs.PrivKey()
	if err != nil {
		return nil, err
	}
	return &Client{
		keyID:      signAs.PublicKeyID(),
		privateKey: privateKey,
	}, nil
}

// Fetch fetches the resource at the given URL and decodes it into obj.
func (c *Client) Fetch(ctx context.Context, uri string, obj any) error {
	return requests.URL(uri).
		Accept(`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		Transport(requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if err := httpsig.Sign(req, c.keyID, c.privateKey, nil); err != nil {
				return nil, fmt.Errorf("failed to sign request: %w", err)
			}
			return http.DefaultTransport.RoundTrip(req)
		})).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/json",
		).
		CheckStatus(http.StatusOK).
		ToJSON(obj).
		Fetch(ctx)
}

// Post posts the given activity to the given URL.
func (c *Client) Post(ctx context.Context, url string, obj map[string]any) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return requests.URL(url).
		BodyBytes(body).
		Header("Content-Type", `application/activity+json`).
		Transport(requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
				return nil, fmt.Errorf("failed to sign request: %w", err)
			}
			return http.DefaultTransport.RoundTrip(req)
		})).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted).
		Fetch(ctx)
}
