// Package activitypub implements the federation core: inbound activity
// processing, outbox publishing, and delivery to remote inboxes.
package activitypub

import (
	"crypto"
	"strings"
	"time"

	"github.com/tinyfed/tinyfed/models"
)

// PublicAudience is the sentinel recipient meaning "visible to any
// observer". For delivery it expands to the publisher's accepted
// followers.
const PublicAudience = "https://www.w3.org/ns/activitystreams#Public"

// Context is the JSON-LD context attached to outgoing documents.
const Context = "https://www.w3.org/ns/activitystreams"

type Env struct {
	*models.Env
}

// GetKey resolves a signature keyId to the public key of the actor that
// owns it. Local actors come straight from the store; unknown remote
// actors are fetched from their origin server and cached in the actors
// table for subsequent requests.
func (e *Env) GetKey(keyID string) (crypto.PublicKey, error) {
	fetcher := NewRemoteActorFetcher(e.DB)
	actor, err := models.NewActors(e.DB).FindOrCreate(trimKeyID(keyID), fetcher.Fetch)
	if err != nil {
		return nil, err
	}
	return actor.PubKey()
}

// trimKeyID removes the #main-key style fragment from the key id.
func trimKeyID(id string) string {
	if i := strings.Index(id, "#"); i != -1 {
		return id[:i]
	}
	return id
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func anyToSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// stringsFromAny normalises a recipient field, which the protocol
// allows to be a single string or an array of strings.
func stringsFromAny(v any) []string {
	switch v := v.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func timeFromAnyOrNow(v any) time.Time {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// objectID extracts the id of an object reference, which may be a bare
// string or an embedded object carrying an id field.
func objectID(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		return stringFromAny(v["id"])
	default:
		return ""
	}
}

// parseBool parses a boolean value from a request parameter.
// If the parameter is not present, or cannot be parsed, it returns false.
func parseBool(q string) bool {
	switch q {
	case "true", "1":
		return true
	default:
		return false
	}
}
