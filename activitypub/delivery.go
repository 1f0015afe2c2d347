package activitypub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/go-json-experiment/json"
	"github.com/tinyfed/tinyfed/internal/algorithms"
	"github.com/tinyfed/tinyfed/internal/httpsig"
	"github.com/tinyfed/tinyfed/models"
	"gorm.io/gorm"
)

// DefaultDeliveryTimeout bounds the time spent on any one recipient.
// A slow or dead server costs at most this much wall clock and never
// holds up deliveries to its siblings.
const DefaultDeliveryTimeout = 10 * time.Second

// A Deliverer fans an activity out to remote inboxes, signing each
// request as the publishing actor.
type Deliverer struct {
	db      *gorm.DB
	signAs  *models.Actor
	timeout time.Duration
}

func NewDeliverer(db *gorm.DB, signAs *models.Actor) *Deliverer {
	return &Deliverer{
		db:      db,
		signAs:  signAs,
		timeout: DefaultDeliveryTimeout,
	}
}

// An Outcome records what happened to one recipient's delivery.
type Outcome struct {
	// StatusCode is the HTTP status the recipient returned, zero if
	// the request never completed.
	StatusCode int
	// TimedOut reports that the per-recipient deadline expired.
	TimedOut bool
	Err      error
}

func (o Outcome) Delivered() bool {
	return o.Err == nil && !o.TimedOut
}

// A Report collects per-recipient outcomes from a fan-out. One failed
// or slow recipient never masks the result for the others.
type Report struct {
	mu       sync.Mutex
	Outcomes map[string]Outcome
}

func (r *Report) record(inbox string, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes[inbox] = outcome
}

// Succeeded returns the inboxes which acknowledged the delivery.
func (r *Report) Succeeded() []string {
	var inboxes []string
	for inbox, outcome := range r.Outcomes {
		if outcome.Delivered() {
			inboxes = append(inboxes, inbox)
		}
	}
	return inboxes
}

// Failed returns the inboxes which did not acknowledge the delivery.
// These are the candidates for a later retry.
func (r *Report) Failed() []string {
	var inboxes []string
	for inbox, outcome := range r.Outcomes {
		if !outcome.Delivered() {
			inboxes = append(inboxes, inbox)
		}
	}
	return inboxes
}

// A Resolution is the outcome of expanding an activity's addressing.
// Recipients that could not be resolved are recorded rather than
// failing the whole expansion, so one dead server never blocks
// delivery to everyone else.
type Resolution struct {
	Inboxes []string
	Failed  map[string]error
}

// ResolveRecipients expands the addressing of an activity into the set
// of inbox URLs to deliver to. The public audience expands to the
// publisher's accepted followers, as does the publisher's own followers
// collection URL; any other entry is treated as an actor reference and
// resolved to that actor's inbox. The inboxes are deduplicated and
// never contain the publisher's own. An error is returned only when
// the local follower store fails; a recipient that cannot be fetched
// lands in Failed.
func (d *Deliverer) ResolveRecipients(to, cc []string) (*Resolution, error) {
	fetcher := NewRemoteActorFetcher(d.db)
	actors := models.NewActors(d.db)

	res := &Resolution{
		Failed: make(map[string]error),
	}
	for _, recipient := range append(append([]string(nil), to...), cc...) {
		switch recipient {
		case PublicAudience, d.signAs.Followers():
			followers, err := models.NewFollows(d.db).Followers(d.signAs.ID)
			if err != nil {
				return nil, err
			}
			for _, follower := range followers {
				res.Inboxes = append(res.Inboxes, follower.Inbox())
			}
		case "":
			// skip
		default:
			actor, err := actors.FindOrCreate(recipient, fetcher.Fetch)
			if err != nil {
				res.Failed[recipient] = err
				continue
			}
			res.Inboxes = append(res.Inboxes, actor.Inbox())
		}
	}

	res.Inboxes = algorithms.Dedupe(res.Inboxes)
	res.Inboxes = algorithms.Filter(res.Inboxes, func(inbox string) bool {
		return inbox != d.signAs.Inbox()
	})
	return res, nil
}

// Deliver posts the activity to every inbox concurrently and waits for
// all attempts to resolve. The returned report has exactly one outcome
// per inbox. The longest any call to Deliver can take is the
// per-recipient timeout, not the sum over recipients.
func (d *Deliverer) Deliver(ctx context.Context, activity map[string]any, inboxes []string) (*Report, error) {
	client, err := NewClient(d.signAs)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(activity)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Outcomes: make(map[string]Outcome, len(inboxes)),
	}
	var wg sync.WaitGroup
	for _, inbox := range inboxes {
		wg.Add(1)
		go func(inbox string) {
			defer wg.Done()
			report.record(inbox, d.deliverOne(ctx, client, body, inbox))
		}(inbox)
	}
	wg.Wait()
	return report, nil
}

func (d *Deliverer) deliverOne(ctx context.Context, client *Client, body []byte, inbox string) Outcome {
	rctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var outcome Outcome
	err := requests.URL(inbox).
		BodyBytes(body).
		Header("Content-Type", `application/activity+json`).
		Transport(requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if err := httpsig.Sign(req, client.keyID, client.privateKey, body); err != nil {
				return nil, fmt.Errorf("failed to sign request: %w", err)
			}
			return http.DefaultTransport.RoundTrip(req)
		})).
		AddValidator(func(resp *http.Response) error {
			outcome.StatusCode = resp.StatusCode
			return nil
		}).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted).
		Fetch(rctx)
	if err != nil {
		outcome.Err = err
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(rctx.Err(), context.DeadlineExceeded) {
			outcome.TimedOut = true
		}
	}
	return outcome
}
