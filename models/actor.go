package models

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/tinyfed/tinyfed/internal/crypto"
	"gorm.io/gorm"
)

// An Actor is a federated identity, local or remote. Its ID is the
// dereferenceable URI remote servers know it by. Local actors carry a
// private key; remote actors are cached copies of a published profile
// and carry only the public key.
type Actor struct {
	ID         string `gorm:"primarykey;size:255"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Username   string `gorm:"size:128;uniqueIndex;not null"`
	Name       string `gorm:"size:128"`
	Summary    string `gorm:"type:text"`
	PublicKey  []byte `gorm:"not null"`
	PrivateKey []byte
}

// IsLocal indicates whether the actor is hosted on this instance.
func (a *Actor) IsLocal() bool {
	return len(a.PrivateKey) > 0
}

// Inbox returns the actor's inbox URL.
func (a *Actor) Inbox() string {
	return a.ID + "/inbox"
}

// Outbox returns the actor's outbox URL.
func (a *Actor) Outbox() string {
	return a.ID + "/outbox"
}

// Followers returns the URL of the actor's followers collection.
func (a *Actor) Followers() string {
	return a.ID + "/followers"
}

// Following returns the URL of the actor's following collection.
func (a *Actor) Following() string {
	return a.ID + "/following"
}

// PublicKeyID returns the keyId under which the actor's public key is
// published.
func (a *Actor) PublicKeyID() string {
	return a.ID + "#main-key"
}

// PubKey returns the actor's public key.
func (a *Actor) PubKey() (*rsa.PublicKey, error) {
	return crypto.ParsePublicKey(a.PublicKey)
}

// PrivKey returns the actor's private key, or an error for remote
// actors, which have none.
func (a *Actor) PrivKey() (*rsa.PrivateKey, error) {
	if !a.IsLocal() {
		return nil, errors.New("actor has no private key")
	}
	return crypto.ParsePrivateKey(a.PrivateKey)
}

type Actors struct {
	db *gorm.DB
}

func NewActors(db *gorm.DB) *Actors {
	return &Actors{db: db}
}

// Find finds a local actor by username.
func (a *Actors) Find(username string) (*Actor, error) {
	var actor Actor
	return &actor, a.db.Take(&actor, "username = ?", username).Error
}

// FindByID finds an actor by its URI.
func (a *Actors) FindByID(uri string) (*Actor, error) {
	var actor Actor
	return &actor, a.db.Take(&actor, "id = ?", uri).Error
}

// FindOrCreate finds an actor by its URI, or fetches and caches it via
// fn if it is not yet known. The actors table doubles as the key cache
// for signature verification.
func (a *Actors) FindOrCreate(uri string, fn func(string) (*Actor, error)) (*Actor, error) {
	actor, err := a.FindByID(uri)
	if err == nil {
		return actor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	actor, err = fn(uri)
	if err != nil {
		return nil, err
	}
	if err := a.db.Create(actor).Error; err != nil {
		return nil, err
	}
	return actor, nil
}

// Create persists a new actor.
func (a *Actors) Create(actor *Actor) error {
	return a.db.Create(actor).Error
}
