package models

import (
	"time"

	"github.com/tinyfed/tinyfed/internal/crypto"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// An Account holds the login credentials for a local Actor. Remote
// actors have no account.
type Account struct {
	ActorID           string `gorm:"primarykey;size:255"`
	Actor             *Actor `gorm:"constraint:OnDelete:CASCADE;<-:create;"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Email             string `gorm:"size:128;uniqueIndex;not null"`
	EncryptedPassword []byte `gorm:"size:60;not null"`
}

// CheckPassword compares password against the account's bcrypt hash.
func (a *Account) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword(a.EncryptedPassword, []byte(password))
}

type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

// AccountForActor returns the account belonging to a local actor.
func (a *Accounts) AccountForActor(actor *Actor) (*Account, error) {
	var account Account
	if err := a.db.Joins("Actor").Take(&account, "accounts.actor_id = ?", actor.ID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// Create provisions a local actor together with its keypair and login
// account, in one transaction.
func (a *Accounts) Create(id, username, name, email, password string) (*Account, error) {
	var account Account
	err := a.db.Transaction(func(tx *gorm.DB) error {
		keypair, err := crypto.GenerateKeypair()
		if err != nil {
			return err
		}
		passwd, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		actor := &Actor{
			ID:         id,
			Username:   username,
			Name:       name,
			PublicKey:  keypair.PublicKey,
			PrivateKey: keypair.PrivateKey,
		}
		if err := tx.Create(actor).Error; err != nil {
			return err
		}
		account = Account{
			ActorID:           actor.ID,
			Actor:             actor,
			Email:             email,
			EncryptedPassword: passwd,
		}
		return tx.Create(&account).Error
	})
	return &account, err
}
