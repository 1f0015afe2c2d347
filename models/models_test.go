package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinyfed/tinyfed/internal/crypto"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockActor creates a remote actor in the database.
func MockActor(t *testing.T, tx *gorm.DB, name, domain string, opts ...func(*Actor)) *Actor {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(err)

	actor := &Actor{
		ID:        fmt.Sprintf("https://%s/users/%s", domain, name),
		Username:  name + "@" + domain,
		Name:      name,
		PublicKey: kp.PublicKey,
	}
	for _, opt := range opts {
		opt(actor)
	}
	require.NoError(tx.Create(actor).Error)
	return actor
}

// MockLocalActor creates a local actor, with a private key, in the
// database.
func MockLocalActor(t *testing.T, tx *gorm.DB, name, domain string) *Actor {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(err)

	actor := &Actor{
		ID:         fmt.Sprintf("https://%s/users/%s", domain, name),
		Username:   name,
		Name:       name,
		PublicKey:  kp.PublicKey,
		PrivateKey: kp.PrivateKey,
	}
	require.NoError(tx.Create(actor).Error)
	return actor
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger: logger.Default.LogMode(func() logger.LogLevel {
			return logger.Warn
		}()),
	})
	require.NoError(err)

	err = db.AutoMigrate(AllTables()...)
	require.NoError(err)

	// enable foreign key constraints
	err = db.Exec("PRAGMA foreign_keys = ON").Error
	require.NoError(err)

	return db
}
