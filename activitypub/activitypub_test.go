package activitypub

import (
	"crypto/rsa"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinyfed/tinyfed/internal/crypto"
	"github.com/tinyfed/tinyfed/models"
	"golang.org/x/exp/slog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

	err = db.AutoMigrate(models.AllTables()...)
	require.NoError(err)

	// enable foreign key constraints
	err = db.Exec("PRAGMA foreign_keys = ON").Error
	require.NoError(err)

	return db
}

func testEnv(t *testing.T, db *gorm.DB, domain string) *Env {
	t.Helper()
	return &Env{Env: &models.Env{
		DB:     db,
		Domain: domain,
		Logger: slog.New(slog.NewTextHandler(os.Stderr)),
	}}
}

// mockRemoteActor creates a remote actor whose private key is returned
// so tests can sign requests on its behalf.
func mockRemoteActor(t *testing.T, tx *gorm.DB, name, domain string) (*models.Actor, *rsa.PrivateKey) {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(err)
	key, err := crypto.ParsePrivateKey(kp.PrivateKey)
	require.NoError(err)

	actor := &models.Actor{
		ID:        fmt.Sprintf("https://%s/users/%s", domain, name),
		Username:  name + "@" + domain,
		Name:      name,
		PublicKey: kp.PublicKey,
	}
	require.NoError(tx.Create(actor).Error)
	return actor, key
}

// mockRemoteActorAt creates a remote actor rooted at a specific base
// URL, typically an httptest server, so its inbox is routable.
func mockRemoteActorAt(t *testing.T, tx *gorm.DB, name, base string) *models.Actor {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(err)

	actor := &models.Actor{
		ID:        base + "/users/" + name,
		Username:  name + "@" + base,
		Name:      name,
		PublicKey: kp.PublicKey,
	}
	require.NoError(tx.Create(actor).Error)
	return actor
}

func mockLocalAccount(t *testing.T, tx *gorm.DB, name, domain, password string) *models.Account {
	t.Helper()
	require := require.New(t)

	account, err := models.NewAccounts(tx).Create(
		fmt.Sprintf("https://%s/users/%s", domain, name),
		name, name, name+"@"+domain, password,
	)
	require.NoError(err)
	return account
}
