package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db,
		&domain.AccountModel{}, &domain.RelationshipModel{}, &domain.PostModel{}))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func seedAccount(t *testing.T, repo *GormAccountRepository, email string) *domain.Account {
	t.Helper()
	a := &domain.Account{
		ID:               uuid.NewString(),
		Name:             "Someone",
		Email:            email,
		PasswordDigest:   "pw-digest",
		ActivationDigest: "act-digest",
	}
	require.NoError(t, repo.Create(t.Context(), a))
	return a
}

var postClock = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seedPost(t *testing.T, repo *GormPostRepository, authorID, id string, offset time.Duration) domain.Post {
	t.Helper()
	p := domain.Post{ID: id, AuthorID: authorID, Content: "post " + id, CreatedAt: postClock.Add(offset)}
	require.NoError(t, repo.Create(t.Context(), &p))
	return p
}
