package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/pkg/database"
)

// GormAccountRepository implements AccountRepository using GORM.
type GormAccountRepository struct {
	db *gorm.DB
}

func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// Create inserts a new account. A taken email maps to domain.ErrEmailTaken.
func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	model := domain.AccountToModel(account)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return storageErr("accounts.create", err)
	}

	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.first(ctx, "accounts.get_by_id", "id = ?", id)
}

// GetByEmail looks the account up by its normalised email.
func (r *GormAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.first(ctx, "accounts.get_by_email", "email = ?", domain.NormalizeEmail(email))
}

func (r *GormAccountRepository) first(ctx context.Context, op, query string, arg string) (*domain.Account, error) {
	var model domain.AccountModel
	if err := r.db.WithContext(ctx).First(&model, query, arg).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr(op, err)
	}
	return model.ToDomain(), nil
}

func (r *GormAccountRepository) UpdateProfile(ctx context.Context, account *domain.Account) error {
	err := r.updates(ctx, "accounts.update_profile", account.ID, map[string]interface{}{
		"name":            account.Name,
		"email":           account.Email,
		"password_digest": account.PasswordDigest,
	})
	if err != nil && database.IsUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	return err
}

func (r *GormAccountRepository) UpdateRememberDigest(ctx context.Context, id string, digest *string) error {
	return r.updates(ctx, "accounts.update_remember_digest", id, map[string]interface{}{
		"remember_digest": digest,
	})
}

func (r *GormAccountRepository) UpdateActivation(ctx context.Context, id string, activated bool, at *time.Time) error {
	return r.updates(ctx, "accounts.update_activation", id, map[string]interface{}{
		"activated":    activated,
		"activated_at": at,
	})
}

func (r *GormAccountRepository) UpdateResetDigest(ctx context.Context, id string, digest *string, sentAt *time.Time) error {
	return r.updates(ctx, "accounts.update_reset_digest", id, map[string]interface{}{
		"reset_digest":  digest,
		"reset_sent_at": sentAt,
	})
}

func (r *GormAccountRepository) ResetPassword(ctx context.Context, id, passwordDigest string) error {
	return r.updates(ctx, "accounts.reset_password", id, map[string]interface{}{
		"password_digest": passwordDigest,
		"reset_digest":    nil,
		"reset_sent_at":   nil,
	})
}

// updates writes columns of one account. Zero affected rows means the
// account does not exist: updated_at always changes, so a matched row is
// always reported as affected.
func (r *GormAccountRepository) updates(ctx context.Context, op, id string, columns map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&domain.AccountModel{}).
		Where("id = ?", id).
		Updates(columns)
	if result.Error != nil {
		return storageErr(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the account's posts, its edges in both directions and
// the account itself in one transaction.
func (r *GormAccountRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("author_id = ?", id).Delete(&domain.PostModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("follower_id = ? OR followed_id = ?", id, id).
			Delete(&domain.RelationshipModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.AccountModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return storageErr("accounts.delete", err)
	}
	return err
}

var _ AccountRepository = (*GormAccountRepository)(nil)
