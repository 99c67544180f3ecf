package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/pkg/database"
)

// GormPostRepository implements PostRepository using GORM.
type GormPostRepository struct {
	db *gorm.DB
}

func NewGormPostRepository(db *gorm.DB) *GormPostRepository {
	return &GormPostRepository{db: db}
}

func (r *GormPostRepository) Create(ctx context.Context, post *domain.Post) error {
	model := domain.PostToModel(post)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if database.IsForeignKeyViolation(err) {
			return domain.ErrNotFound
		}
		return storageErr("posts.create", err)
	}
	post.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormPostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	var model domain.PostModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("posts.get_by_id", err)
	}
	p := model.ToDomain()
	return &p, nil
}

func (r *GormPostRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.PostModel{})
	if result.Error != nil {
		return storageErr("posts.delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormPostRepository) ListByAuthor(ctx context.Context, authorID string, cursor *domain.FeedCursor, limit int) ([]domain.Post, error) {
	q := r.db.WithContext(ctx).Model(&domain.PostModel{}).
		Where("author_id = ?", authorID)
	return r.page(q, "posts.list_by_author", cursor, limit)
}

// Feed selects the account's own posts and those of every account it
// follows with one statement. The followed set stays a subquery so the
// statement size does not grow with the number of followed accounts.
func (r *GormPostRepository) Feed(ctx context.Context, accountID string, cursor *domain.FeedCursor, limit int) ([]domain.Post, error) {
	followed := r.db.Model(&domain.RelationshipModel{}).
		Select("followed_id").
		Where("follower_id = ?", accountID)

	q := r.db.WithContext(ctx).Model(&domain.PostModel{}).
		Where("(author_id = ? OR author_id IN (?))", accountID, followed)
	return r.page(q, "posts.feed", cursor, limit)
}

// page applies keyset pagination on (created_at, id), both descending.
func (r *GormPostRepository) page(q *gorm.DB, op string, cursor *domain.FeedCursor, limit int) ([]domain.Post, error) {
	if cursor != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var models []domain.PostModel
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, storageErr(op, err)
	}

	posts := make([]domain.Post, len(models))
	for i := range models {
		posts[i] = models[i].ToDomain()
	}
	return posts, nil
}

var _ PostRepository = (*GormPostRepository)(nil)
