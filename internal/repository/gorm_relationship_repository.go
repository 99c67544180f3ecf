package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/pkg/database"
)

// GormRelationshipRepository implements RelationshipRepository using GORM.
type GormRelationshipRepository struct {
	db *gorm.DB
}

func NewGormRelationshipRepository(db *gorm.DB) *GormRelationshipRepository {
	return &GormRelationshipRepository{db: db}
}

// Follow relies on the unique (follower_id, followed_id) index: a
// concurrent duplicate insert is dropped by ON CONFLICT DO NOTHING and
// reported as created=false. An edge to or from a missing account is
// rejected by the foreign keys and reported as ErrNotFound.
func (r *GormRelationshipRepository) Follow(ctx context.Context, followerID, followedID string) (bool, error) {
	model := domain.RelationshipModel{
		FollowerID: followerID,
		FollowedID: followedID,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followed_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		if database.IsForeignKeyViolation(result.Error) {
			return false, domain.ErrNotFound
		}
		return false, storageErr("relationships.follow", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormRelationshipRepository) Unfollow(ctx context.Context, followerID, followedID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&domain.RelationshipModel{})
	if result.Error != nil {
		return false, storageErr("relationships.unfollow", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormRelationshipRepository) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RelationshipModel{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, storageErr("relationships.is_following", err)
	}
	return count > 0, nil
}

// BatchIsFollowing answers IsFollowing for every target in one query.
func (r *GormRelationshipRepository) BatchIsFollowing(ctx context.Context, followerID string, targetIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		result[id] = false
	}
	if len(targetIDs) == 0 {
		return result, nil
	}

	var followed []string
	err := r.db.WithContext(ctx).Model(&domain.RelationshipModel{}).
		Where("follower_id = ? AND followed_id IN ?", followerID, targetIDs).
		Pluck("followed_id", &followed).Error
	if err != nil {
		return nil, storageErr("relationships.batch_is_following", err)
	}

	for _, id := range followed {
		result[id] = true
	}
	return result, nil
}

// FollowingIDs returns the accounts accountID follows, most recent edge first.
func (r *GormRelationshipRepository) FollowingIDs(ctx context.Context, accountID string) ([]string, error) {
	return r.pluck(ctx, "relationships.following_ids", "followed_id", "follower_id", accountID)
}

// FollowerIDs returns the accounts following accountID, most recent edge first.
func (r *GormRelationshipRepository) FollowerIDs(ctx context.Context, accountID string) ([]string, error) {
	return r.pluck(ctx, "relationships.follower_ids", "follower_id", "followed_id", accountID)
}

func (r *GormRelationshipRepository) pluck(ctx context.Context, op, column, filter, accountID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&domain.RelationshipModel{}).
		Where(filter+" = ?", accountID).
		Order("created_at DESC").Order("id DESC").
		Pluck(column, &ids).Error
	if err != nil {
		return nil, storageErr(op, err)
	}
	return ids, nil
}

// Count returns the number of followers or followed accounts of accountID.
func (r *GormRelationshipRepository) Count(ctx context.Context, accountID string, kind domain.CountKind) (int64, error) {
	var column string
	switch kind {
	case domain.CountFollowers:
		column = "followed_id"
	case domain.CountFollowing:
		column = "follower_id"
	default:
		return 0, fmt.Errorf("unknown count kind %q", kind)
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RelationshipModel{}).
		Where(column+" = ?", accountID).
		Count(&count).Error
	if err != nil {
		return 0, storageErr("relationships.count_"+string(kind), err)
	}
	return count, nil
}

var _ RelationshipRepository = (*GormRelationshipRepository)(nil)
