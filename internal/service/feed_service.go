package service

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/weiawesome/wes-io-feed/internal/audit"
	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/repository"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/storage"
)

const pictureURLExpiry = time.Hour

// PicturePrefix is the storage prefix holding every picture of an author.
func PicturePrefix(authorID string) string {
	return "posts/" + authorID + "/"
}

// PictureKey is the storage key of a post picture.
func PictureKey(authorID, postID, ext string) string {
	return PicturePrefix(authorID) + postID + ext
}

type feedService struct {
	posts    repository.PostRepository
	pictures storage.Storage
	pageSize int
	now      func() time.Time
}

// NewFeedService creates a new feed service. pictures may be nil, in which
// case posts with pictures are rejected.
func NewFeedService(posts repository.PostRepository, pictures storage.Storage, pageSize int) FeedService {
	return &feedService{
		posts:    posts,
		pictures: pictures,
		pageSize: domain.ClampPageLen(pageSize),
		now:      time.Now,
	}
}

func (s *feedService) CreatePost(ctx context.Context, authorID string, req *domain.CreatePostRequest) (*domain.Post, error) {
	l := pkglog.Ctx(ctx)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Microsecond precision survives every supported database, so the
	// keyset cursor matches the stored value exactly.
	createdAt := s.now().UTC().Truncate(time.Microsecond)
	post := &domain.Post{
		ID:        ulid.MustNew(ulid.Timestamp(createdAt), ulid.DefaultEntropy()).String(),
		AuthorID:  authorID,
		Content:   strings.TrimSpace(req.Content),
		CreatedAt: createdAt,
	}

	if pic := req.Picture; pic != nil {
		if s.pictures == nil {
			return nil, domain.NewValidationError(map[string]string{"picture": "uploads are disabled"})
		}
		post.PictureKey = PictureKey(authorID, post.ID, domain.PictureContentTypes[pic.ContentType])
		if err := s.pictures.Write(ctx, post.PictureKey, pic.Body, pic.Size, pic.ContentType); err != nil {
			l.Error().Err(err).Str(pkglog.FieldPostID, post.ID).Msg("failed to store picture")
			return nil, domain.NewStorageError("pictures.write", err)
		}
	}

	if err := s.posts.Create(ctx, post); err != nil {
		l.Error().Err(err).Str(pkglog.FieldAccountID, authorID).Msg("failed to create post")
		if post.PictureKey != "" {
			if derr := s.pictures.Delete(context.WithoutCancel(ctx), post.PictureKey); derr != nil {
				l.Warn().Err(derr).Str(pkglog.FieldPostID, post.ID).Msg("failed to remove orphaned picture")
			}
		}
		return nil, err
	}

	s.decorate(ctx, post)
	audit.LogTarget(ctx, audit.ActionCreatePost, authorID, post.ID, "post created")
	return post, nil
}

// DeletePost removes a post of authorID. Posts of other authors report
// ErrForbidden.
func (s *feedService) DeletePost(ctx context.Context, authorID, postID string) error {
	l := pkglog.Ctx(ctx)

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != authorID {
		return domain.ErrForbidden
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			l.Error().Err(err).Str(pkglog.FieldPostID, postID).Msg("failed to delete post")
		}
		return err
	}

	if post.PictureKey != "" && s.pictures != nil {
		if err := s.pictures.Delete(ctx, post.PictureKey); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldPostID, postID).Msg("failed to delete picture")
		}
	}

	audit.LogTarget(ctx, audit.ActionDeletePost, authorID, postID, "post deleted")
	return nil
}

func (s *feedService) ListPosts(ctx context.Context, authorID string, cursor *domain.FeedCursor, limit int) (*domain.FeedPage, error) {
	limit = domain.ClampPageLen(limit)
	posts, err := s.posts.ListByAuthor(ctx, authorID, cursor, limit+1)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, posts, limit), nil
}

func (s *feedService) FeedPage(ctx context.Context, accountID string, cursor *domain.FeedCursor, limit int) (*domain.FeedPage, error) {
	limit = domain.ClampPageLen(limit)
	posts, err := s.posts.Feed(ctx, accountID, cursor, limit+1)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, posts, limit), nil
}

// page trims the one extra row fetched to detect a following page.
func (s *feedService) page(ctx context.Context, posts []domain.Post, limit int) *domain.FeedPage {
	page := &domain.FeedPage{Posts: posts}
	if len(posts) > limit {
		page.Posts = posts[:limit]
		page.HasMore = true
	}
	if page.HasMore {
		last := page.Posts[len(page.Posts)-1]
		page.NextCursor = domain.FeedCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	for i := range page.Posts {
		s.decorate(ctx, &page.Posts[i])
	}
	return page
}

// Feed walks the feed page by page. Every range over the returned
// sequence starts again from the newest post and sees live data.
func (s *feedService) Feed(ctx context.Context, accountID string) iter.Seq2[domain.Post, error] {
	return func(yield func(domain.Post, error) bool) {
		var cursor *domain.FeedCursor
		for {
			page, err := s.FeedPage(ctx, accountID, cursor, s.pageSize)
			if err != nil {
				yield(domain.Post{}, err)
				return
			}
			for _, p := range page.Posts {
				if !yield(p, nil) {
					return
				}
			}
			if !page.HasMore {
				return
			}
			last := page.Posts[len(page.Posts)-1]
			cursor = &domain.FeedCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	}
}

func (s *feedService) decorate(ctx context.Context, post *domain.Post) {
	if post.PictureKey == "" || s.pictures == nil {
		return
	}
	url, err := s.pictures.GetURL(ctx, post.PictureKey, pictureURLExpiry)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldPostID, post.ID).Msg("failed to build picture url")
		return
	}
	post.PictureURL = url
}

var _ FeedService = (*feedService)(nil)
