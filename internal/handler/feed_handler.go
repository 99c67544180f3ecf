package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/middleware"
	"github.com/weiawesome/wes-io-feed/pkg/response"
)

type createPostBody struct {
	Content string `json:"content" form:"content"`
}

// CreatePost handles POST /api/v1/posts. It accepts JSON, or multipart
// form data with a "content" field and an optional "picture" file.
func (h *Handler) CreatePost(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)
	authorID := middleware.GetAccountID(c)

	var body createPostBody
	if err := c.ShouldBind(&body); err != nil {
		l.Warn().Err(err).Msg("invalid create post request")
		response.BadRequest(c, err.Error())
		return
	}
	req := &domain.CreatePostRequest{Content: body.Content}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("picture")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			response.BadRequest(c, err.Error())
			return
		default:
			f, err := fh.Open()
			if err != nil {
				response.BadRequest(c, "unreadable picture")
				return
			}
			defer f.Close()

			pic, err := sniffPicture(f, fh.Size)
			if err != nil {
				response.BadRequest(c, "unreadable picture")
				return
			}
			req.Picture = pic
		}
	}

	post, err := h.feed.CreatePost(ctx, authorID, req)
	if err != nil {
		fail(c, err, "create post")
		return
	}
	response.Created(c, post)
}

// sniffPicture detects the content type from the leading bytes rather
// than trusting the client supplied header.
func sniffPicture(r io.Reader, size int64) (*domain.PictureUpload, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]

	return &domain.PictureUpload{
		Body:        io.MultiReader(bytes.NewReader(head), r),
		Size:        size,
		ContentType: http.DetectContentType(head),
	}, nil
}

// DeletePost handles DELETE /api/v1/posts/:post_id.
func (h *Handler) DeletePost(c *gin.Context) {
	authorID := middleware.GetAccountID(c)

	if err := h.feed.DeletePost(c.Request.Context(), authorID, c.Param("post_id")); err != nil {
		fail(c, err, "delete post")
		return
	}
	response.NoContent(c)
}

// ListPosts handles GET /api/v1/accounts/:account_id/posts.
func (h *Handler) ListPosts(c *gin.Context) {
	cursor, limit, ok := pageParams(c)
	if !ok {
		return
	}

	page, err := h.feed.ListPosts(c.Request.Context(), c.Param("account_id"), cursor, limit)
	if err != nil {
		fail(c, err, "list posts")
		return
	}
	response.Success(c, page)
}

// Feed handles GET /api/v1/feed for the authenticated account.
func (h *Handler) Feed(c *gin.Context) {
	cursor, limit, ok := pageParams(c)
	if !ok {
		return
	}

	page, err := h.feed.FeedPage(c.Request.Context(), middleware.GetAccountID(c), cursor, limit)
	if err != nil {
		fail(c, err, "load feed")
		return
	}
	response.Success(c, page)
}
