package domain

import (
	"encoding/base64"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	PostMaxLength      = 140
	PictureMaxBytes    = 5 << 20
	DefaultFeedPageLen = 30
	MaxFeedPageLen     = 100
)

// PictureContentTypes maps accepted picture MIME types to file extensions.
var PictureContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Post is a short message authored by an account.
type Post struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	PictureKey string    `json:"-"`
	PictureURL string    `json:"picture_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PictureUpload is an image attached to a new post.
type PictureUpload struct {
	Body        io.Reader
	Size        int64
	ContentType string
}

type CreatePostRequest struct {
	Content string
	Picture *PictureUpload
}

// Validate checks content and picture constraints.
func (r *CreatePostRequest) Validate() error {
	fields := map[string]string{}
	content := strings.TrimSpace(r.Content)
	switch {
	case content == "":
		fields["content"] = "can't be blank"
	case utf8.RuneCountInString(content) > PostMaxLength:
		fields["content"] = "is too long (maximum is 140 characters)"
	}
	if p := r.Picture; p != nil {
		if _, ok := PictureContentTypes[p.ContentType]; !ok {
			fields["picture"] = "must be a jpeg, png or gif image"
		} else if p.Size > PictureMaxBytes {
			fields["picture"] = "should be less than 5MB"
		}
	}
	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

// FeedCursor is the keyset position after the last returned post.
type FeedCursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode renders the cursor as an opaque URL-safe string.
func (c FeedCursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseFeedCursor decodes s. An empty s means "from the newest post".
func ParseFeedCursor(s string) (*FeedCursor, error) {
	if s == "" {
		return nil, nil
	}
	invalid := NewValidationError(map[string]string{"cursor": "is invalid"})

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, invalid
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, invalid
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, invalid
	}
	return &FeedCursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// FeedPage is one page of posts, newest first.
type FeedPage struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ClampPageLen maps a requested page length into [1, MaxFeedPageLen].
func ClampPageLen(n int) int {
	switch {
	case n <= 0:
		return DefaultFeedPageLen
	case n > MaxFeedPageLen:
		return MaxFeedPageLen
	}
	return n
}
