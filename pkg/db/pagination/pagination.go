package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size" validate:"omitempty,gte=1,lte=200"`
}

// Limit clamps the requested page size into [1, MaxPageSize].
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor points just past the last row of the previous page in
// (created_at, id) ascending order.
type Cursor struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
}

func (c Cursor) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, c.CreatedAt)
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(id int64, createdAt time.Time) (string, error) {
	b, err := json.Marshal(Cursor{ID: id, CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor returns nil for an empty token.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	if _, err := cursor.Time(); err != nil || cursor.ID == 0 {
		return nil, ErrInvalidPageToken
	}
	return &cursor, nil
}

// Trim cuts a result fetched with limit+1 rows down to limit and builds the
// page info from the last kept row.
func Trim[T any](rows []T, limit int, key func(T) (int64, time.Time)) ([]T, PageInfo, error) {
	if len(rows) <= limit {
		return rows, PageInfo{}, nil
	}
	rows = rows[:limit]
	id, createdAt := key(rows[len(rows)-1])
	token, err := EncodeCursor(id, createdAt)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return rows, PageInfo{NextPageToken: token, HasMore: true}, nil
}
