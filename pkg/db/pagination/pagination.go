package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// Normalize clamps the page size and decodes the page token into the last
// seen id.
func (p Pagination) Normalize() (afterID int64, size int, err error) {
	size = p.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if p.PageToken == "" {
		return 0, size, nil
	}
	cursor, err := DecodeCursor(p.PageToken)
	if err != nil {
		return 0, 0, ErrInvalidPageToken
	}
	afterID, err = strconv.ParseInt(cursor.ID, 10, 64)
	if err != nil || afterID <= 0 {
		return 0, 0, ErrInvalidPageToken
	}
	return afterID, size, nil
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPageInfo expects data fetched with limit+1 rows and trims it in
// place through the returned slice.
func BuildCursorPageInfo[T any](data []T, limit int, extractID func(T) int64) ([]T, PageInfo) {
	if len(data) <= limit {
		return data, PageInfo{HasMore: false}
	}

	data = data[:limit]
	token, err := EncodeCursor(Cursor{ID: strconv.FormatInt(extractID(data[len(data)-1]), 10)})
	if err != nil {
		return data, PageInfo{HasMore: false}
	}

	return data, PageInfo{
		HasMore:       true,
		NextPageToken: token,
	}
}
