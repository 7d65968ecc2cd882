package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
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

type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor parses a page token. An empty token is the first page.
func DecodeCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return &Cursor{}, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	return &cursor, nil
}

// BuildCursorPageInfo expects data fetched with limit+1 rows and trims the probe row.
func BuildCursorPageInfo[T any](data []T, limit int, extractID func(T) string) ([]T, PageInfo, error) {
	if len(data) <= limit {
		return data, PageInfo{}, nil
	}

	data = data[:limit]
	token, err := EncodeCursor(Cursor{ID: extractID(data[len(data)-1])})
	if err != nil {
		return nil, PageInfo{}, err
	}
	return data, PageInfo{NextPageToken: token, HasMore: true}, nil
}
