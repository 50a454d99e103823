package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// CursorPage is one slice of a keyset-paginated listing. NextCursor is empty
// on the last page.
type CursorPage[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

type OffsetPage[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// ClampPageSize maps missing or out of range sizes to DefaultPageSize.
func ClampPageSize(size int) int {
	if size < 1 || size > MaxPageSize {
		return DefaultPageSize
	}
	return size
}

func newOffsetPage[T any](items []T, total int64, page, pageSize int) *OffsetPage[T] {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &OffsetPage[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// newCursorPage trims the extra row fetched past limit and derives the
// cursor from the last row kept.
func newCursorPage[T any](rows []T, limit int, cursorOf func(T) string) *CursorPage[T] {
	page := &CursorPage[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
	}
	if page.HasMore && len(page.Items) > 0 {
		page.NextCursor = cursorOf(page.Items[len(page.Items)-1])
	}
	return page
}

// OrderCursor marks the last order of a history page. History runs newest
// placement first, ties broken by id.
type OrderCursor struct {
	OrderedDate time.Time `json:"ordered_date"`
	ID          int64     `json:"id"`
}

func (c OrderCursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// ParseOrderCursor decodes a cursor produced by Encode. An empty string is
// the first page and reports ok=false.
func ParseOrderCursor(encoded string) (cursor OrderCursor, ok bool, err error) {
	if encoded == "" {
		return OrderCursor{}, false, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return OrderCursor{}, false, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(data, &cursor); err != nil {
		return OrderCursor{}, false, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if cursor.ID <= 0 || cursor.OrderedDate.IsZero() {
		return OrderCursor{}, false, ErrInvalidCursor
	}
	return cursor, true, nil
}
