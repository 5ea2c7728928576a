package devserver

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/zfogg/feedline/pkg/pagination"
)

var errBadCursor = errors.New("malformed cursor")

const cursorPrefix = "off:"

func encodeCursor(offset int) pagination.Cursor {
	return pagination.Cursor(base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset))))
}

func decodeCursor(c string) (int, error) {
	if c == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil || !strings.HasPrefix(string(raw), cursorPrefix) {
		return 0, errBadCursor
	}
	off, err := strconv.Atoi(strings.TrimPrefix(string(raw), cursorPrefix))
	if err != nil || off < 0 {
		return 0, errBadCursor
	}
	return off, nil
}

// paginate slices items at cursor. The last page carries no cursor.
func paginate[T any](items []T, cursor string, limit int) (*pagination.Page[T], error) {
	off, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = pagination.NormalizeLimit(limit)
	total := len(items)
	if off > total {
		off = total
	}
	end := min(off+limit, total)

	page := &pagination.Page[T]{
		Items:      append([]T{}, items[off:end]...),
		Pagination: &pagination.Info{Total: &total},
	}
	if end < total {
		page.Pagination.HasNextPage = true
		page.Pagination.NextCursor = pagination.CursorPtr(encodeCursor(end))
	}
	return page, nil
}
