package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps pageSize.
	DefaultMaxPageSize = 100
)

// Cursor is the decoded page token. After names the last item of the previous page.
type Cursor struct {
	After string `json:"after,omitempty"`
}

// Params bundles the paging values extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest parses pageSize and pageToken from the request query.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}
	pageSize, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	token := strings.TrimSpace(values.Get("pageToken"))
	cursor, err := DecodeToken(token)
	if err != nil {
		return Params{}, err
	}
	return Params{PageSize: pageSize, PageToken: token, Cursor: cursor}, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	def := opts.DefaultPageSize
	if def <= 0 {
		def = DefaultPageSize
	}
	max := opts.MaxPageSize
	if max <= 0 {
		max = DefaultMaxPageSize
	}
	if def > max {
		def = max
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
	}
	if size > max {
		return max, nil
	}
	return size, nil
}

// Page slices the ordered items after the cursor and returns the token for
// the next page, empty when the listing is exhausted. A cursor naming an
// item that no longer exists is rejected.
func Page(items []string, params Params) ([]string, string, error) {
	start := 0
	if after := params.Cursor.After; after != "" {
		start = -1
		for i, item := range items {
			if item == after {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, "", fmt.Errorf("%w: unknown cursor", ErrInvalidPageToken)
		}
	}
	size := params.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	end := start + size
	if end >= len(items) {
		return items[start:], "", nil
	}
	page := items[start:end]
	next, err := EncodeToken(Cursor{After: page[len(page)-1]})
	if err != nil {
		return nil, "", err
	}
	return page, next, nil
}
