package client

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/internal/http"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// Query parameters understood by listing endpoints.
const (
	paramPageSize     = "_pageSize"
	paramOffset       = "_pagedResultsOffset"
	paramCookie       = "_pagedResultsCookie"
	paramQueryFilter  = "_queryFilter"
	paramFields       = "_fields"
	paramSortKeys     = "_sortKeys"
	paramUploadAction = "_action"
	paramCreateAction = "action"
	actionUpload      = "upload"
	actionCreate      = "create"
)

// PageFetcher performs a single GET. *http.Client satisfies it.
type PageFetcher interface {
	Get(ctx context.Context, path string, query url.Values) (*http.Response, error)
}

// Paginator walks paged listings.
type Paginator struct {
	fetcher  PageFetcher
	pageSize int
	maxPages int
}

// NewPaginator creates a paginator. Zero sizes fall back to the defaults.
func NewPaginator(fetcher PageFetcher, pageSize, maxPages int) *Paginator {
	if pageSize <= 0 {
		pageSize = constants.StandardPageSize
	}

	if maxPages <= 0 {
		maxPages = constants.MaxPages
	}

	return &Paginator{
		fetcher:  fetcher,
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

// page is one response of a listing endpoint.
type page[T any] struct {
	Result             []T    `json:"result"`
	ResultCount        int    `json:"resultCount"`
	TotalCount         *int   `json:"totalCount"`
	PagedResultsCookie string `json:"pagedResultsCookie"`
}

// FetchAll lazily yields every item of the listing at path, in server order.
// Each call starts again from the first page. The sequence stops after the
// first error.
func FetchAll[T any](ctx context.Context, paginator *Paginator, path string, params url.Values) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		offset := 0
		cookie := ""

		for pageNumber := 1; ; pageNumber++ {
			if pageNumber > paginator.maxPages {
				yield(zero, &gia.ProtocolError{
					Path:   path,
					Reason: fmt.Sprintf("listing exceeded %d pages", paginator.maxPages),
				})

				return
			}

			query := paginator.pageQuery(params, offset, cookie)

			resp, err := paginator.fetcher.Get(ctx, path, query)
			if err != nil {
				yield(zero, fmt.Errorf("fetching page %d of %s: %w", pageNumber, path, err))

				return
			}

			var current page[T]

			err = http.DecodeJSON(resp, path, &current)
			if err != nil {
				yield(zero, err)

				return
			}

			for _, item := range current.Result {
				if !yield(item, nil) {
					return
				}
			}

			next, more, err := continuation(path, current, offset, cookie)
			if err != nil {
				yield(zero, err)

				return
			}

			if !more {
				return
			}

			offset, cookie = next.offset, next.cookie
		}
	}
}

// CollectAll drains seq into a slice.
func CollectAll[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var items []T

	for item, err := range seq {
		if err != nil {
			return items, err
		}

		items = append(items, item)
	}

	return items, nil
}

type cursor struct {
	offset int
	cookie string
}

// continuation decides where the next page starts. A cookie wins over
// offset arithmetic; the offset advances by the items actually received.
func continuation[T any](path string, current page[T], offset int, cookie string) (cursor, bool, error) {
	received := len(current.Result)

	if current.PagedResultsCookie != "" {
		if received == 0 || current.PagedResultsCookie == cookie {
			return cursor{}, false, &gia.ProtocolError{Path: path, Reason: "paged results cookie did not advance"}
		}

		return cursor{cookie: current.PagedResultsCookie}, true, nil
	}

	if current.TotalCount != nil && offset+received < *current.TotalCount {
		if received == 0 {
			return cursor{}, false, &gia.ProtocolError{
				Path:   path,
				Reason: fmt.Sprintf("empty page at offset %d of %d", offset, *current.TotalCount),
			}
		}

		return cursor{offset: offset + received}, true, nil
	}

	return cursor{}, false, nil
}

func (p *Paginator) pageQuery(params url.Values, offset int, cookie string) url.Values {
	query := url.Values{}
	for key, values := range params {
		query[key] = append([]string(nil), values...)
	}

	if query.Get(paramPageSize) == "" {
		query.Set(paramPageSize, strconv.Itoa(p.pageSize))
	}

	if cookie != "" {
		query.Set(paramCookie, cookie)
		query.Del(paramOffset)
	} else {
		query.Set(paramOffset, strconv.Itoa(offset))
	}

	return query
}

// listQuery converts list options into query parameters.
func listQuery(opts *gia.ListOptions) url.Values {
	query := url.Values{}
	if opts == nil {
		return query
	}

	if opts.QueryFilter != "" {
		query.Set(paramQueryFilter, opts.QueryFilter)
	}

	if len(opts.Fields) > 0 {
		query.Set(paramFields, strings.Join(opts.Fields, ","))
	}

	if len(opts.SortKeys) > 0 {
		query.Set(paramSortKeys, strings.Join(opts.SortKeys, ","))
	}

	if opts.PageSize > 0 {
		query.Set(paramPageSize, strconv.Itoa(opts.PageSize))
	}

	return query
}
