package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	internalhttp "github.com/fivetwenty-io/gia-client/internal/http"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

type pageRecorder struct {
	mu      sync.Mutex
	queries []map[string]string
}

func (r *pageRecorder) record(request *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := map[string]string{}
	for key := range request.URL.Query() {
		query[key] = request.URL.Query().Get(key)
	}

	r.queries = append(r.queries, query)
}

func (r *pageRecorder) offsets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	offsets := make([]string, 0, len(r.queries))
	for _, query := range r.queries {
		offsets = append(offsets, query["_pagedResultsOffset"])
	}

	return offsets
}

func (r *pageRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.queries)
}

func pagedServer(t *testing.T, handler func(recorder *pageRecorder, request *http.Request) interface{}) (*Paginator, *pageRecorder) {
	t.Helper()

	recorder := &pageRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		recorder.record(request)
		writeFake(writer, http.StatusOK, handler(recorder, request))
	}))
	t.Cleanup(server.Close)

	httpClient := internalhttp.NewClient(server.URL, nil,
		internalhttp.WithRetryConfig(1, time.Millisecond, time.Millisecond))

	return NewPaginator(httpClient, 3, 0), recorder
}

func numbered(from, to int) []int {
	items := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		items = append(items, i)
	}

	return items
}

func TestFetchAll(t *testing.T) { //nolint:funlen
	t.Parallel()

	t.Run("offset advances by items received", func(t *testing.T) {
		t.Parallel()

		// The server ignores the page size hint and returns two items.
		paginator, recorder := pagedServer(t, func(_ *pageRecorder, request *http.Request) interface{} {
			offset, _ := strconv.Atoi(request.URL.Query().Get("_pagedResultsOffset"))
			end := min(offset+2, 7)

			return map[string]interface{}{"result": numbered(offset, end), "resultCount": end - offset, "totalCount": 7}
		})

		items, err := CollectAll(FetchAll[int](context.Background(), paginator, "/things", nil))
		require.NoError(t, err)

		assert.Equal(t, numbered(0, 7), items)
		assert.Equal(t, []string{"0", "2", "4", "6"}, recorder.offsets())
		assert.Equal(t, "3", recorder.queries[0]["_pageSize"])
	})

	t.Run("cookie wins over offsets", func(t *testing.T) {
		t.Parallel()

		pages := map[string]interface{}{
			"":   map[string]interface{}{"result": []int{1, 2}, "pagedResultsCookie": "c1", "totalCount": 2},
			"c1": map[string]interface{}{"result": []int{3}, "pagedResultsCookie": "c2"},
			"c2": map[string]interface{}{"result": []int{4}},
		}

		paginator, recorder := pagedServer(t, func(_ *pageRecorder, request *http.Request) interface{} {
			return pages[request.URL.Query().Get("_pagedResultsCookie")]
		})

		items, err := CollectAll(FetchAll[int](context.Background(), paginator, "/things", nil))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4}, items)
		assert.Equal(t, 3, recorder.count())
	})

	t.Run("no total count ends after one page", func(t *testing.T) {
		t.Parallel()

		paginator, recorder := pagedServer(t, func(_ *pageRecorder, _ *http.Request) interface{} {
			return map[string]interface{}{"result": []int{1, 2, 3}}
		})

		items, err := CollectAll(FetchAll[int](context.Background(), paginator, "/things", nil))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, items)
		assert.Equal(t, 1, recorder.count())
	})

	t.Run("empty page with continuation", func(t *testing.T) {
		t.Parallel()

		paginator, _ := pagedServer(t, func(_ *pageRecorder, request *http.Request) interface{} {
			if request.URL.Query().Get("_pagedResultsOffset") == "0" {
				return map[string]interface{}{"result": []int{1, 2}, "totalCount": 5}
			}

			return map[string]interface{}{"result": []int{}, "totalCount": 5}
		})

		items, err := CollectAll(FetchAll[int](context.Background(), paginator, "/things", nil))
		require.Error(t, err)
		assert.Equal(t, []int{1, 2}, items)

		protocolErr := &gia.ProtocolError{}
		require.ErrorAs(t, err, &protocolErr)
		assert.Equal(t, "/things", protocolErr.Path)
	})

	t.Run("repeated cookie", func(t *testing.T) {
		t.Parallel()

		paginator, recorder := pagedServer(t, func(_ *pageRecorder, _ *http.Request) interface{} {
			return map[string]interface{}{"result": []int{1}, "pagedResultsCookie": "same"}
		})

		_, err := CollectAll(FetchAll[int](context.Background(), paginator, "/things", nil))
		require.ErrorAs(t, err, new(*gia.ProtocolError))
		assert.Equal(t, 2, recorder.count())
	})

	t.Run("page cap", func(t *testing.T) {
		t.Parallel()

		paginator, recorder := pagedServer(t, func(recorder *pageRecorder, _ *http.Request) interface{} {
			return map[string]interface{}{"result": []int{1}, "pagedResultsCookie": "c" + strconv.Itoa(recorder.count())}
		})
		paginator.maxPages = 4

		items, err := CollectAll(FetchAll[int](context.Background(), paginator, "/things", nil))
		require.ErrorAs(t, err, new(*gia.ProtocolError))
		assert.Len(t, items, 4)
		assert.Equal(t, 4, recorder.count())
	})

	t.Run("stops when the consumer stops", func(t *testing.T) {
		t.Parallel()

		paginator, recorder := pagedServer(t, func(_ *pageRecorder, request *http.Request) interface{} {
			offset, _ := strconv.Atoi(request.URL.Query().Get("_pagedResultsOffset"))

			return map[string]interface{}{"result": numbered(offset, offset+3), "totalCount": 300}
		})

		seen := 0
		for _, err := range FetchAll[int](context.Background(), paginator, "/things", nil) {
			require.NoError(t, err)

			seen++
			if seen == 4 {
				break
			}
		}

		assert.Equal(t, 2, recorder.count())
	})

	t.Run("each call restarts", func(t *testing.T) {
		t.Parallel()

		paginator, recorder := pagedServer(t, func(_ *pageRecorder, request *http.Request) interface{} {
			offset, _ := strconv.Atoi(request.URL.Query().Get("_pagedResultsOffset"))
			end := min(offset+3, 4)

			return map[string]interface{}{"result": numbered(offset, end), "totalCount": 4}
		})

		seq := FetchAll[int](context.Background(), paginator, "/things", nil)

		first, err := CollectAll(seq)
		require.NoError(t, err)

		second, err := CollectAll(seq)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, []string{"0", "3", "0", "3"}, recorder.offsets())
	})
}

func TestFetchAll_PropagatesRemoteErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(writer).Encode(map[string]string{"message": "no such application"})
	}))
	defer server.Close()

	paginator := NewPaginator(internalhttp.NewClient(server.URL, nil), 0, 0)
	assert.Equal(t, constants.StandardPageSize, paginator.pageSize)
	assert.Equal(t, constants.MaxPages, paginator.maxPages)

	_, err := CollectAll(FetchAll[int](context.Background(), paginator, "/things", nil))
	require.Error(t, err)
	assert.True(t, gia.IsNotFound(err))
	assert.Contains(t, err.Error(), "fetching page 1 of /things")
}

func TestListQuery(t *testing.T) {
	t.Parallel()

	query := listQuery(&gia.ListOptions{
		QueryFilter: NameFilter(`Say "hi" \o/`),
		Fields:      []string{"id", "name"},
		SortKeys:    []string{"name"},
		PageSize:    10,
	})

	assert.Equal(t, `name eq "Say \"hi\" \\o/"`, query.Get("_queryFilter"))
	assert.Equal(t, "id,name", query.Get("_fields"))
	assert.Equal(t, "name", query.Get("_sortKeys"))
	assert.Equal(t, "10", query.Get("_pageSize"))
	assert.Empty(t, listQuery(nil))
}
