package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

const fakeRoot = constants.APIPrefix + constants.ApplicationsPath

// fakeUpload scripts the status documents returned for one upload.
type fakeUpload struct {
	objectType string
	content    string
	statuses   []map[string]interface{}
	polls      int
	failures   []map[string]interface{}
}

// fakeIGA is an in-memory governance application service.
type fakeIGA struct {
	mu       sync.Mutex
	apps     map[string]map[string]interface{}
	uploads  map[string]*fakeUpload
	script   []map[string]interface{}
	failures []map[string]interface{}
	nextID   int
	pageSize int
	calls    []string
	failOn   map[string]int
	server   *httptest.Server
}

func newFakeIGA(t *testing.T) *fakeIGA {
	t.Helper()

	fake := &fakeIGA{
		apps:     make(map[string]map[string]interface{}),
		uploads:  make(map[string]*fakeUpload),
		pageSize: 2,
		failOn:   make(map[string]int),
	}

	fake.server = httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(fake.server.Close)

	return fake
}

// client returns a client for the fake with fast retries and a private
// in-memory snapshot cache.
func (f *fakeIGA) client(t *testing.T) *Client {
	t.Helper()

	return newTestClient(t, f.server.URL, &gia.CacheConfig{Type: gia.CacheTypeMemory, MaxSize: 10})
}

func newTestClient(t *testing.T, baseURL string, cache *gia.CacheConfig) *Client {
	t.Helper()

	client, err := New(context.Background(), &gia.Config{
		BaseURL:      baseURL,
		RetryMax:     3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		PollInterval: constants.QuickPollInterval,
		Cache:        cache,
	})
	require.NoError(t, err)

	return client
}

// seed stores an application document and returns its id. The document is
// normalised through JSON so it looks like a decoded request body.
func (f *fakeIGA) seed(t *testing.T, source map[string]interface{}) string {
	t.Helper()

	data, err := json.Marshal(source)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.newID("app")
	doc["id"] = id

	if _, ok := doc["objectTypes"]; !ok {
		doc["objectTypes"] = map[string]interface{}{}
	}

	f.apps[id] = doc

	return id
}

// failNext makes the next request matching "METHOD path-suffix" answer status.
func (f *fakeIGA) failNext(methodAndSuffix string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failOn[methodAndSuffix] = status
}

// scriptUploads sets the status sequence and failures of future uploads.
func (f *fakeIGA) scriptUploads(statuses []map[string]interface{}, failures []map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.script = statuses
	f.failures = failures
}

func (f *fakeIGA) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// mutations returns the non-GET calls received.
func (f *fakeIGA) mutations() []string {
	var out []string

	for _, call := range f.callLog() {
		if !strings.HasPrefix(call, http.MethodGet+" ") {
			out = append(out, call)
		}
	}

	return out
}

func (f *fakeIGA) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = nil
}

func (f *fakeIGA) app(id string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.apps[id]
}

func (f *fakeIGA) newID(prefix string) string {
	f.nextID++

	return prefix + "-" + strconv.Itoa(f.nextID)
}

func (f *fakeIGA) serve(writer http.ResponseWriter, request *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.TrimPrefix(request.URL.Path, fakeRoot)
	f.calls = append(f.calls, request.Method+" "+rest)

	for key, status := range f.failOn {
		method, suffix, _ := strings.Cut(key, " ")
		if method == request.Method && strings.HasSuffix(rest, suffix) {
			delete(f.failOn, key)
			writeFake(writer, status, map[string]interface{}{"message": "injected failure"})

			return
		}
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if rest == "" || rest == "/" {
		parts = nil
	}

	switch {
	case len(parts) == 0 && request.Method == http.MethodGet:
		f.listApplications(writer, request)
	case len(parts) == 0 && request.Method == http.MethodPost:
		f.createApplication(writer, request)
	case len(parts) == 1 && request.Method == http.MethodPost:
		f.upload(writer, request, parts[0])
	case len(parts) == 1:
		f.application(writer, request, parts[0])
	case len(parts) >= 2 && parts[1] == "objectType":
		f.objectType(writer, request, parts)
	case len(parts) >= 3 && parts[1] == "upload":
		f.uploadStatus(writer, request, parts)
	case len(parts) == 2 && parts[1] == "files":
		f.files(writer, parts[0])
	default:
		writeFake(writer, http.StatusNotFound, map[string]interface{}{"message": "no route " + rest})
	}
}

func (f *fakeIGA) listApplications(writer http.ResponseWriter, request *http.Request) {
	name := ""

	filter := request.URL.Query().Get("_queryFilter")
	if strings.HasPrefix(filter, `name eq "`) {
		name = strings.TrimSuffix(strings.TrimPrefix(filter, `name eq "`), `"`)
		name = strings.ReplaceAll(name, `\"`, `"`)
		name = strings.ReplaceAll(name, `\\`, `\`)
	}

	ids := make([]string, 0, len(f.apps))
	for id, doc := range f.apps {
		// The server filter is case-insensitive, as some deployments are.
		if name == "" || strings.EqualFold(doc["name"].(string), name) {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	items := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		items = append(items, f.apps[id])
	}

	writePage(writer, request, items, f.pageSize)
}

func writePage(writer http.ResponseWriter, request *http.Request, items []interface{}, pageSize int) {
	offset, _ := strconv.Atoi(request.URL.Query().Get("_pagedResultsOffset"))

	end := min(offset+pageSize, len(items))
	if offset > end {
		offset = end
	}

	writeFake(writer, http.StatusOK, map[string]interface{}{
		"result":      items[offset:end],
		"resultCount": end - offset,
		"totalCount":  len(items),
	})
}

func (f *fakeIGA) createApplication(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Query().Get("action") != "create" {
		writeFake(writer, http.StatusBadRequest, map[string]interface{}{"message": "missing action"})

		return
	}

	var doc map[string]interface{}
	if !readFake(writer, request, &doc) {
		return
	}

	if _, ok := doc["objectTypes"]; !ok {
		doc["objectTypes"] = map[string]interface{}{}
	}

	id := f.newID("app")
	doc["id"] = id
	f.apps[id] = doc

	writeFake(writer, http.StatusCreated, doc)
}

func (f *fakeIGA) application(writer http.ResponseWriter, request *http.Request, id string) {
	doc, ok := f.apps[id]
	if !ok {
		writeFake(writer, http.StatusNotFound, map[string]interface{}{"message": "application not found"})

		return
	}

	switch request.Method {
	case http.MethodGet:
		writeFake(writer, http.StatusOK, doc)
	case http.MethodPut:
		var replacement map[string]interface{}
		if !readFake(writer, request, &replacement) {
			return
		}

		replacement["id"] = id
		f.apps[id] = replacement
		writeFake(writer, http.StatusOK, replacement)
	case http.MethodDelete:
		delete(f.apps, id)
		writer.WriteHeader(http.StatusNoContent)
	default:
		writer.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeIGA) objectType(writer http.ResponseWriter, request *http.Request, parts []string) {
	doc, ok := f.apps[parts[0]]
	if !ok {
		writeFake(writer, http.StatusNotFound, map[string]interface{}{"message": "application not found"})

		return
	}

	objectTypes, _ := doc["objectTypes"].(map[string]interface{})
	if objectTypes == nil {
		objectTypes = map[string]interface{}{}
		doc["objectTypes"] = objectTypes
	}

	if len(parts) == 2 && request.Method == http.MethodPost {
		var objectType map[string]interface{}
		if !readFake(writer, request, &objectType) {
			return
		}

		id, _ := objectType["id"].(string)
		if _, exists := objectTypes[id]; exists {
			writeFake(writer, http.StatusConflict, map[string]interface{}{"message": "object type exists"})

			return
		}

		objectTypes[id] = objectType
		writeFake(writer, http.StatusCreated, objectType)

		return
	}

	if len(parts) != 3 {
		writer.WriteHeader(http.StatusNotFound)

		return
	}

	current, exists := objectTypes[parts[2]]
	if !exists {
		writeFake(writer, http.StatusNotFound, map[string]interface{}{"message": "object type not found"})

		return
	}

	switch request.Method {
	case http.MethodGet:
		writeFake(writer, http.StatusOK, current)
	case http.MethodPut:
		var objectType map[string]interface{}
		if !readFake(writer, request, &objectType) {
			return
		}

		objectTypes[parts[2]] = objectType
		writeFake(writer, http.StatusOK, objectType)
	case http.MethodDelete:
		delete(objectTypes, parts[2])
		writer.WriteHeader(http.StatusNoContent)
	default:
		writer.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeIGA) upload(writer http.ResponseWriter, request *http.Request, appID string) {
	if request.URL.Query().Get("_action") != "upload" {
		writeFake(writer, http.StatusBadRequest, map[string]interface{}{"message": "unsupported action"})

		return
	}

	if _, ok := f.apps[appID]; !ok {
		writeFake(writer, http.StatusNotFound, map[string]interface{}{"message": "application not found"})

		return
	}

	file, _, err := request.FormFile("file")
	if err != nil {
		writeFake(writer, http.StatusBadRequest, map[string]interface{}{"message": err.Error()})

		return
	}

	defer func() { _ = file.Close() }()

	content, _ := io.ReadAll(file)

	id := f.newID("upload")
	f.uploads[id] = &fakeUpload{
		objectType: request.FormValue("objectType"),
		content:    string(content),
		statuses:   f.script,
		failures:   f.failures,
	}

	writeFake(writer, http.StatusOK, map[string]interface{}{"extractionId": id})
}

func (f *fakeIGA) uploadStatus(writer http.ResponseWriter, request *http.Request, parts []string) {
	upload, ok := f.uploads[strings.TrimPrefix(parts[2], ":")]
	if !ok {
		writeFake(writer, http.StatusNotFound, map[string]interface{}{"message": "upload not found"})

		return
	}

	if len(parts) == 4 && parts[3] == "failures" {
		items := make([]interface{}, 0, len(upload.failures))
		for _, failure := range upload.failures {
			items = append(items, failure)
		}

		writePage(writer, request, items, f.pageSize)

		return
	}

	status := map[string]interface{}{"status": "pending"}
	if len(upload.statuses) > 0 {
		status = upload.statuses[min(upload.polls, len(upload.statuses)-1)]
	}

	upload.polls++

	writeFake(writer, http.StatusOK, status)
}

func (f *fakeIGA) files(writer http.ResponseWriter, appID string) {
	ids := make([]string, 0, len(f.uploads))
	for id := range f.uploads {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	result := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		result = append(result, map[string]interface{}{
			"id":         id,
			"fileName":   "data.csv",
			"objectType": f.uploads[id].objectType,
			"status":     "COMPLETE",
		})
	}

	writeFake(writer, http.StatusOK, map[string]interface{}{"result": result, "appId": appID})
}

func readFake(writer http.ResponseWriter, request *http.Request, out interface{}) bool {
	err := json.NewDecoder(request.Body).Decode(out)
	if err != nil {
		writeFake(writer, http.StatusBadRequest, map[string]interface{}{"message": fmt.Sprintf("bad body: %v", err)})

		return false
	}

	return true
}

func writeFake(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(body)
}
