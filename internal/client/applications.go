package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/internal/http"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// ApplicationsClient implements gia.ApplicationsClient.
type ApplicationsClient struct {
	httpClient *http.Client
	paginator  *Paginator
}

// NewApplicationsClient creates a new applications client.
func NewApplicationsClient(httpClient *http.Client, paginator *Paginator) *ApplicationsClient {
	return &ApplicationsClient{
		httpClient: httpClient,
		paginator:  paginator,
	}
}

func applicationPath(id string) string {
	return constants.ApplicationsPath + "/" + url.PathEscape(id)
}

// List implements gia.ApplicationsClient.List.
func (c *ApplicationsClient) List(ctx context.Context, opts *gia.ListOptions) iter.Seq2[*gia.Application, error] {
	return func(yield func(*gia.Application, error) bool) {
		for raw, err := range FetchAll[json.RawMessage](ctx, c.paginator, constants.ApplicationsPath, listQuery(opts)) {
			if err != nil {
				yield(nil, fmt.Errorf("listing applications: %w", err))

				return
			}

			app, err := decodeApplication(raw, constants.ApplicationsPath)
			if !yield(app, err) || err != nil {
				return
			}
		}
	}
}

// FindByName implements gia.ApplicationsClient.FindByName. The server
// filter is a hint; only exact, case-sensitive matches are returned.
func (c *ApplicationsClient) FindByName(ctx context.Context, name string) ([]*gia.Application, error) {
	opts := &gia.ListOptions{QueryFilter: NameFilter(name)}

	var matches []*gia.Application

	for app, err := range c.List(ctx, opts) {
		if err != nil {
			return nil, fmt.Errorf("finding application %q: %w", name, err)
		}

		if app.Name == name {
			matches = append(matches, app)
		}
	}

	return matches, nil
}

// NameFilter builds an exact-name _queryFilter expression.
func NameFilter(name string) string {
	escaped := strings.ReplaceAll(name, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)

	return fmt.Sprintf(`name eq "%s"`, escaped)
}

// Get implements gia.ApplicationsClient.Get.
func (c *ApplicationsClient) Get(ctx context.Context, id string) (*gia.Application, error) {
	path := applicationPath(id)

	resp, err := c.httpClient.Get(ctx, path, nil)
	if err != nil {
		if gia.IsNotFound(err) {
			return nil, fmt.Errorf("getting application %s: %w: %w", id, gia.ErrApplicationNotFound, err)
		}

		return nil, fmt.Errorf("getting application: %w", err)
	}

	app, err := decodeApplication(resp.Body, path)
	if err != nil {
		return nil, fmt.Errorf("parsing application response: %w", err)
	}

	return app, nil
}

// Create implements gia.ApplicationsClient.Create. The object types of app
// are created in the same call.
func (c *ApplicationsClient) Create(ctx context.Context, app *gia.Application) (*gia.Application, error) {
	resp, err := c.httpClient.Do(ctx, &http.Request{
		Method: "POST",
		Path:   constants.ApplicationsPath,
		Query:  url.Values{paramCreateAction: []string{actionCreate}},
		Body:   CreatePayload(app),
	})
	if err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}

	created, err := decodeApplication(resp.Body, constants.ApplicationsPath)
	if err != nil {
		return nil, fmt.Errorf("parsing application response: %w", err)
	}

	if created.ID == "" {
		return nil, &gia.ProtocolError{Path: constants.ApplicationsPath, Reason: "create response has no id"}
	}

	return created, nil
}

// Update implements gia.ApplicationsClient.Update. The update is a full
// replace; fields present in app.Raw and not modelled are sent back as-is.
func (c *ApplicationsClient) Update(ctx context.Context, id string, app *gia.Application) (*gia.Application, error) {
	path := applicationPath(id)

	resp, err := c.httpClient.Put(ctx, path, UpdatePayload(app))
	if err != nil {
		return nil, fmt.Errorf("updating application: %w", err)
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return app, nil
	}

	updated, err := decodeApplication(resp.Body, path)
	if err != nil {
		return nil, fmt.Errorf("parsing application response: %w", err)
	}

	return updated, nil
}

// Delete implements gia.ApplicationsClient.Delete.
func (c *ApplicationsClient) Delete(ctx context.Context, id string) error {
	_, err := c.httpClient.Delete(ctx, applicationPath(id))
	if err != nil {
		return fmt.Errorf("deleting application: %w", err)
	}

	return nil
}

// CreatePayload builds the create body of a disconnected application.
func CreatePayload(app *gia.Application) map[string]interface{} {
	payload := map[string]interface{}{
		"name":           app.Name,
		"description":    app.Description,
		"isDisconnected": true,
		"datasourceId":   constants.DisconnectedDatasourceID,
		"authoritative":  false,
	}

	if len(app.OwnerIDs) > 0 {
		payload["ownerIds"] = app.OwnerIDs
	}

	if app.Icon != "" {
		payload["icon"] = app.Icon
	}

	if len(app.ObjectTypes) > 0 {
		objectTypes := make(map[string]interface{}, len(app.ObjectTypes))
		for id, objectType := range app.ObjectTypes {
			objectType.ID = id
			objectTypes[id] = objectType
		}

		payload["objectTypes"] = objectTypes
	}

	return payload
}

// UpdatePayload builds the replace body: the remote document with the
// modelled application-level fields overlaid.
func UpdatePayload(app *gia.Application) map[string]interface{} {
	payload := make(map[string]interface{}, len(app.Raw)+4)
	for key, value := range app.Raw {
		payload[key] = value
	}

	payload["name"] = app.Name
	payload["description"] = app.Description

	if app.OwnerIDs != nil {
		payload["ownerIds"] = app.OwnerIDs
	}

	if app.Icon != "" {
		payload["icon"] = app.Icon
	}

	if _, ok := payload["isDisconnected"]; !ok {
		payload["isDisconnected"] = true
	}

	return payload
}

// decodeApplication parses an application document. objectTypes may be an
// object keyed by id or an array of object types.
func decodeApplication(data []byte, path string) (*gia.Application, error) {
	var raw map[string]interface{}

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return nil, &gia.ProtocolError{Path: path, Reason: "malformed application", Err: err}
	}

	var doc struct {
		gia.Application

		ObjectTypes json.RawMessage `json:"objectTypes"`
	}

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, &gia.ProtocolError{Path: path, Reason: "malformed application", Err: err}
	}

	app := doc.Application
	app.Raw = raw

	app.ObjectTypes, err = decodeObjectTypes(doc.ObjectTypes)
	if err != nil {
		return nil, &gia.ProtocolError{Path: path, Reason: "malformed objectTypes", Err: err}
	}

	return &app, nil
}

func decodeObjectTypes(data json.RawMessage) (map[string]gia.ObjectType, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]gia.ObjectType{}, nil
	}

	if trimmed[0] == '[' {
		var list []gia.ObjectType

		err := json.Unmarshal(trimmed, &list)
		if err != nil {
			return nil, fmt.Errorf("decoding object type list: %w", err)
		}

		objectTypes := make(map[string]gia.ObjectType, len(list))
		for _, objectType := range list {
			objectTypes[objectType.ID] = objectType
		}

		return objectTypes, nil
	}

	var objectTypes map[string]gia.ObjectType

	err := json.Unmarshal(trimmed, &objectTypes)
	if err != nil {
		return nil, fmt.Errorf("decoding object type map: %w", err)
	}

	for id, objectType := range objectTypes {
		if objectType.ID == "" {
			objectType.ID = id
			objectTypes[id] = objectType
		}
	}

	return objectTypes, nil
}
