package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/fivetwenty-io/gia-client/internal/http"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// ObjectTypesClient implements gia.ObjectTypesClient.
type ObjectTypesClient struct {
	httpClient *http.Client
}

// NewObjectTypesClient creates a new object types client.
func NewObjectTypesClient(httpClient *http.Client) *ObjectTypesClient {
	return &ObjectTypesClient{
		httpClient: httpClient,
	}
}

func objectTypesPath(applicationID string) string {
	return applicationPath(applicationID) + "/objectType"
}

func objectTypePath(applicationID, objectTypeID string) string {
	return objectTypesPath(applicationID) + "/" + url.PathEscape(objectTypeID)
}

// Add implements gia.ObjectTypesClient.Add.
func (c *ObjectTypesClient) Add(ctx context.Context, applicationID string, objectType *gia.ObjectType) (*gia.ObjectType, error) {
	path := objectTypesPath(applicationID)

	resp, err := c.httpClient.Post(ctx, path, objectType)
	if err != nil {
		return nil, fmt.Errorf("adding object type %s: %w", objectType.ID, err)
	}

	return decodeObjectType(resp, path, objectType)
}

// Get implements gia.ObjectTypesClient.Get.
func (c *ObjectTypesClient) Get(ctx context.Context, applicationID, objectTypeID string) (*gia.ObjectType, error) {
	path := objectTypePath(applicationID, objectTypeID)

	resp, err := c.httpClient.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting object type %s: %w", objectTypeID, err)
	}

	var objectType gia.ObjectType

	err = http.DecodeJSON(resp, path, &objectType)
	if err != nil {
		return nil, fmt.Errorf("parsing object type response: %w", err)
	}

	if objectType.ID == "" {
		objectType.ID = objectTypeID
	}

	return &objectType, nil
}

// Update implements gia.ObjectTypesClient.Update.
func (c *ObjectTypesClient) Update(ctx context.Context, applicationID string, objectType *gia.ObjectType) (*gia.ObjectType, error) {
	path := objectTypePath(applicationID, objectType.ID)

	resp, err := c.httpClient.Put(ctx, path, objectType)
	if err != nil {
		return nil, fmt.Errorf("updating object type %s: %w", objectType.ID, err)
	}

	return decodeObjectType(resp, path, objectType)
}

// Delete implements gia.ObjectTypesClient.Delete.
func (c *ObjectTypesClient) Delete(ctx context.Context, applicationID, objectTypeID string) error {
	_, err := c.httpClient.Delete(ctx, objectTypePath(applicationID, objectTypeID))
	if err != nil {
		return fmt.Errorf("deleting object type %s: %w", objectTypeID, err)
	}

	return nil
}

// Schema implements gia.ObjectTypesClient.Schema.
func (c *ObjectTypesClient) Schema(ctx context.Context, applicationID, objectTypeID string) (map[string]interface{}, error) {
	path := applicationPath(applicationID) + "/" + url.PathEscape(objectTypeID) + "/schema"

	resp, err := c.httpClient.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting schema of %s: %w", objectTypeID, err)
	}

	var schema map[string]interface{}

	err = http.DecodeJSON(resp, path, &schema)
	if err != nil {
		return nil, fmt.Errorf("parsing schema response: %w", err)
	}

	return schema, nil
}

// decodeObjectType parses a mutation response. Servers that answer with an
// empty body are treated as having accepted sent unchanged.
func decodeObjectType(resp *http.Response, path string, sent *gia.ObjectType) (*gia.ObjectType, error) {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		result := *sent

		return &result, nil
	}

	var objectType gia.ObjectType

	err := json.Unmarshal(resp.Body, &objectType)
	if err != nil {
		return nil, &gia.ProtocolError{Path: path, Reason: "malformed object type", Err: err}
	}

	if objectType.ID == "" {
		objectType.ID = sent.ID
	}

	return &objectType, nil
}
