package client

import (
	"context"
	"fmt"
	"iter"
	"net/url"

	"github.com/fivetwenty-io/gia-client/internal/http"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// RecordsClient implements gia.RecordsClient.
type RecordsClient struct {
	httpClient *http.Client
	paginator  *Paginator
}

// NewRecordsClient creates a new records client.
func NewRecordsClient(httpClient *http.Client, paginator *Paginator) *RecordsClient {
	return &RecordsClient{
		httpClient: httpClient,
		paginator:  paginator,
	}
}

// ListAccounts implements gia.RecordsClient.ListAccounts.
func (c *RecordsClient) ListAccounts(ctx context.Context, applicationID string) iter.Seq2[gia.Record, error] {
	return c.list(ctx, applicationID, "account")
}

// GetAccount implements gia.RecordsClient.GetAccount.
func (c *RecordsClient) GetAccount(ctx context.Context, applicationID, accountID string) (gia.Record, error) {
	return c.get(ctx, applicationID, "account", accountID)
}

// ListResources implements gia.RecordsClient.ListResources.
func (c *RecordsClient) ListResources(ctx context.Context, applicationID string) iter.Seq2[gia.Record, error] {
	return c.list(ctx, applicationID, "resource")
}

// GetResource implements gia.RecordsClient.GetResource.
func (c *RecordsClient) GetResource(ctx context.Context, applicationID, resourceID string) (gia.Record, error) {
	return c.get(ctx, applicationID, "resource", resourceID)
}

func (c *RecordsClient) list(ctx context.Context, applicationID, kind string) iter.Seq2[gia.Record, error] {
	return FetchAll[gia.Record](ctx, c.paginator, applicationPath(applicationID)+"/"+kind, nil)
}

func (c *RecordsClient) get(ctx context.Context, applicationID, kind, id string) (gia.Record, error) {
	path := applicationPath(applicationID) + "/" + kind + "/" + url.PathEscape(id)

	resp, err := c.httpClient.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", kind, id, err)
	}

	var record gia.Record

	err = http.DecodeJSON(resp, path, &record)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", kind, err)
	}

	return record, nil
}
