package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/url"
	"path/filepath"

	"github.com/fivetwenty-io/gia-client/internal/http"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
	"github.com/google/uuid"
)

// Static errors for err113 compliance.
var (
	ErrDatasetNotReadable = errors.New("dataset has no Open function")
)

const (
	formFieldFile       = "file"
	formFieldObjectType = "objectType"
)

// UploadsClient implements gia.UploadsClient.
type UploadsClient struct {
	httpClient *http.Client
	paginator  *Paginator
}

// NewUploadsClient creates a new uploads client.
func NewUploadsClient(httpClient *http.Client, paginator *Paginator) *UploadsClient {
	return &UploadsClient{
		httpClient: httpClient,
		paginator:  paginator,
	}
}

func uploadPath(applicationID, uploadID string) string {
	return applicationPath(applicationID) + "/upload/:" + url.PathEscape(uploadID)
}

// Upload implements gia.UploadsClient.Upload. The dataset is streamed as a
// multipart form and reopened for every transmission attempt. Once the
// server may have received the body the request is not repeated.
func (c *UploadsClient) Upload(ctx context.Context, applicationID, objectTypeID string, dataset gia.Dataset) (string, error) {
	if dataset.Open == nil {
		return "", ErrDatasetNotReadable
	}

	path := applicationPath(applicationID)
	boundary := multipart.NewWriter(io.Discard).Boundary()

	resp, err := c.httpClient.Do(ctx, &http.Request{
		Method:         "POST",
		Path:           path,
		Query:          url.Values{paramUploadAction: []string{actionUpload}},
		AckSensitive:   true,
		IdempotencyKey: uuid.NewString(),
		ContentType:    "multipart/form-data; boundary=" + boundary,
		BodyFunc: func() (io.Reader, error) {
			return streamMultipart(dataset, objectTypeID, boundary)
		},
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s for %s: %w", datasetName(dataset), objectTypeID, err)
	}

	var body map[string]interface{}

	err = http.DecodeJSON(resp, path, &body)
	if err != nil {
		return "", fmt.Errorf("parsing upload response: %w", err)
	}

	for _, key := range []string{"extractionId", "id", "uploadId"} {
		if id, ok := body[key].(string); ok && id != "" {
			return id, nil
		}
	}

	return "", &gia.ProtocolError{Path: path, Reason: "upload response has no upload id"}
}

// streamMultipart opens the dataset and writes the form through a pipe so
// large files are never held in memory.
func streamMultipart(dataset gia.Dataset, objectTypeID, boundary string) (io.Reader, error) {
	source, err := dataset.Open()
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", datasetName(dataset), err)
	}

	reader, writer := io.Pipe()

	go func() {
		defer func() { _ = source.Close() }()

		form := multipart.NewWriter(writer)

		err := form.SetBoundary(boundary)
		if err == nil {
			err = writeForm(form, source, dataset, objectTypeID)
		}

		_ = writer.CloseWithError(err)
	}()

	return reader, nil
}

func writeForm(form *multipart.Writer, source io.Reader, dataset gia.Dataset, objectTypeID string) error {
	err := form.WriteField(formFieldObjectType, objectTypeID)
	if err != nil {
		return fmt.Errorf("writing objectType field: %w", err)
	}

	part, err := form.CreateFormFile(formFieldFile, datasetName(dataset))
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}

	_, err = io.Copy(part, source)
	if err != nil {
		return fmt.Errorf("writing dataset to form: %w", err)
	}

	err = form.Close()
	if err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	return nil
}

func datasetName(dataset gia.Dataset) string {
	if dataset.Name == "" {
		return "data.csv"
	}

	return filepath.Base(dataset.Name)
}

// Status implements gia.UploadsClient.Status.
func (c *UploadsClient) Status(ctx context.Context, applicationID, uploadID string) (*gia.UploadStatus, error) {
	path := uploadPath(applicationID, uploadID)

	resp, err := c.httpClient.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting upload status: %w", err)
	}

	var status gia.UploadStatus

	err = http.DecodeJSON(resp, path, &status)
	if err != nil {
		return nil, fmt.Errorf("parsing upload status: %w", err)
	}

	return &status, nil
}

// wireFailure accepts the field spellings seen in failure listings.
type wireFailure struct {
	RowNumber *int   `json:"rowNumber"`
	Row       *int   `json:"row"`
	Field     string `json:"field"`
	Attribute string `json:"attribute"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

func (w wireFailure) record() gia.FailureRecord {
	record := gia.FailureRecord{Field: w.Field, Message: w.Error}

	switch {
	case w.RowNumber != nil:
		record.Row = *w.RowNumber
	case w.Row != nil:
		record.Row = *w.Row
	}

	if record.Field == "" {
		record.Field = w.Attribute
	}

	if record.Message == "" {
		record.Message = w.Message
	}

	return record
}

// Failures implements gia.UploadsClient.Failures.
func (c *UploadsClient) Failures(ctx context.Context, applicationID, uploadID string) iter.Seq2[gia.FailureRecord, error] {
	return func(yield func(gia.FailureRecord, error) bool) {
		path := uploadPath(applicationID, uploadID) + "/failures"

		for failure, err := range FetchAll[wireFailure](ctx, c.paginator, path, nil) {
			if err != nil {
				yield(gia.FailureRecord{}, fmt.Errorf("listing upload failures: %w", err))

				return
			}

			if !yield(failure.record(), nil) {
				return
			}
		}
	}
}

// Files implements gia.UploadsClient.Files.
func (c *UploadsClient) Files(ctx context.Context, applicationID string) ([]gia.UploadedFile, error) {
	path := applicationPath(applicationID) + "/files"

	resp, err := c.httpClient.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("listing uploaded files: %w", err)
	}

	var body struct {
		Result []json.RawMessage `json:"result"`
	}

	err = http.DecodeJSON(resp, path, &body)
	if err != nil {
		return nil, fmt.Errorf("parsing uploaded files: %w", err)
	}

	files := make([]gia.UploadedFile, 0, len(body.Result))

	for _, raw := range body.Result {
		var file gia.UploadedFile

		err = json.Unmarshal(raw, &file)
		if err != nil {
			return nil, &gia.ProtocolError{Path: path, Reason: "malformed file entry", Err: err}
		}

		files = append(files, file)
	}

	return files, nil
}
