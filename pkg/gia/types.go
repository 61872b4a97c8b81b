package gia

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Application represents a disconnected application.
type Application struct {
	ID             string                `json:"id,omitempty"          yaml:"id,omitempty"`
	Name           string                `json:"name"                  yaml:"name"`
	Description    string                `json:"description"           yaml:"description"`
	OwnerIDs       []string              `json:"ownerIds,omitempty"    yaml:"ownerIds,omitempty"`
	Icon           string                `json:"icon,omitempty"        yaml:"icon,omitempty"`
	IsDisconnected bool                  `json:"isDisconnected"        yaml:"isDisconnected"`
	DatasourceID   string                `json:"datasourceId,omitempty" yaml:"datasourceId,omitempty"`
	Authoritative  bool                  `json:"authoritative"         yaml:"authoritative"`
	ObjectTypes    map[string]ObjectType `json:"objectTypes,omitempty" yaml:"objectTypes,omitempty"`

	// Raw holds the document as returned by the server, including fields this
	// package does not model. Updates are applied on top of it.
	Raw map[string]interface{} `json:"-" yaml:"-"`
}

// ObjectTypeIDs returns the object type ids in sorted order.
func (a *Application) ObjectTypeIDs() []string {
	ids := make([]string, 0, len(a.ObjectTypes))
	for id := range a.ObjectTypes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Validate checks the invariants of a desired application.
func (a *Application) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}

	for key, objectType := range a.ObjectTypes {
		if objectType.ID != "" && objectType.ID != key {
			return &ValidationError{
				Field:  "object_types." + key + ".id",
				Reason: fmt.Sprintf("does not match map key (got %q)", objectType.ID),
			}
		}

		err := objectType.validate("object_types." + key)
		if err != nil {
			return err
		}
	}

	return nil
}

// ObjectType is the schema of one category of governed entity.
type ObjectType struct {
	ID         string                        `json:"id"                   yaml:"id"`
	Type       string                        `json:"type"                 yaml:"type"`
	Properties map[string]PropertyDescriptor `json:"properties,omitempty" yaml:"properties,omitempty"`
}

func (o ObjectType) validate(path string) error {
	if strings.TrimSpace(o.Type) == "" {
		return &ValidationError{Field: path + ".type", Reason: "is required"}
	}

	for name, property := range o.Properties {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Field: path + ".properties", Reason: "property name must not be empty"}
		}

		if strings.TrimSpace(property.Type) == "" {
			return &ValidationError{Field: path + ".properties." + name + ".type", Reason: "is required"}
		}

		if !IsPrimitiveType(property.Type) {
			return &ValidationError{
				Field:  path + ".properties." + name + ".type",
				Reason: fmt.Sprintf("unsupported type %q", property.Type),
			}
		}
	}

	return nil
}

// Common object type categories.
const (
	ObjectTypeAccount     = "account"
	ObjectTypeGroup       = "group"
	ObjectTypeResource    = "resource"
	ObjectTypePermission  = "permission"
	ObjectTypeEntitlement = "entitlement"
	ObjectTypeRole        = "role"
	ObjectTypeUser        = "user"
)

// PropertyDescriptor describes one column of an object type.
type PropertyDescriptor struct {
	Type        string `json:"type"                  yaml:"type"`
	Required    bool   `json:"required,omitempty"    yaml:"required,omitempty"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Multivalued bool   `json:"multiValued,omitempty" yaml:"multiValued,omitempty"`
}

var primitiveTypes = map[string]struct{}{
	"string":   {},
	"boolean":  {},
	"number":   {},
	"integer":  {},
	"date":     {},
	"datetime": {},
	"object":   {},
	"array":    {},
}

// IsPrimitiveType reports whether t is an accepted property type.
func IsPrimitiveType(t string) bool {
	_, ok := primitiveTypes[strings.ToLower(t)]

	return ok
}

// DesiredState is the user-authored description of an application. ID is
// optional; when empty the reconciler resolves the target by name.
type DesiredState = Application

// OperationKind names a remote mutation in a reconciliation plan.
type OperationKind string

const (
	OperationCreateApplication OperationKind = "CreateApplication"
	OperationUpdateApplication OperationKind = "UpdateApplication"
	OperationCreateObjectType  OperationKind = "CreateObjectType"
	OperationUpdateObjectType  OperationKind = "UpdateObjectType"
	OperationDeleteObjectType  OperationKind = "DeleteObjectType"
)

// ChangeAction describes how a single field differs.
type ChangeAction string

const (
	ChangeAdd    ChangeAction = "add"
	ChangeRemove ChangeAction = "remove"
	ChangeModify ChangeAction = "change"
)

// Change is one field-level difference between desired and remote state.
type Change struct {
	Path    string       `json:"path"              yaml:"path"`
	Action  ChangeAction `json:"action"            yaml:"action"`
	Desired interface{}  `json:"desired,omitempty" yaml:"desired,omitempty"`
	Remote  interface{}  `json:"remote,omitempty"  yaml:"remote,omitempty"`
}

// Operation is a single step of a reconciliation plan.
type Operation struct {
	Kind          OperationKind `json:"kind"                     yaml:"kind"`
	ApplicationID string        `json:"applicationId,omitempty"  yaml:"applicationId,omitempty"`
	ObjectTypeID  string        `json:"objectTypeId,omitempty"   yaml:"objectTypeId,omitempty"`
	Changes       []Change      `json:"changes,omitempty"        yaml:"changes,omitempty"`
	Payload       interface{}   `json:"-"                        yaml:"-"`
}

// String returns a short human-readable form of the operation.
func (o Operation) String() string {
	switch {
	case o.ObjectTypeID != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.ObjectTypeID)
	case o.ApplicationID != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.ApplicationID)
	default:
		return string(o.Kind)
	}
}

// Plan is the ordered list of operations that brings the remote application
// in line with a desired state. It is recomputed on every call.
type Plan struct {
	ApplicationID   string      `json:"applicationId,omitempty" yaml:"applicationId,omitempty"`
	ApplicationName string      `json:"applicationName"         yaml:"applicationName"`
	Operations      []Operation `json:"operations"              yaml:"operations"`
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Operations) == 0
}

// ReconcileResult reports the outcome of a successful reconciliation.
type ReconcileResult struct {
	ApplicationID string      `json:"applicationId" yaml:"applicationId"`
	Created       bool        `json:"created"       yaml:"created"`
	Applied       []Operation `json:"applied"       yaml:"applied"`
}

// JobState is the local view of a remote upload job.
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateComplete   JobState = "complete"
	JobStateFailed     JobState = "failed"
	JobStateUnknown    JobState = "unknown"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == JobStateComplete || s == JobStateFailed
}

// UploadJob is a handle on a remote bulk-load job.
type UploadJob struct {
	UploadID      string    `json:"uploadId"               yaml:"uploadId"`
	ApplicationID string    `json:"applicationId"          yaml:"applicationId"`
	ObjectTypeID  string    `json:"objectTypeId,omitempty" yaml:"objectTypeId,omitempty"`
	State         JobState  `json:"state"                  yaml:"state"`
	RemoteStatus  string    `json:"remoteStatus,omitempty" yaml:"remoteStatus,omitempty"`
	TotalCount    int       `json:"totalCount"             yaml:"totalCount"`
	SuccessCount  int       `json:"successCount"           yaml:"successCount"`
	FailureCount  int       `json:"failureCount"           yaml:"failureCount"`
	SubmittedAt   time.Time `json:"submittedAt,omitzero"   yaml:"submittedAt,omitempty"`
	ObservedAt    time.Time `json:"observedAt,omitzero"    yaml:"observedAt,omitempty"`
}

// HasFailures reports whether failure detail is worth fetching.
func (j *UploadJob) HasFailures() bool {
	return j.State == JobStateFailed || j.FailureCount > 0
}

// FailureRecord is a row-level ingestion failure.
type FailureRecord struct {
	Row     int    `json:"row"             yaml:"row"`
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Message string `json:"message"         yaml:"message"`
}

// UploadedFile is an entry of the application's upload history.
type UploadedFile struct {
	ID           string `json:"id"                     yaml:"id"`
	FileName     string `json:"fileName,omitempty"     yaml:"fileName,omitempty"`
	ObjectType   string `json:"objectType,omitempty"   yaml:"objectType,omitempty"`
	Status       string `json:"status,omitempty"       yaml:"status,omitempty"`
	UploadedDate string `json:"uploadedDate,omitempty" yaml:"uploadedDate,omitempty"`
}

// Dataset is a row-oriented tabular payload with a header row. Open is
// called once per transmission attempt so the stream can be replayed.
type Dataset struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Record is an account or resource loaded into a disconnected application.
type Record map[string]interface{}

// ID returns the record identifier when present.
func (r Record) ID() string {
	if id, ok := r["id"].(string); ok {
		return id
	}

	return ""
}
