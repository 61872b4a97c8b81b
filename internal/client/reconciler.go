package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/fivetwenty-io/gia-client/pkg/gia"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Static errors for err113 compliance.
var (
	ErrDesiredStateRequired = errors.New("desired state is required")
	ErrInvalidPlanPayload   = errors.New("operation payload does not match its kind")
	ErrUnknownOperation     = errors.New("unknown operation kind")
)

// ReconcilerClient implements gia.Reconciler.
type ReconcilerClient struct {
	applications gia.ApplicationsClient
	objectTypes  gia.ObjectTypesClient
	logger       gia.Logger
}

// NewReconciler creates a reconciler on top of the REST wrappers.
func NewReconciler(applications gia.ApplicationsClient, objectTypes gia.ObjectTypesClient, logger gia.Logger) *ReconcilerClient {
	return &ReconcilerClient{
		applications: applications,
		objectTypes:  objectTypes,
		logger:       logger,
	}
}

// Reconcile implements gia.Reconciler.Reconcile.
func (r *ReconcilerClient) Reconcile(ctx context.Context, desired *gia.DesiredState, upsert bool) (*gia.ReconcileResult, error) {
	plan, err := r.Plan(ctx, desired, upsert)
	if err != nil {
		return nil, err
	}

	return r.Apply(ctx, plan)
}

// Plan implements gia.Reconciler.Plan. No mutation is sent.
func (r *ReconcilerClient) Plan(ctx context.Context, desired *gia.DesiredState, upsert bool) (*gia.Plan, error) {
	if desired == nil {
		return nil, &gia.ValidationError{Reason: ErrDesiredStateRequired.Error()}
	}

	err := desired.Validate()
	if err != nil {
		return nil, err //nolint:wrapcheck // ValidationError is reported as-is
	}

	remote, err := r.resolveTarget(ctx, desired, upsert)
	if err != nil {
		return nil, err
	}

	if remote == nil {
		return createPlan(desired), nil
	}

	operations, err := diffApplication(desired, remote)
	if err != nil {
		return nil, err
	}

	return &gia.Plan{
		ApplicationID:   remote.ID,
		ApplicationName: desired.Name,
		Operations:      operations,
	}, nil
}

// resolveTarget returns the remote application to update, or nil when the
// application must be created.
func (r *ReconcilerClient) resolveTarget(ctx context.Context, desired *gia.DesiredState, upsert bool) (*gia.Application, error) {
	if desired.ID != "" {
		remote, err := r.applications.Get(ctx, desired.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving application %s: %w", desired.ID, err)
		}

		return remote, nil
	}

	matches, err := r.applications.FindByName(ctx, desired.Name)
	if err != nil {
		return nil, fmt.Errorf("resolving application %q: %w", desired.Name, err)
	}

	switch {
	case len(matches) == 0:
		return nil, nil
	case len(matches) > 1:
		return nil, &gia.ConflictError{
			Reason:     fmt.Sprintf("%d applications are named %q", len(matches), desired.Name),
			Candidates: applicationIDs(matches),
		}
	case !upsert:
		return nil, &gia.ConflictError{
			Reason:     fmt.Sprintf("application %q already exists", desired.Name),
			Candidates: applicationIDs(matches),
		}
	}

	// Listings may omit object types; the full document drives the diff.
	remote, err := r.applications.Get(ctx, matches[0].ID)
	if err != nil {
		return nil, fmt.Errorf("fetching application %s: %w", matches[0].ID, err)
	}

	return remote, nil
}

func applicationIDs(apps []*gia.Application) []string {
	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, app.ID)
	}

	sort.Strings(ids)

	return ids
}

func createPlan(desired *gia.DesiredState) *gia.Plan {
	changes := []gia.Change{
		{Path: "name", Action: gia.ChangeAdd, Desired: desired.Name},
	}

	if desired.Description != "" {
		changes = append(changes, gia.Change{Path: "description", Action: gia.ChangeAdd, Desired: desired.Description})
	}

	for _, id := range desired.ObjectTypeIDs() {
		changes = append(changes, gia.Change{Path: "objectTypes." + id, Action: gia.ChangeAdd, Desired: desired.ObjectTypes[id].Type})
	}

	app := *desired

	return &gia.Plan{
		ApplicationName: desired.Name,
		Operations: []gia.Operation{{
			Kind:    gia.OperationCreateApplication,
			Changes: changes,
			Payload: &app,
		}},
	}
}

// diffApplication computes the minimal operations that bring remote in line
// with desired. Remote-only object types are left alone.
func diffApplication(desired *gia.DesiredState, remote *gia.Application) ([]gia.Operation, error) {
	err := checkImmutableTypes(desired, remote)
	if err != nil {
		return nil, err
	}

	var (
		operations []gia.Operation
		creates    []gia.Operation
		updates    []gia.Operation
	)

	if update, ok := diffApplicationFields(desired, remote); ok {
		operations = append(operations, update)
	}

	for _, id := range desired.ObjectTypeIDs() {
		want := desired.ObjectTypes[id]
		want.ID = id

		have, exists := remote.ObjectTypes[id]
		if !exists {
			creates = append(creates, gia.Operation{
				Kind:          gia.OperationCreateObjectType,
				ApplicationID: remote.ID,
				ObjectTypeID:  id,
				Changes:       propertyChanges(id, want.Properties, nil),
				Payload:       &want,
			})

			continue
		}

		changes := propertyChanges(id, want.Properties, have.Properties)
		if len(changes) == 0 {
			continue
		}

		// The server may normalise the type spelling; keep its value.
		want.Type = have.Type

		updates = append(updates, gia.Operation{
			Kind:          gia.OperationUpdateObjectType,
			ApplicationID: remote.ID,
			ObjectTypeID:  id,
			Changes:       changes,
			Payload:       &want,
		})
	}

	operations = append(operations, creates...)
	operations = append(operations, updates...)

	return operations, nil
}

func checkImmutableTypes(desired *gia.DesiredState, remote *gia.Application) error {
	for _, id := range desired.ObjectTypeIDs() {
		have, exists := remote.ObjectTypes[id]
		if !exists || have.Type == "" {
			continue
		}

		want := desired.ObjectTypes[id].Type
		if !strings.EqualFold(want, have.Type) {
			return &gia.ConflictError{
				Reason: fmt.Sprintf("object type %s is %q remotely and cannot change to %q", id, have.Type, want),
			}
		}
	}

	return nil
}

func diffApplicationFields(desired *gia.DesiredState, remote *gia.Application) (gia.Operation, bool) {
	var changes []gia.Change

	merged := *remote

	if desired.Name != remote.Name {
		changes = append(changes, gia.Change{Path: "name", Action: gia.ChangeModify, Desired: desired.Name, Remote: remote.Name})
		merged.Name = desired.Name
	}

	if desired.Description != remote.Description {
		changes = append(changes, gia.Change{Path: "description", Action: gia.ChangeModify, Desired: desired.Description, Remote: remote.Description})
		merged.Description = desired.Description
	}

	if desired.OwnerIDs != nil && !sameOwners(desired.OwnerIDs, remote.OwnerIDs) {
		changes = append(changes, gia.Change{Path: "ownerIds", Action: gia.ChangeModify, Desired: desired.OwnerIDs, Remote: remote.OwnerIDs})
		merged.OwnerIDs = desired.OwnerIDs
	}

	if desired.Icon != "" && desired.Icon != remote.Icon {
		changes = append(changes, gia.Change{Path: "icon", Action: gia.ChangeModify, Desired: desired.Icon, Remote: remote.Icon})
		merged.Icon = desired.Icon
	}

	if len(changes) == 0 {
		return gia.Operation{}, false
	}

	return gia.Operation{
		Kind:          gia.OperationUpdateApplication,
		ApplicationID: remote.ID,
		Changes:       changes,
		Payload:       &merged,
	}, true
}

func sameOwners(a, b []string) bool {
	left := slices.Clone(a)
	right := slices.Clone(b)

	sort.Strings(left)
	sort.Strings(right)

	return slices.Equal(left, right)
}

var propertyComparer = cmpopts.EquateEmpty()

// propertyChanges lists per-property differences in name order.
func propertyChanges(objectTypeID string, want, have map[string]gia.PropertyDescriptor) []gia.Change {
	if cmp.Equal(want, have, propertyComparer) {
		return nil
	}

	names := make([]string, 0, len(want)+len(have))
	for name := range want {
		names = append(names, name)
	}

	for name := range have {
		if _, ok := want[name]; !ok {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	prefix := "objectTypes." + objectTypeID + ".properties."

	var changes []gia.Change

	for _, name := range names {
		desiredProp, inDesired := want[name]
		remoteProp, inRemote := have[name]

		switch {
		case inDesired && !inRemote:
			changes = append(changes, gia.Change{Path: prefix + name, Action: gia.ChangeAdd, Desired: desiredProp})
		case !inDesired && inRemote:
			changes = append(changes, gia.Change{Path: prefix + name, Action: gia.ChangeRemove, Remote: remoteProp})
		case !cmp.Equal(desiredProp, remoteProp):
			changes = append(changes, gia.Change{Path: prefix + name, Action: gia.ChangeModify, Desired: desiredProp, Remote: remoteProp})
		}
	}

	return changes
}

// Apply implements gia.Reconciler.Apply. Operations run in order and the
// first failure stops the plan.
func (r *ReconcilerClient) Apply(ctx context.Context, plan *gia.Plan) (*gia.ReconcileResult, error) {
	result := &gia.ReconcileResult{}
	if plan == nil {
		return result, nil
	}

	result.ApplicationID = plan.ApplicationID

	for i, operation := range plan.Operations {
		if operation.ApplicationID == "" {
			operation.ApplicationID = result.ApplicationID
		}

		applicationID, err := r.execute(ctx, operation)
		if err != nil {
			r.log("Reconciliation stopped", operation, err)

			return result, &gia.PartialProgressError{
				Applied:      result.Applied,
				Failed:       operation,
				NotAttempted: slices.Clone(plan.Operations[i+1:]),
				Err:          err,
			}
		}

		if operation.Kind == gia.OperationCreateApplication {
			result.Created = true
			result.ApplicationID = applicationID
			operation.ApplicationID = applicationID
		}

		result.Applied = append(result.Applied, operation)
		r.log("Applied operation", operation, nil)
	}

	return result, nil
}

// execute performs one operation and returns the application id it acted on.
func (r *ReconcilerClient) execute(ctx context.Context, operation gia.Operation) (string, error) {
	if ctx.Err() != nil {
		return "", &gia.CancelledError{Err: ctx.Err()}
	}

	switch operation.Kind {
	case gia.OperationCreateApplication:
		app, ok := operation.Payload.(*gia.Application)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrInvalidPlanPayload, operation)
		}

		created, err := r.applications.Create(ctx, app)
		if err != nil {
			return "", err //nolint:wrapcheck // already wrapped by the REST layer
		}

		return created.ID, nil
	case gia.OperationUpdateApplication:
		app, ok := operation.Payload.(*gia.Application)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrInvalidPlanPayload, operation)
		}

		_, err := r.applications.Update(ctx, operation.ApplicationID, app)

		return operation.ApplicationID, err //nolint:wrapcheck // already wrapped by the REST layer
	case gia.OperationCreateObjectType, gia.OperationUpdateObjectType:
		objectType, ok := operation.Payload.(*gia.ObjectType)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrInvalidPlanPayload, operation)
		}

		var err error
		if operation.Kind == gia.OperationCreateObjectType {
			_, err = r.objectTypes.Add(ctx, operation.ApplicationID, objectType)
		} else {
			_, err = r.objectTypes.Update(ctx, operation.ApplicationID, objectType)
		}

		return operation.ApplicationID, err
	case gia.OperationDeleteObjectType:
		err := r.objectTypes.Delete(ctx, operation.ApplicationID, operation.ObjectTypeID)

		return operation.ApplicationID, err //nolint:wrapcheck // already wrapped by the REST layer
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, operation.Kind)
	}
}

// DeleteObjectType implements gia.Reconciler.DeleteObjectType. It is the
// only path that removes an object type.
func (r *ReconcilerClient) DeleteObjectType(ctx context.Context, applicationID, objectTypeID string) (*gia.ReconcileResult, error) {
	if applicationID == "" {
		return nil, &gia.ValidationError{Field: "application_id", Reason: "is required"}
	}

	if objectTypeID == "" {
		return nil, &gia.ValidationError{Field: "object_type_id", Reason: "is required"}
	}

	return r.Apply(ctx, &gia.Plan{
		ApplicationID: applicationID,
		Operations: []gia.Operation{{
			Kind:          gia.OperationDeleteObjectType,
			ApplicationID: applicationID,
			ObjectTypeID:  objectTypeID,
			Changes:       []gia.Change{{Path: "objectTypes." + objectTypeID, Action: gia.ChangeRemove}},
		}},
	})
}

func (r *ReconcilerClient) log(msg string, operation gia.Operation, err error) {
	if r.logger == nil {
		return
	}

	fields := map[string]interface{}{
		"operation":      string(operation.Kind),
		"application_id": operation.ApplicationID,
	}

	if operation.ObjectTypeID != "" {
		fields["object_type_id"] = operation.ObjectTypeID
	}

	if err != nil {
		fields["error"] = err.Error()
		r.logger.Error(msg, fields)

		return
	}

	r.logger.Info(msg, fields)
}
