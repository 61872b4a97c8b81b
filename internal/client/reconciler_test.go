package client

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

func hrDesired() *gia.DesiredState {
	return &gia.DesiredState{
		Name:        "HR Feed",
		Description: "Nightly HR export",
		ObjectTypes: map[string]gia.ObjectType{
			"accounts": {
				Type: gia.ObjectTypeAccount,
				Properties: map[string]gia.PropertyDescriptor{
					"userName": {Type: "string", Required: true, DisplayName: "User name"},
					"active":   {Type: "boolean"},
				},
			},
			"groups": {
				Type: gia.ObjectTypeGroup,
				Properties: map[string]gia.PropertyDescriptor{
					"groupName": {Type: "string", Required: true},
				},
			},
		},
	}
}

func seededHRApp() map[string]interface{} {
	return map[string]interface{}{
		"name":           "HR Feed",
		"description":    "Old description",
		"isDisconnected": true,
		"datasourceId":   "disconnected",
		"customField":    "kept",
		"objectTypes": map[string]interface{}{
			"accounts": map[string]interface{}{
				"id":   "accounts",
				"type": "account",
				"properties": map[string]interface{}{
					"userName": map[string]interface{}{"type": "string", "required": true, "displayName": "User name"},
					"active":   map[string]interface{}{"type": "boolean"},
				},
			},
			"groups": map[string]interface{}{
				"id":   "groups",
				"type": "group",
				"properties": map[string]interface{}{
					"groupName": map[string]interface{}{"type": "string"},
				},
			},
			"legacy": map[string]interface{}{
				"id":   "legacy",
				"type": "resource",
			},
		},
	}
}

func operationKinds(operations []gia.Operation) []string {
	kinds := make([]string, 0, len(operations))
	for _, operation := range operations {
		kinds = append(kinds, operation.String())
	}

	return kinds
}

func TestReconciler_CreatesMissingApplication(t *testing.T) {
	t.Parallel()

	fake := newFakeIGA(t)
	client := fake.client(t)

	result, err := client.Reconciler().Reconcile(context.Background(), hrDesired(), true)
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, "app-1", result.ApplicationID)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, gia.OperationCreateApplication, result.Applied[0].Kind)
	assert.Equal(t, []string{"POST "}, fake.mutations())

	doc := fake.app("app-1")
	assert.Equal(t, true, doc["isDisconnected"])
	assert.Equal(t, "disconnected", doc["datasourceId"])
	assert.Equal(t, false, doc["authoritative"])

	objectTypes, ok := doc["objectTypes"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, objectTypes, "accounts")
	assert.Contains(t, objectTypes, "groups")
}

func TestReconciler_IsIdempotent(t *testing.T) {
	t.Parallel()

	fake := newFakeIGA(t)
	client := fake.client(t)

	_, err := client.Reconciler().Reconcile(context.Background(), hrDesired(), true)
	require.NoError(t, err)

	fake.resetCalls()

	result, err := client.Reconciler().Reconcile(context.Background(), hrDesired(), true)
	require.NoError(t, err)

	assert.False(t, result.Created)
	assert.Equal(t, "app-1", result.ApplicationID)
	assert.Empty(t, result.Applied)
	assert.Empty(t, fake.mutations())
}

func TestReconciler_DiffIsMinimal(t *testing.T) { //nolint:funlen
	t.Parallel()

	fake := newFakeIGA(t)
	appID := fake.seed(t, seededHRApp())
	client := fake.client(t)

	desired := hrDesired()
	desired.ObjectTypes["roles"] = gia.ObjectType{
		Type:       gia.ObjectTypeRole,
		Properties: map[string]gia.PropertyDescriptor{"roleName": {Type: "string"}},
	}
	desired.ObjectTypes["entitlements"] = gia.ObjectType{Type: gia.ObjectTypeEntitlement}

	plan, err := client.Reconciler().Plan(context.Background(), desired, true)
	require.NoError(t, err)

	assert.Equal(t, appID, plan.ApplicationID)
	assert.Equal(t, []string{
		"UpdateApplication(" + appID + ")",
		"CreateObjectType(entitlements)",
		"CreateObjectType(roles)",
		"UpdateObjectType(groups)",
	}, operationKinds(plan.Operations))
	assert.Empty(t, fake.mutations(), "planning must not mutate")

	groups := plan.Operations[3]
	require.Len(t, groups.Changes, 1)
	assert.Equal(t, "objectTypes.groups.properties.groupName", groups.Changes[0].Path)
	assert.Equal(t, gia.ChangeModify, groups.Changes[0].Action)

	update := plan.Operations[0]
	require.Len(t, update.Changes, 1)
	assert.Equal(t, "description", update.Changes[0].Path)

	result, err := client.Reconciler().Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.Len(t, result.Applied, 4)

	assert.Equal(t, []string{
		"PUT /" + appID,
		"POST /" + appID + "/objectType",
		"POST /" + appID + "/objectType",
		"PUT /" + appID + "/objectType/groups",
	}, fake.mutations())

	doc := fake.app(appID)
	assert.Equal(t, "kept", doc["customField"], "unknown fields survive the replace")
	assert.Equal(t, "Nightly HR export", doc["description"])

	objectTypes, ok := doc["objectTypes"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, objectTypes, "legacy", "remote-only object types are never deleted")
	assert.Contains(t, objectTypes, "roles")
}

func TestReconciler_TypeChangeIsConflict(t *testing.T) {
	t.Parallel()

	fake := newFakeIGA(t)
	fake.seed(t, seededHRApp())
	client := fake.client(t)

	desired := hrDesired()
	accounts := desired.ObjectTypes["accounts"]
	accounts.Type = gia.ObjectTypeUser
	desired.ObjectTypes["accounts"] = accounts
	desired.Description = "changed too"

	_, err := client.Reconciler().Reconcile(context.Background(), desired, true)
	require.Error(t, err)

	assert.True(t, gia.IsConflict(err))
	assert.Contains(t, err.Error(), "accounts")
	assert.Empty(t, fake.mutations())
}

func TestReconciler_ResolveTarget(t *testing.T) { //nolint:funlen
	t.Parallel()

	t.Run("existing name without upsert", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIGA(t)
		fake.seed(t, seededHRApp())

		_, err := fake.client(t).Reconciler().Reconcile(context.Background(), hrDesired(), false)
		require.Error(t, err)

		conflictErr := &gia.ConflictError{}
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, []string{"app-1"}, conflictErr.Candidates)
		assert.Empty(t, fake.mutations())
	})

	t.Run("ambiguous name", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIGA(t)
		fake.seed(t, seededHRApp())
		fake.seed(t, seededHRApp())
		fake.seed(t, seededHRApp())

		_, err := fake.client(t).Reconciler().Reconcile(context.Background(), hrDesired(), true)
		require.Error(t, err)

		conflictErr := &gia.ConflictError{}
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, []string{"app-1", "app-2", "app-3"}, conflictErr.Candidates)
		assert.Empty(t, fake.mutations())
	})

	t.Run("name match is case sensitive", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIGA(t)
		seeded := seededHRApp()
		seeded["name"] = "hr feed"
		fake.seed(t, seeded)

		result, err := fake.client(t).Reconciler().Reconcile(context.Background(), hrDesired(), true)
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Equal(t, "app-2", result.ApplicationID)
	})

	t.Run("explicit id not found", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIGA(t)
		desired := hrDesired()
		desired.ID = "missing"

		_, err := fake.client(t).Reconciler().Reconcile(context.Background(), desired, true)
		require.Error(t, err)
		assert.True(t, gia.IsNotFound(err))
	})

	t.Run("explicit id skips lookup", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIGA(t)
		appID := fake.seed(t, seededHRApp())
		desired := hrDesired()
		desired.ID = appID

		_, err := fake.client(t).Reconciler().Plan(context.Background(), desired, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"GET /" + appID}, fake.callLog())
	})

	t.Run("invalid descriptor makes no call", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIGA(t)
		desired := hrDesired()
		desired.Name = " "

		_, err := fake.client(t).Reconciler().Reconcile(context.Background(), desired, true)

		validationErr := &gia.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "name", validationErr.Field)
		assert.Empty(t, fake.callLog())
	})
}

func TestReconciler_PartialProgress(t *testing.T) {
	t.Parallel()

	fake := newFakeIGA(t)
	appID := fake.seed(t, seededHRApp())
	client := fake.client(t)

	desired := hrDesired()
	desired.ObjectTypes["roles"] = gia.ObjectType{Type: gia.ObjectTypeRole}

	fake.failNext("POST /objectType", http.StatusBadRequest)

	_, err := client.Reconciler().Reconcile(context.Background(), desired, true)
	require.Error(t, err)

	partialErr := &gia.PartialProgressError{}
	require.ErrorAs(t, err, &partialErr)
	assert.Equal(t, []string{"UpdateApplication(" + appID + ")"}, operationKinds(partialErr.Applied))
	assert.Equal(t, "CreateObjectType(roles)", partialErr.Failed.String())
	assert.Equal(t, []string{"UpdateObjectType(groups)"}, operationKinds(partialErr.NotAttempted))

	remoteErr := &gia.RemoteError{}
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadRequest, remoteErr.StatusCode)

	result, err := client.Reconciler().Reconcile(context.Background(), desired, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateObjectType(roles)", "UpdateObjectType(groups)"}, operationKinds(result.Applied))
}

func TestReconciler_DeleteObjectType(t *testing.T) {
	t.Parallel()

	fake := newFakeIGA(t)
	appID := fake.seed(t, seededHRApp())
	client := fake.client(t)

	result, err := client.Reconciler().DeleteObjectType(context.Background(), appID, "legacy")
	require.NoError(t, err)

	assert.Equal(t, appID, result.ApplicationID)
	assert.Equal(t, []string{"DELETE /" + appID + "/objectType/legacy"}, fake.mutations())

	_, err = client.Reconciler().DeleteObjectType(context.Background(), appID, "legacy")
	require.Error(t, err)
	assert.True(t, gia.IsNotFound(err))

	_, err = client.Reconciler().DeleteObjectType(context.Background(), "", "legacy")
	assert.True(t, errors.As(err, new(*gia.ValidationError)))
}

func TestPropertyChanges(t *testing.T) {
	t.Parallel()

	want := map[string]gia.PropertyDescriptor{
		"a": {Type: "string"},
		"b": {Type: "number"},
	}
	have := map[string]gia.PropertyDescriptor{
		"b": {Type: "string"},
		"c": {Type: "boolean"},
	}

	changes := propertyChanges("x", want, have)
	require.Len(t, changes, 3)
	assert.Equal(t, gia.ChangeAdd, changes[0].Action)
	assert.Equal(t, gia.ChangeModify, changes[1].Action)
	assert.Equal(t, gia.ChangeRemove, changes[2].Action)
	assert.Equal(t, "objectTypes.x.properties.c", changes[2].Path)

	assert.Empty(t, propertyChanges("x", nil, map[string]gia.PropertyDescriptor{}))
	assert.Empty(t, propertyChanges("x", want, want))
}
