package gia_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

func TestApplication_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *gia.Application {
		return &gia.Application{
			Name: "HR Feed",
			ObjectTypes: map[string]gia.ObjectType{
				"accounts": {
					ID:   "accounts",
					Type: "account",
					Properties: map[string]gia.PropertyDescriptor{
						"userName": {Type: "string", Required: true},
						"joined":   {Type: "DateTime"},
					},
				},
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(app *gia.Application)
		wantField string
	}{
		{name: "valid", mutate: func(*gia.Application) {}},
		{name: "blank name", mutate: func(app *gia.Application) { app.Name = "  " }, wantField: "name"},
		{
			name: "id mismatch",
			mutate: func(app *gia.Application) {
				app.ObjectTypes["accounts"] = gia.ObjectType{ID: "users", Type: "account"}
			},
			wantField: "object_types.accounts.id",
		},
		{
			name: "missing object type kind",
			mutate: func(app *gia.Application) {
				app.ObjectTypes["groups"] = gia.ObjectType{}
			},
			wantField: "object_types.groups.type",
		},
		{
			name: "unsupported property type",
			mutate: func(app *gia.Application) {
				app.ObjectTypes["accounts"].Properties["photo"] = gia.PropertyDescriptor{Type: "blob"}
			},
			wantField: "object_types.accounts.properties.photo.type",
		},
		{
			name: "missing property type",
			mutate: func(app *gia.Application) {
				app.ObjectTypes["accounts"].Properties["photo"] = gia.PropertyDescriptor{}
			},
			wantField: "object_types.accounts.properties.photo.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := valid()
			tt.mutate(app)

			err := app.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)

				return
			}

			validationErr := &gia.ValidationError{}
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantField, validationErr.Field)
		})
	}
}

func TestApplication_ObjectTypeIDs(t *testing.T) {
	t.Parallel()

	app := &gia.Application{ObjectTypes: map[string]gia.ObjectType{"users": {}, "accounts": {}, "groups": {}}}
	assert.Equal(t, []string{"accounts", "groups", "users"}, app.ObjectTypeIDs())
}

func TestJobState(t *testing.T) {
	t.Parallel()

	assert.True(t, gia.JobStateComplete.Terminal())
	assert.True(t, gia.JobStateFailed.Terminal())
	assert.False(t, gia.JobStateQueued.Terminal())
	assert.False(t, gia.JobStateUnknown.Terminal())

	job := &gia.UploadJob{State: gia.JobStateComplete, FailureCount: 2}
	assert.True(t, job.HasFailures())

	job = &gia.UploadJob{State: gia.JobStateComplete}
	assert.False(t, job.HasFailures())
}

func TestOperation_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CreateApplication", gia.Operation{Kind: gia.OperationCreateApplication}.String())
	assert.Equal(t, "UpdateApplication(app-1)",
		gia.Operation{Kind: gia.OperationUpdateApplication, ApplicationID: "app-1"}.String())
	assert.Equal(t, "DeleteObjectType(legacy)",
		gia.Operation{Kind: gia.OperationDeleteObjectType, ApplicationID: "app-1", ObjectTypeID: "legacy"}.String())
	assert.True(t, (*gia.Plan)(nil).Empty())
}

func TestRecord_ID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "u1", gia.Record{"id": "u1"}.ID())
	assert.Empty(t, gia.Record{"id": 7}.ID())
}
