package commands

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// NewObjectsCommand creates the object command group.
func NewObjectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "object",
		Aliases: []string{"objects", "object-type"},
		Short:   "Manage object types",
		Long:    "Inspect, add, change and delete the object types of an application",
	}

	cmd.AddCommand(newObjectsGetCommand())
	cmd.AddCommand(newObjectsAddCommand())
	cmd.AddCommand(newObjectsUpdateCommand())
	cmd.AddCommand(newObjectsDeleteCommand())
	cmd.AddCommand(newObjectsSchemaCommand())

	return cmd
}

func newObjectsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get APP_ID OBJECT_TYPE",
		Short: "Get an object type",
		Long:  "Display an object type and its properties",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			objectType, err := giaClient.ObjectTypes().Get(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to get object type: %w", err)
			}

			return render(cmd, objectType, func() error {
				return displayObjectTypeTable(cmd, objectType)
			})
		},
	}
}

func displayObjectTypeTable(cmd *cobra.Command, objectType *gia.ObjectType) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Object type %s (%s)\n", objectType.ID, objectType.Type)

	if len(objectType.Properties) == 0 {
		_, _ = fmt.Fprintln(out, "No properties defined")

		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Property", "Type", "Required", "Multivalued", "Display Name")

	for _, name := range slices.Sorted(maps.Keys(objectType.Properties)) {
		property := objectType.Properties[name]
		_ = table.Append(name, property.Type, fmt.Sprint(property.Required), fmt.Sprint(property.Multivalued),
			valueOrNA(property.DisplayName))
	}

	return renderTable(table)
}

type objectTypeOptions struct {
	kind        string
	properties  []string
	required    []string
	multivalued []string
	remove      []string
	dryRun      bool
}

func (o *objectTypeOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.properties, "property", nil, "property as NAME=TYPE (repeatable)")
	cmd.Flags().StringArrayVar(&o.required, "required", nil, "mark a property as required (repeatable)")
	cmd.Flags().StringArrayVar(&o.multivalued, "multivalued", nil, "mark a property as multivalued (repeatable)")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "print the plan without applying it")
}

// apply merges the flags into objectType.
func (o *objectTypeOptions) apply(objectType *gia.ObjectType) error {
	if o.kind != "" {
		objectType.Type = o.kind
	}

	if objectType.Properties == nil {
		objectType.Properties = map[string]gia.PropertyDescriptor{}
	}

	for _, value := range o.properties {
		name, kind, ok := strings.Cut(value, "=")
		name = strings.TrimSpace(name)
		kind = strings.TrimSpace(kind)

		if !ok || name == "" || kind == "" {
			return &gia.ValidationError{Field: "property", Reason: fmt.Sprintf("%q is not NAME=TYPE", value)}
		}

		property := objectType.Properties[name]
		property.Type = kind
		objectType.Properties[name] = property
	}

	flagged := map[string][]string{"required": o.required, "multivalued": o.multivalued}
	for flag, names := range flagged {
		for _, name := range names {
			property, ok := objectType.Properties[name]
			if !ok {
				return &gia.ValidationError{Field: flag, Reason: fmt.Sprintf("unknown property %q", name)}
			}

			if flag == "required" {
				property.Required = true
			} else {
				property.Multivalued = true
			}

			objectType.Properties[name] = property
		}
	}

	for _, name := range o.remove {
		delete(objectType.Properties, name)
	}

	return nil
}

func newObjectsAddCommand() *cobra.Command {
	opts := &objectTypeOptions{}

	cmd := &cobra.Command{
		Use:   "add APP_ID OBJECT_TYPE",
		Short: "Add an object type",
		Long:  "Add an object type with the given kind and properties to an application",
		Example: `  gia object add app-123 accounts --type account \
    --property userName=string --property groups=array --required userName --multivalued groups`,
		Args: cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.kind == "" {
				return &gia.ValidationError{Field: "type", Reason: "is required"}
			}

			return runObjectTypeChange(cmd, args[0], args[1], opts, false)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.kind, "type", "", "object type kind (account, group, resource, ...)")

	return cmd
}

func newObjectsUpdateCommand() *cobra.Command {
	opts := &objectTypeOptions{}

	cmd := &cobra.Command{
		Use:   "update APP_ID OBJECT_TYPE",
		Short: "Change the properties of an object type",
		Long: `Add, change or remove properties of an existing object type. The kind of
an object type cannot be changed once created.`,
		Args: cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObjectTypeChange(cmd, args[0], args[1], opts, true)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringArrayVar(&opts.remove, "remove-property", nil, "remove a property (repeatable)")

	return cmd
}

// runObjectTypeChange reconciles the application with one object type
// added or modified, so only the differences are sent.
func runObjectTypeChange(cmd *cobra.Command, appID, objectTypeID string, opts *objectTypeOptions, existing bool) error {
	ctx := cmd.Context()

	giaClient, err := createClient(ctx)
	if err != nil {
		return err
	}

	app, err := giaClient.Applications().Get(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to get application: %w", err)
	}

	objectType, found := app.ObjectTypes[objectTypeID]

	switch {
	case existing && !found:
		return fmt.Errorf("%s: %w", objectTypeID, gia.ErrObjectTypeNotFound)
	case !existing && found:
		return &gia.ConflictError{Reason: fmt.Sprintf("object type %q already exists", objectTypeID)}
	}

	objectType.ID = objectTypeID
	objectType.Properties = maps.Clone(objectType.Properties)

	err = opts.apply(&objectType)
	if err != nil {
		return err
	}

	desired := desiredFromRemote(app)
	desired.ObjectTypes[objectTypeID] = objectType

	plan, err := giaClient.Reconciler().Plan(ctx, desired, true)
	if err != nil {
		return fmt.Errorf("failed to plan changes: %w", err)
	}

	if opts.dryRun {
		return render(cmd, plan, func() error {
			return displayPlan(cmd, plan)
		})
	}

	result, err := giaClient.Reconciler().Apply(ctx, plan)
	if err != nil {
		return fmt.Errorf("failed to apply changes: %w", err)
	}

	return displayReconcileResult(cmd, plan, result)
}

// desiredFromRemote copies the modelled fields of app, leaving server-only
// fields to the reconciler's merge.
func desiredFromRemote(app *gia.Application) *gia.DesiredState {
	desired := &gia.DesiredState{
		ID:          app.ID,
		Name:        app.Name,
		Description: app.Description,
		OwnerIDs:    app.OwnerIDs,
		Icon:        app.Icon,
		ObjectTypes: make(map[string]gia.ObjectType, len(app.ObjectTypes)),
	}

	maps.Copy(desired.ObjectTypes, app.ObjectTypes)

	return desired
}

func newObjectsDeleteCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "delete APP_ID OBJECT_TYPE",
		Short: "Delete an object type",
		Long:  "Delete an object type and the records loaded into it",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return constants.ErrDeletionNotConfirmed
			}

			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			_, err = giaClient.Reconciler().DeleteObjectType(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to delete object type: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted object type %s from %s\n", args[1], args[0])

			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm deletion")

	return cmd
}

func newObjectsSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema APP_ID OBJECT_TYPE",
		Short: "Show the server-side schema of an object type",
		Long:  "Display the schema document the server derives for an object type",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			schema, err := giaClient.ObjectTypes().Schema(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to get schema: %w", err)
			}

			return render(cmd, schema, func() error {
				return writeJSON(cmd.OutOrStdout(), schema)
			})
		},
	}
}
