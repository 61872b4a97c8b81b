package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/gia-client/internal/client"
	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/internal/descriptor"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// NewAppsCommand creates the app command group.
func NewAppsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "app",
		Aliases: []string{"apps", "application"},
		Short:   "Manage disconnected applications",
		Long:    "List, inspect, reconcile and delete disconnected governance applications",
	}

	cmd.AddCommand(newAppsListCommand())
	cmd.AddCommand(newAppsGetCommand())
	cmd.AddCommand(newAppsCreateCommand())
	cmd.AddCommand(newAppsUpdateCommand())
	cmd.AddCommand(newAppsDeleteCommand())

	return cmd
}

func newAppsListCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		Long:  "List every disconnected application, optionally filtered by exact name",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			var opts *gia.ListOptions
			if name != "" {
				opts = &gia.ListOptions{QueryFilter: client.NameFilter(name)}
			}

			apps, err := client.CollectAll(giaClient.Applications().List(ctx, opts))
			if err != nil {
				return fmt.Errorf("failed to list applications: %w", err)
			}

			return render(cmd, apps, func() error {
				return displayApplicationsTable(cmd, apps)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "filter by application name")

	return cmd
}

func displayApplicationsTable(cmd *cobra.Command, apps []*gia.Application) error {
	if len(apps) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No applications found")

		return nil
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("ID", "Name", "Object Types", "Owners")

	for _, app := range apps {
		objectTypes := strings.Join(app.ObjectTypeIDs(), ", ")
		_ = table.Append(app.ID, app.Name, valueOrNA(objectTypes), valueOrNA(strings.Join(app.OwnerIDs, ", ")))
	}

	return renderTable(table)
}

func newAppsGetCommand() *cobra.Command {
	var export string

	cmd := &cobra.Command{
		Use:   "get APP_ID",
		Short: "Get application details",
		Long:  "Display an application and its object types, or export it as a descriptor file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			app, err := giaClient.Applications().Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get application: %w", err)
			}

			if export != "" {
				data, err := descriptor.Export(app, descriptor.Format(strings.ToLower(export)))
				if err != nil {
					return err //nolint:wrapcheck // already describes the format
				}

				_, err = cmd.OutOrStdout().Write(data)

				return err //nolint:wrapcheck
			}

			return render(cmd, app, func() error {
				return displayApplicationTable(cmd, app)
			})
		},
	}

	cmd.Flags().StringVar(&export, "export", "", "write the application as a descriptor (yaml, json, toml)")

	return cmd
}

func displayApplicationTable(cmd *cobra.Command, app *gia.Application) error {
	out := cmd.OutOrStdout()

	table := tablewriter.NewWriter(out)
	table.Header("Property", "Value")

	_ = table.Append("ID", app.ID)
	_ = table.Append("Name", app.Name)
	_ = table.Append("Description", valueOrNA(app.Description))
	_ = table.Append("Owners", valueOrNA(strings.Join(app.OwnerIDs, ", ")))
	_ = table.Append("Icon", valueOrNA(app.Icon))

	err := renderTable(table)
	if err != nil {
		return err
	}

	if len(app.ObjectTypes) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(out, "\nObject types:")

	types := tablewriter.NewWriter(out)
	types.Header("ID", "Type", "Properties")

	for _, id := range app.ObjectTypeIDs() {
		objectType := app.ObjectTypes[id]
		_ = types.Append(id, objectType.Type, fmt.Sprint(len(objectType.Properties)))
	}

	return renderTable(types)
}

type reconcileOptions struct {
	file    string
	upsert  bool
	dryRun  bool
	loads   []string
	wait    bool
	timeout time.Duration
}

func (o *reconcileOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "application descriptor (.yaml, .json or .toml)")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "print the plan without applying it")
	cmd.Flags().StringArrayVar(&o.loads, "load", nil, "upload OBJECT_TYPE=FILE after reconciling (repeatable)")
	cmd.Flags().BoolVar(&o.wait, "wait", false, "wait for uploads started with --load to finish")
	cmd.Flags().DurationVar(&o.timeout, "timeout", constants.DefaultJobPollTimeout, "maximum time to wait for uploads")
}

func newAppsCreateCommand() *cobra.Command {
	opts := &reconcileOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an application from a descriptor",
		Long: `Create the application described by --file together with its object types.

Without --upsert the command fails if an application with the same name
exists. With --upsert the existing application is updated instead.`,
		Example: `  gia app create -f hr-feed.yaml
  gia app create -f hr-feed.yaml --upsert --load accounts=accounts.csv --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts, "")
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.upsert, "upsert", false, "update the application if one with the same name exists")

	return cmd
}

func newAppsUpdateCommand() *cobra.Command {
	opts := &reconcileOptions{upsert: true}

	cmd := &cobra.Command{
		Use:   "update APP_ID",
		Short: "Update an application from a descriptor",
		Long: `Bring APP_ID in line with the descriptor in --file. Only the differences
are sent. Object types present remotely but absent from the descriptor
are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts, args[0])
		},
	}

	opts.register(cmd)

	return cmd
}

func runReconcile(cmd *cobra.Command, opts *reconcileOptions, appID string) error {
	if opts.file == "" {
		return constants.ErrFileRequired
	}

	loads, err := parseLoadSpecs(opts.loads)
	if err != nil {
		return err
	}

	for _, load := range loads {
		_, err = datasetFromFile(load.path)
		if err != nil {
			return err
		}
	}

	desired, err := descriptor.Load(opts.file)
	if err != nil {
		return fmt.Errorf("failed to load descriptor: %w", err)
	}

	if appID != "" {
		desired.ID = appID
	}

	ctx := cmd.Context()

	giaClient, err := createClient(ctx)
	if err != nil {
		return err
	}

	plan, err := giaClient.Reconciler().Plan(ctx, desired, opts.upsert)
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

	err = displayReconcileResult(cmd, plan, result)
	if err != nil {
		return err
	}

	for _, load := range loads {
		err = runLoad(ctx, cmd, giaClient, result.ApplicationID, load.objectType, load.path, opts.wait, opts.timeout)
		if err != nil {
			return err
		}
	}

	return nil
}

func displayReconcileResult(cmd *cobra.Command, plan *gia.Plan, result *gia.ReconcileResult) error {
	output, err := outputFormat()
	if err != nil {
		return err
	}

	if output != constants.FormatTable {
		return render(cmd, result, nil)
	}

	out := cmd.OutOrStdout()

	switch {
	case result.Created:
		_, _ = fmt.Fprintf(out, "Created application '%s' (%s)\n", plan.ApplicationName, result.ApplicationID)
	case len(result.Applied) == 0:
		_, _ = fmt.Fprintf(out, "Application '%s' (%s) is up to date\n", plan.ApplicationName, result.ApplicationID)

		return nil
	default:
		_, _ = fmt.Fprintf(out, "Updated application '%s' (%s)\n", plan.ApplicationName, result.ApplicationID)
	}

	for _, operation := range result.Applied {
		_, _ = fmt.Fprintf(out, "  %s\n", operation)
	}

	return nil
}

type loadSpec struct {
	objectType string
	path       string
}

// parseLoadSpecs parses repeated OBJECT_TYPE=FILE values.
func parseLoadSpecs(values []string) ([]loadSpec, error) {
	specs := make([]loadSpec, 0, len(values))

	for _, value := range values {
		objectType, path, ok := strings.Cut(value, "=")
		objectType = strings.TrimSpace(objectType)
		path = strings.TrimSpace(path)

		if !ok || objectType == "" || path == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidLoadSpec, value)
		}

		specs = append(specs, loadSpec{objectType: objectType, path: path})
	}

	return specs, nil
}

func newAppsDeleteCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "delete APP_ID",
		Short: "Delete an application",
		Long:  "Delete an application and every object type and record it holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return constants.ErrDeletionNotConfirmed
			}

			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			err = giaClient.Applications().Delete(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to delete application: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted application %s\n", args[0])

			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm deletion")

	return cmd
}
