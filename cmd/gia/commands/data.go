package commands

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/gia-client/internal/client"
	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

const exportCSV = "csv"

// NewDataCommand creates the data command group.
func NewDataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Load and inspect application data",
		Long:  "Upload datasets into object types, follow upload jobs and read loaded records",
	}

	cmd.AddCommand(newDataLoadCommand())
	cmd.AddCommand(newDataStatusCommand())
	cmd.AddCommand(newDataWaitCommand())
	cmd.AddCommand(newDataFailuresCommand())
	cmd.AddCommand(newDataFilesCommand())
	cmd.AddCommand(newDataRecordsCommand("accounts", "account"))
	cmd.AddCommand(newDataRecordsCommand("resources", "resource"))

	return cmd
}

func newDataLoadCommand() *cobra.Command {
	var (
		objectType string
		file       string
		wait       bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "load APP_ID",
		Short: "Upload a dataset",
		Long: `Upload a CSV file with a header row into an object type of APP_ID.

The upload is processed asynchronously. Use --wait to follow it until it
completes, or 'gia data status' later.`,
		Example: "  gia data load app-123 --object-type accounts --file accounts.csv --wait",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if objectType == "" {
				return constants.ErrObjectTypeRequired
			}

			if file == "" {
				return constants.ErrFileRequired
			}

			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			return runLoad(ctx, cmd, giaClient, args[0], objectType, file, wait, timeout)
		},
	}

	cmd.Flags().StringVarP(&objectType, "object-type", "t", "", "target object type ID")
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file to upload")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the upload to finish")
	cmd.Flags().DurationVar(&timeout, "timeout", constants.DefaultJobPollTimeout, "maximum time to wait")

	return cmd
}

// runLoad submits path and optionally waits for the job.
func runLoad(
	ctx context.Context,
	cmd *cobra.Command,
	giaClient gia.Client,
	appID, objectType, path string,
	wait bool,
	timeout time.Duration,
) error {
	dataset, err := datasetFromFile(path)
	if err != nil {
		return err
	}

	job, err := giaClient.Jobs().Submit(ctx, appID, objectType, dataset)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", dataset.Name, err)
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Uploaded %s (%s) to %s/%s as upload %s\n",
		dataset.Name, units.HumanSize(float64(dataset.Size)), appID, objectType, job.UploadID)

	if !wait {
		return displayJob(cmd, job)
	}

	return waitAndReport(ctx, cmd, giaClient, job, timeout)
}

func waitAndReport(ctx context.Context, cmd *cobra.Command, giaClient gia.Client, job *gia.UploadJob, timeout time.Duration) error {
	uploadID := job.UploadID

	job, err := giaClient.Jobs().WaitUntilTerminal(ctx, job, timeout, 0)
	if err != nil {
		return fmt.Errorf("failed to wait for upload %s: %w", uploadID, err)
	}

	err = displayJob(cmd, job)
	if err != nil {
		return err
	}

	return jobOutcome(ctx, cmd, giaClient, job)
}

// jobOutcome turns a finished job into the command's exit status and
// previews row failures on stderr.
func jobOutcome(ctx context.Context, cmd *cobra.Command, giaClient gia.Client, job *gia.UploadJob) error {
	if !job.State.Terminal() {
		return fmt.Errorf("upload %s is %s: %w", job.UploadID, job.State, constants.ErrUploadNotTerminal)
	}

	if !job.HasFailures() {
		return nil
	}

	previewFailures(ctx, cmd.ErrOrStderr(), giaClient, job)

	if job.State == gia.JobStateFailed {
		return fmt.Errorf("upload %s: %w", job.UploadID, constants.ErrUploadFailed)
	}

	return fmt.Errorf("upload %s: %d of %d rows: %w",
		job.UploadID, job.FailureCount, job.TotalCount, constants.ErrUploadHasFailures)
}

func previewFailures(ctx context.Context, w io.Writer, giaClient gia.Client, job *gia.UploadJob) {
	shown := 0

	for failure, err := range giaClient.Jobs().Failures(ctx, job) {
		if err != nil {
			_, _ = fmt.Fprintf(w, "could not fetch failures: %v\n", err)

			return
		}

		if shown == constants.FailurePreviewLimit {
			_, _ = fmt.Fprintf(w, "... more failures, see 'gia data failures %s %s'\n", job.ApplicationID, job.UploadID)

			return
		}

		_, _ = fmt.Fprintf(w, "row %d: %s\n", failure.Row, describeFailure(failure))
		shown++
	}
}

func describeFailure(failure gia.FailureRecord) string {
	if failure.Field == "" {
		return failure.Message
	}

	return failure.Field + ": " + failure.Message
}

// datasetFromFile opens path once per transmission attempt.
func datasetFromFile(path string) (gia.Dataset, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return gia.Dataset{}, fmt.Errorf("file not accessible: %w", err)
	}

	if !info.Mode().IsRegular() {
		return gia.Dataset{}, fmt.Errorf("%s: %w", path, constants.ErrNotRegularFile)
	}

	return gia.Dataset{
		Name: filepath.Base(cleanPath),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(cleanPath) //nolint:wrapcheck
		},
	}, nil
}

func newDataStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status APP_ID UPLOAD_ID",
		Short: "Show the state of an upload",
		Long:  "Poll an upload job once and display its state and row counts",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			job, err := giaClient.Jobs().Poll(ctx, giaClient.Jobs().Resume(args[0], args[1]))
			if err != nil {
				return fmt.Errorf("failed to get upload status: %w", err)
			}

			return displayJob(cmd, job)
		},
	}
}

func newDataWaitCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait APP_ID UPLOAD_ID",
		Short: "Wait for an upload to finish",
		Long: `Poll an upload job until it completes or fails. The command exits with
an error if the job failed, reported row failures, or did not finish
within --timeout.`,
		Args: cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			return waitAndReport(ctx, cmd, giaClient, giaClient.Jobs().Resume(args[0], args[1]), timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", constants.DefaultJobPollTimeout, "maximum time to wait")

	return cmd
}

func newDataFailuresCommand() *cobra.Command {
	var (
		export string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "failures APP_ID UPLOAD_ID",
		Short: "List row failures of an upload",
		Long:  "List the rows an upload job rejected, optionally as CSV for correction and reload",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			job := giaClient.Jobs().Resume(args[0], args[1])

			failures := make([]gia.FailureRecord, 0)

			for failure, err := range giaClient.Jobs().Failures(ctx, job) {
				if err != nil {
					return fmt.Errorf("failed to list upload failures: %w", err)
				}

				failures = append(failures, failure)
				if limit > 0 && len(failures) == limit {
					break
				}
			}

			switch strings.ToLower(export) {
			case "":
				return render(cmd, failures, func() error {
					return displayFailuresTable(cmd, failures)
				})
			case exportCSV:
				return writeFailuresCSV(cmd.OutOrStdout(), failures)
			default:
				return fmt.Errorf("%w: %s", constants.ErrUnsupportedOutput, export)
			}
		},
	}

	cmd.Flags().StringVar(&export, "export", "", "write failures in the given format (csv)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of failures to fetch (0 for all)")

	return cmd
}

func displayFailuresTable(cmd *cobra.Command, failures []gia.FailureRecord) error {
	if len(failures) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No failures reported")

		return nil
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Row", "Field", "Message")

	for _, failure := range failures {
		_ = table.Append(strconv.Itoa(failure.Row), valueOrNA(failure.Field), failure.Message)
	}

	return renderTable(table)
}

func writeFailuresCSV(w io.Writer, failures []gia.FailureRecord) error {
	writer := csv.NewWriter(w)

	err := writer.Write([]string{"row", "field", "message"})
	if err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	for _, failure := range failures {
		err = writer.Write([]string{strconv.Itoa(failure.Row), failure.Field, failure.Message})
		if err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
	}

	writer.Flush()

	return writer.Error() //nolint:wrapcheck
}

func newDataFilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "files APP_ID",
		Short: "List uploaded files",
		Long:  "List the upload history of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			files, err := giaClient.Uploads().Files(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to list uploaded files: %w", err)
			}

			return render(cmd, files, func() error {
				if len(files) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No files uploaded")

					return nil
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.Header("ID", "File", "Object Type", "Status", "Uploaded")

				for _, file := range files {
					_ = table.Append(file.ID, valueOrNA(file.FileName), valueOrNA(file.ObjectType),
						valueOrNA(file.Status), valueOrNA(file.UploadedDate))
				}

				return renderTable(table)
			})
		},
	}
}

// newDataRecordsCommand lists or gets accounts or resources.
func newDataRecordsCommand(use, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " APP_ID [ID]",
		Short: "List or get loaded " + use,
		Long:  "List the " + use + " loaded into an application, or show one " + kind + " by ID",
		Args:  cobra.RangeArgs(1, 2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			giaClient, err := createClient(ctx)
			if err != nil {
				return err
			}

			records := giaClient.Records()

			if len(args) == 2 { //nolint:mnd
				get := records.GetAccount
				if kind == "resource" {
					get = records.GetResource
				}

				record, err := get(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("failed to get %s: %w", kind, err)
				}

				return render(cmd, record, func() error {
					return writeJSON(cmd.OutOrStdout(), record)
				})
			}

			list := records.ListAccounts
			if kind == "resource" {
				list = records.ListResources
			}

			all, err := client.CollectAll(list(ctx, args[0]))
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", use, err)
			}

			return render(cmd, all, func() error {
				return displayRecordsTable(cmd, all)
			})
		},
	}
}

func displayRecordsTable(cmd *cobra.Command, records []gia.Record) error {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No records found")

		return nil
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("ID", "Name")

	for _, record := range records {
		name, _ := record["name"].(string)
		_ = table.Append(valueOrNA(record.ID()), valueOrNA(name))
	}

	return renderTable(table)
}
