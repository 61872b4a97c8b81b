package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/internal/retry"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

const defaultJSONIndent = "  "

// PrintError writes a failed command's error to w, with a hint when the
// failure was transient and the command can simply be run again.
func PrintError(w io.Writer, err error) {
	_, _ = fmt.Fprintln(w, "Error:", err)

	if retry.IsRetryable(err) {
		_, _ = fmt.Fprintln(w, constants.TransientFailureHint)
	}
}

// outputFormat returns the --output value, defaulting to table.
func outputFormat() (string, error) {
	output := strings.ToLower(viper.GetString("output"))

	switch output {
	case "", constants.FormatTable:
		return constants.FormatTable, nil
	case constants.FormatJSON, constants.FormatYAML:
		return output, nil
	default:
		return "", fmt.Errorf("%w: %s", constants.ErrUnsupportedOutput, output)
	}
}

// render writes data as JSON or YAML, or calls table for table output.
func render(cmd *cobra.Command, data interface{}, table func() error) error {
	output, err := outputFormat()
	if err != nil {
		return err
	}

	switch output {
	case constants.FormatJSON:
		return writeJSON(cmd.OutOrStdout(), data)
	case constants.FormatYAML:
		return writeYAML(cmd.OutOrStdout(), data)
	default:
		return table()
	}
}

func writeJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", defaultJSONIndent)

	err := encoder.Encode(data)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

func writeYAML(w io.Writer, data interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	err := encoder.Encode(data)
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return encoder.Close()
}

func renderTable(table *tablewriter.Table) error {
	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// displayPlan prints a reconciliation plan as a table of changes.
func displayPlan(cmd *cobra.Command, plan *gia.Plan) error {
	out := cmd.OutOrStdout()

	if plan.Empty() {
		_, _ = fmt.Fprintf(out, "Application '%s' is up to date\n", plan.ApplicationName)

		return nil
	}

	_, _ = fmt.Fprintf(out, "Plan for application '%s' (%d operations):\n", plan.ApplicationName, len(plan.Operations))

	table := tablewriter.NewWriter(out)
	table.Header("#", "Operation", "Path", "Action", "Remote", "Desired")

	for i, operation := range plan.Operations {
		if len(operation.Changes) == 0 {
			_ = table.Append(fmt.Sprint(i+1), operation.String(), "", "", "", "")

			continue
		}

		for _, change := range operation.Changes {
			_ = table.Append(fmt.Sprint(i+1), operation.String(), change.Path, string(change.Action),
				formatValue(change.Remote), formatValue(change.Desired))
		}
	}

	return renderTable(table)
}

func formatValue(value interface{}) string {
	if value == nil {
		return ""
	}

	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}

	return string(data)
}

// displayJob prints the state of an upload job.
func displayJob(cmd *cobra.Command, job *gia.UploadJob) error {
	return render(cmd, job, func() error {
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header("Property", "Value")

		_ = table.Append("Upload ID", job.UploadID)
		_ = table.Append("Application", job.ApplicationID)
		_ = table.Append("Object Type", valueOrNA(job.ObjectTypeID))
		_ = table.Append("State", string(job.State))
		_ = table.Append("Remote Status", valueOrNA(job.RemoteStatus))
		_ = table.Append("Total", fmt.Sprint(job.TotalCount))
		_ = table.Append("Succeeded", fmt.Sprint(job.SuccessCount))
		_ = table.Append("Failed", fmt.Sprint(job.FailureCount))

		return renderTable(table)
	})
}
