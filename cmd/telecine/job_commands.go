package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"telecine/internal/ipc"
	"telecine/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage media jobs",
	}

	jobsCmd.AddCommand(newJobListCommand(ctx))
	jobsCmd.AddCommand(newJobShowCommand(ctx))
	jobsCmd.AddCommand(newJobSubmitCommand(ctx))
	jobsCmd.AddCommand(newJobCancelCommand(ctx))
	jobsCmd.AddCommand(newJobRetryCommand(ctx))
	jobsCmd.AddCommand(newJobClearCompletedCommand(ctx))
	jobsCmd.AddCommand(newJobHealthCommand(ctx))

	return jobsCmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(listStatuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Jobs)
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Type", "Source", "Status", "Progress", "Created"},
					buildJobListRows(resp.Jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit jobs as JSON")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobDescribe(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Job)
				}
				printJobDetail(cmd, resp.Job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit job as JSON")
	return cmd
}

func newJobSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		jobType      string
		sourceType   string
		sourceID     string
		sourceBucket string
		sourceKey    string
		outputBucket string
		outputPrefix string
		configJSON   string
		priority     int
		maxAttempts  int
		requestedBy  string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new media job",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := resolveConfigPayload(configJSON)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobSubmit(ipc.JobSubmitRequest{
					Type:         jobType,
					SourceType:   sourceType,
					SourceID:     sourceID,
					SourceBucket: sourceBucket,
					SourceKey:    sourceKey,
					OutputBucket: outputBucket,
					OutputPrefix: outputPrefix,
					Config:       payload,
					Priority:     priority,
					MaxAttempts:  maxAttempts,
					RequestedBy:  requestedBy,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued (%s for %s/%s)\n",
					resp.Job.ID, resp.Job.Type, resp.Job.SourceType, resp.Job.SourceID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", string(jobs.TypeTranscodeHLS), "Job type")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Source content type (episode, short, daily, asset)")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "Source content identifier")
	cmd.Flags().StringVar(&sourceBucket, "source-bucket", "", "Bucket holding the source object (defaults to the ingest bucket)")
	cmd.Flags().StringVar(&sourceKey, "source-key", "", "Object key of the source master")
	cmd.Flags().StringVar(&outputBucket, "output-bucket", "", "Override the publish bucket")
	cmd.Flags().StringVar(&outputPrefix, "output-prefix", "", "Override the publish key prefix")
	cmd.Flags().StringVar(&configJSON, "params", "", "Type-specific parameters as JSON, or @file to read from disk")
	cmd.Flags().IntVar(&priority, "priority", 0, "Scheduling priority (higher runs first)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt limit override (0 uses the configured default)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "Requester recorded on the job")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the accepted job as JSON")

	_ = cmd.MarkFlagRequired("source-type")
	_ = cmd.MarkFlagRequired("source-id")
	_ = cmd.MarkFlagRequired("source-key")
	return cmd
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobCancel(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", resp.Job.ID)
				return nil
			})
		},
	}
}

func newJobRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs (all failed jobs when no IDs are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				if id := strings.TrimSpace(arg); id != "" {
					ids = append(ids, id)
				}
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobRetry(ids)
				if err != nil {
					return err
				}
				if resp.Updated == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed jobs to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", resp.Updated)
				return nil
			})
		},
	}
}

func newJobClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobClearCompleted()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d completed job(s)\n", resp.Removed)
				return nil
			})
		},
	}
}

func newJobHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show job queue diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				health, err := client.JobHealth()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				rows := [][]string{
					{"Total", strconv.Itoa(health.Total)},
					{"Queued", strconv.Itoa(health.Queued)},
					{"Processing", strconv.Itoa(health.Processing)},
					{"Retrying", strconv.Itoa(health.Retrying)},
					{"Completed", strconv.Itoa(health.Completed)},
					{"Failed", strconv.Itoa(health.Failed)},
					{"Cancelled", strconv.Itoa(health.Cancelled)},
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit diagnostics as JSON")
	return cmd
}

func buildJobListRows(items []ipc.Job) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		source := item.SourceID
		if item.SourceType != "" {
			source = item.SourceType + "/" + item.SourceID
		}
		rows = append(rows, []string{
			shortID(item.ID),
			item.Type,
			source,
			statusDisplayName(item.Status),
			fmt.Sprintf("%d%%", item.Progress),
			item.CreatedAt,
		})
	}
	return rows
}

func printJobDetail(cmd *cobra.Command, job ipc.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:           %s\n", job.ID)
	fmt.Fprintf(out, "Type:         %s\n", job.Type)
	fmt.Fprintf(out, "Source:       %s/%s (s3://%s/%s)\n", job.SourceType, job.SourceID, job.SourceBucket, job.SourceKey)
	fmt.Fprintf(out, "Status:       %s\n", statusDisplayName(job.Status))
	fmt.Fprintf(out, "Progress:     %d%%\n", job.Progress)
	if job.Stage != "" {
		fmt.Fprintf(out, "Stage:        %s\n", job.Stage)
	}
	fmt.Fprintf(out, "Attempts:     %d/%d\n", job.Attempts, job.MaxAttempts)
	if job.Priority != 0 {
		fmt.Fprintf(out, "Priority:     %d\n", job.Priority)
	}
	if job.RequestedBy != "" {
		fmt.Fprintf(out, "Requested by: %s\n", job.RequestedBy)
	}
	if job.WorkerID != "" {
		fmt.Fprintf(out, "Worker:       %s\n", job.WorkerID)
	}
	if job.CreatedAt != "" {
		fmt.Fprintf(out, "Created:      %s\n", job.CreatedAt)
	}
	if job.StartedAt != "" {
		fmt.Fprintf(out, "Started:      %s\n", job.StartedAt)
	}
	if job.CompletedAt != "" {
		fmt.Fprintf(out, "Completed:    %s\n", job.CompletedAt)
	}
	if job.NextRetryAt != "" {
		fmt.Fprintf(out, "Next retry:   %s\n", job.NextRetryAt)
	}
	if job.Output != nil && job.Output.ManifestKey != "" {
		fmt.Fprintf(out, "Manifest:     s3://%s/%s\n", job.Output.ManifestBucket, job.Output.ManifestKey)
	}
	if job.ErrorCode != "" || job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:        [%s] %s\n", job.ErrorCode, job.ErrorMessage)
	}
}

// resolveConfigPayload accepts inline JSON or @path indirection.
func resolveConfigPayload(value string) (json.RawMessage, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(value, "@"))
		if err != nil {
			return nil, fmt.Errorf("read params file: %w", err)
		}
		value = string(data)
	}
	if !json.Valid([]byte(value)) {
		return nil, errors.New("params must be valid JSON")
	}
	return json.RawMessage(value), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
