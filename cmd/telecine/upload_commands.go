package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"telecine/internal/ipc"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Manage multipart upload sessions",
	}

	uploadCmd.AddCommand(newUploadInitCommand(ctx))
	uploadCmd.AddCommand(newUploadCompleteCommand(ctx))
	uploadCmd.AddCommand(newUploadAbortCommand(ctx))

	return uploadCmd
}

func newUploadInitCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceType  string
		sourceID    string
		filename    string
		contentType string
		totalBytes  int64
		direct      bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Open an upload session and print presigned part URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filename = filepath.Base(strings.TrimSpace(filename))
			return ctx.withClient(func(client *ipc.Client) error {
				if direct {
					resp, err := client.UploadPresign(ipc.UploadPresignRequest{
						SourceType:  sourceType,
						SourceID:    sourceID,
						Filename:    filename,
						ContentType: contentType,
						TotalBytes:  totalBytes,
					})
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, resp)
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Destination: s3://%s/%s\n", resp.Bucket, resp.Key)
					fmt.Fprintf(out, "Expires:     %s\n", resp.ExpiresAt)
					fmt.Fprintf(out, "PUT URL:     %s\n", resp.URL)
					return nil
				}

				resp, err := client.UploadInitiate(ipc.UploadInitiateRequest{
					SourceType:  sourceType,
					SourceID:    sourceID,
					Filename:    filename,
					ContentType: contentType,
					TotalBytes:  totalBytes,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session:     %s\n", resp.SessionID)
				fmt.Fprintf(out, "Upload ID:   %s\n", resp.UploadID)
				fmt.Fprintf(out, "Destination: s3://%s/%s\n", resp.Bucket, resp.Key)
				fmt.Fprintf(out, "Parts:       %d x %d bytes (last %d)\n", resp.PartCount, resp.PartSize, resp.LastPartSize)
				fmt.Fprintf(out, "Expires:     %s\n", resp.ExpiresAt)
				rows := make([][]string, 0, len(resp.PartURLs))
				for _, part := range resp.PartURLs {
					rows = append(rows, []string{strconv.Itoa(int(part.Number)), part.URL})
				}
				table := renderTable([]string{"Part", "URL"}, rows, []columnAlignment{alignRight, alignLeft})
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceType, "source-type", "", "Source content type (episode, short, daily, asset)")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "Source content identifier")
	cmd.Flags().StringVar(&filename, "filename", "", "Name of the file being uploaded")
	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type of the file")
	cmd.Flags().Int64Var(&totalBytes, "size", 0, "Total file size in bytes")
	cmd.Flags().BoolVar(&direct, "direct", false, "Issue a single presigned PUT instead of a multipart session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the session as JSON")

	_ = cmd.MarkFlagRequired("source-type")
	_ = cmd.MarkFlagRequired("source-id")
	_ = cmd.MarkFlagRequired("filename")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func newUploadCompleteCommand(ctx *commandContext) *cobra.Command {
	var (
		uploadID string
		key      string
	)

	cmd := &cobra.Command{
		Use:   "complete <part-number>:<etag> [...]",
		Short: "Assemble a finished multipart upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, err := parseUploadParts(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UploadComplete(ipc.UploadCompleteRequest{
					UploadID: uploadID,
					Key:      key,
					Parts:    parts,
				})
				if err != nil {
					return err
				}
				session := resp.Session
				fmt.Fprintf(cmd.OutOrStdout(), "Upload complete: s3://%s/%s (%d bytes)\n",
					session.Bucket, session.Key, session.TotalBytes)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uploadID, "upload-id", "", "Upload identifier returned by init")
	cmd.Flags().StringVar(&key, "key", "", "Destination object key returned by init")
	_ = cmd.MarkFlagRequired("upload-id")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newUploadAbortCommand(ctx *commandContext) *cobra.Command {
	var (
		uploadID string
		key      string
	)

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Release a multipart upload session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UploadAbort(uploadID, key)
				if err != nil {
					return err
				}
				if resp.Aborted {
					fmt.Fprintln(cmd.OutOrStdout(), "Upload aborted")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Upload was not active")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&uploadID, "upload-id", "", "Upload identifier returned by init")
	cmd.Flags().StringVar(&key, "key", "", "Destination object key returned by init")
	_ = cmd.MarkFlagRequired("upload-id")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

// parseUploadParts converts "number:etag" arguments into upload parts.
func parseUploadParts(args []string) ([]ipc.UploadPart, error) {
	parts := make([]ipc.UploadPart, 0, len(args))
	for _, arg := range args {
		number, etag, ok := strings.Cut(strings.TrimSpace(arg), ":")
		if !ok || etag == "" {
			return nil, fmt.Errorf("invalid part %q: expected <number>:<etag>", arg)
		}
		parsed, err := strconv.ParseInt(number, 10, 32)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("invalid part number in %q", arg)
		}
		parts = append(parts, ipc.UploadPart{Number: int32(parsed), ETag: etag})
	}
	return parts, nil
}
