package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"telecine/internal/ipc"
)

func newSignCommand(ctx *commandContext) *cobra.Command {
	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Issue playback credentials for published content",
	}

	signCmd.AddCommand(newSignURLCommand(ctx))
	signCmd.AddCommand(newSignCookiesCommand(ctx))

	return signCmd
}

func newSignURLCommand(ctx *commandContext) *cobra.Command {
	var (
		manifestKey string
		ttlMinutes  int
		sourceIP    string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "url <source-type> <source-id>",
		Short: "Issue a signed playback URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SignPlayback(ipc.SignPlaybackRequest{
					SourceType:  args[0],
					SourceID:    args[1],
					ManifestKey: manifestKey,
					TTLMinutes:  ttlMinutes,
					SourceIP:    sourceIP,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Grant)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Method:  %s\n", resp.Grant.Method)
				fmt.Fprintf(out, "Expires: %s\n", resp.Grant.ExpiresAt)
				fmt.Fprintf(out, "URL:     %s\n", resp.Grant.URL)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&manifestKey, "manifest-key", "", "Explicit manifest key (defaults to the newest published manifest)")
	cmd.Flags().IntVar(&ttlMinutes, "ttl", 0, "Credential lifetime in minutes (0 uses the configured default)")
	cmd.Flags().StringVar(&sourceIP, "source-ip", "", "Restrict playback to this client IP")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the grant as JSON")
	return cmd
}

func newSignCookiesCommand(ctx *commandContext) *cobra.Command {
	var (
		manifestKey string
		ttlMinutes  int
		sourceIP    string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "cookies <source-type> <source-id>",
		Short: "Issue signed playback cookies covering a publish prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SignPlayback(ipc.SignPlaybackRequest{
					SourceType:  args[0],
					SourceID:    args[1],
					ManifestKey: manifestKey,
					TTLMinutes:  ttlMinutes,
					SourceIP:    sourceIP,
					Cookies:     true,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Grant)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Manifest: %s\n", resp.Grant.URL)
				if resp.Grant.CookieDomain != "" {
					fmt.Fprintf(out, "Domain:   %s\n", resp.Grant.CookieDomain)
				}
				fmt.Fprintf(out, "Expires:  %s\n", resp.Grant.ExpiresAt)
				for _, cookie := range resp.Grant.Cookies {
					fmt.Fprintf(out, "%s=%s\n", cookie.Name, cookie.Value)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&manifestKey, "manifest-key", "", "Explicit manifest key (defaults to the newest published manifest)")
	cmd.Flags().IntVar(&ttlMinutes, "ttl", 0, "Credential lifetime in minutes (0 uses the configured default)")
	cmd.Flags().StringVar(&sourceIP, "source-ip", "", "Restrict playback to this client IP")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the grant as JSON")
	return cmd
}
