package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketdir/pkg/output"
	"github.com/3leaps/bucketdir/pkg/vdir"
)

var lsCmd = &cobra.Command{
	Use:   "ls [uri]",
	Short: "List the keys of a directory",
	Long: `List the member keys of a directory.

A key is a member of directory "d" when it starts with "d/". Zero-byte
directory markers (keys ending in "/") are not listed. The store request is
capped at --max-keys before filtering, so a short listing may be incomplete
unless --all follows every page.

Examples:
  bucketdir ls s3://photos/cp/
  bucketdir ls cp --bucket photos --all
  bucketdir ls 's3://photos/cp/**/*.png'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var lsMatch string

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().Int("max-keys", 0, "Keys requested from the store (default from config)")
	lsCmd.Flags().Bool("all", false, "Follow continuation tokens past the first page")
	lsCmd.Flags().StringVar(&lsMatch, "match", "", "Only print keys matching this doublestar glob")
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	arg := ""
	if len(args) == 1 {
		arg = args[0]
	}
	u := &ObjectURI{}
	if arg != "" {
		var err error
		if u, err = parseRemote(arg); err != nil {
			return err
		}
	}
	pattern := u.Pattern
	if lsMatch != "" {
		pattern = lsMatch
	}

	d, client, err := openDriver(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	bucket, err := vdir.ResolveBucket(u.Bucket, appConfig.Bucket)
	if err != nil {
		return renderReport(cmd, nil, err)
	}

	prefix, err := remoteDir(u)
	if err != nil {
		return err
	}
	keys, err := d.List(ctx, bucket, prefix, 0)
	if err != nil {
		return renderReport(cmd, nil, err)
	}
	keys, err = matchKeys(keys, pattern)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid pattern", err)
	}

	if jsonOutput {
		w, done := createWriter(cmd)
		defer done()
		for _, k := range keys {
			if err := w.WriteKey(ctx, &output.KeyRecord{Bucket: bucket, Key: k}); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write key", err)
			}
		}
		return nil
	}
	for _, k := range keys {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), k); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write key", err)
		}
	}
	return nil
}
