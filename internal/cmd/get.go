package cmd

import (
	"fmt"
	"path"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketdir/pkg/vdir"
)

var getCmd = &cobra.Command{
	Use:   "get <uri> [local-path]",
	Short: "Download an object or, with -r, a directory",
	Long: `Download an object, or with -r every member of a directory.

Directory downloads mirror the key layout under the local root: "cp/y/z.png"
is written to "<root>/cp/y/z.png". Local directories are created as needed
and existing ones are reused, so a download can be rerun. A directory that
cannot be created fails only the keys beneath it.

Examples:
  bucketdir get -r s3://photos/cp ./backup
  bucketdir get s3://photos/cp/a.png a.png`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

var getRecursive bool

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().BoolVarP(&getRecursive, "recursive", "r", false, "Download every member of the directory")
	getCmd.Flags().String("dir-perm", "", "Permissions for created directories, octal (default 0755)")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	u, err := exactRemote(args[0])
	if err != nil {
		return err
	}
	local := ""
	if len(args) == 2 {
		local = args[1]
	}

	d, client, err := openDriver(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if getRecursive {
		if local == "" {
			local = "."
		}
		prefix, err := remoteDir(u)
		if err != nil {
			return err
		}
		rep, err := d.DownloadDirectory(ctx, u.Bucket, prefix, local)
		return renderReport(cmd, rep, err)
	}

	if u.IsPrefix() {
		return exitError(foundry.ExitInvalidArgument, "get needs -r to download a directory", fmt.Errorf("%s is a directory", u))
	}
	if local == "" {
		local = path.Base(u.Key)
	}
	rec, err := d.GetFile(ctx, u.Bucket, u.Key, local)
	return renderReceipt(cmd, vdir.OpDownload, u.Bucket, u.Key, local, rec, err)
}
