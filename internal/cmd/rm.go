package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketdir/pkg/vdir"
)

var rmCmd = &cobra.Command{
	Use:   "rm <uri>",
	Short: "Delete an object or, with -r, a directory",
	Long: `Delete an object, or with -r every member of a directory in one bulk request.

Deleting an empty or missing directory succeeds and does nothing.

Examples:
  bucketdir rm -r s3://photos/cp
  bucketdir rm s3://photos/cp/a.png`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

var rmRecursive bool

func init() {
	rootCmd.AddCommand(rmCmd)

	rmCmd.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "Delete every member of the directory")
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	u, err := exactRemote(args[0])
	if err != nil {
		return err
	}

	d, client, err := openDriver(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if rmRecursive {
		prefix, err := remoteDir(u)
		if err != nil {
			return err
		}
		rep, err := d.DeleteDirectory(ctx, u.Bucket, prefix)
		return renderReport(cmd, rep, err)
	}

	if u.IsPrefix() {
		return exitError(foundry.ExitInvalidArgument, "rm needs -r to delete a directory", fmt.Errorf("%s is a directory", u))
	}
	rec, err := d.DeleteFile(ctx, u.Bucket, u.Key)
	return renderReceipt(cmd, vdir.OpDelete, u.Bucket, u.Key, "", rec, err)
}
