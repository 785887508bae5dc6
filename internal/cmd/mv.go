package cmd

import (
	"fmt"
	"path"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketdir/pkg/vdir"
)

var mvCmd = &cobra.Command{
	Use:   "mv <src-uri> <dst-uri>",
	Short: "Move an object or, with -r, a directory within one bucket",
	Long: `Move an object, or with -r every member of a directory, within one bucket.

The per-key mode (default) copies then deletes each key on its own; a failed
delete leaves the object at both locations. --move-mode=verify-then-delete
copies every key, checks each copy's size, and only then deletes the sources
in one bulk request. Any copy or verify failure removes the copies made so
far and leaves every source in place.

Examples:
  bucketdir mv -r s3://photos/cp s3://photos/x
  bucketdir mv -r cp x --bucket photos --move-mode verify-then-delete`,
	Args: cobra.ExactArgs(2),
	RunE: runMv,
}

var mvRecursive bool

func init() {
	rootCmd.AddCommand(mvCmd)

	mvCmd.Flags().BoolVarP(&mvRecursive, "recursive", "r", false, "Move every member of the source directory")
	mvCmd.Flags().String("move-mode", "", "Move mode: per-key or verify-then-delete")
	mvCmd.Flags().String("key-mapping", "", "Destination key mapping: basename or relative")
}

func runMv(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, err := exactRemote(args[0])
	if err != nil {
		return err
	}
	dst, err := exactRemote(args[1])
	if err != nil {
		return err
	}
	if dst.Bucket != "" && dst.Bucket != src.Bucket {
		return exitError(foundry.ExitInvalidArgument, "mv works within one bucket",
			fmt.Errorf("source bucket %q differs from destination bucket %q (use cp then rm)", src.Bucket, dst.Bucket))
	}

	d, client, err := openDriver(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if mvRecursive {
		prefix, err := remoteDir(src)
		if err != nil {
			return err
		}
		rep, err := d.MoveDirectory(ctx, prefix, dst.Key, src.Bucket)
		return renderReport(cmd, rep, err)
	}

	if src.IsPrefix() {
		return exitError(foundry.ExitInvalidArgument, "mv needs -r to move a directory", fmt.Errorf("source %s is a directory", src))
	}
	dstKey := dst.Key
	if dst.IsPrefix() {
		dstKey += path.Base(src.Key)
	}
	rec, err := d.MoveFile(ctx, src.Bucket, src.Key, dstKey)
	return renderReceipt(cmd, vdir.OpMove, src.Bucket, src.Key, dstKey, rec, err)
}
