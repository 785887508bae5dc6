package cmd

import (
	"fmt"
	"path"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketdir/pkg/vdir"
)

var cpCmd = &cobra.Command{
	Use:   "cp <src-uri> <dst-uri>",
	Short: "Copy an object or, with -r, a directory",
	Long: `Copy an object, or with -r every member of a directory, by server-side copy.

With the default basename key mapping each member lands directly under the
destination ("cp/y/z.png" -> "x/z.png"); members sharing a base name
overwrite each other. --key-mapping=relative keeps the path below the source
directory instead.

A destination without a bucket uses the default bucket, not the source's.

Examples:
  bucketdir cp -r s3://photos/cp s3://photos/x
  bucketdir cp -r s3://photos/cp s3://archive/cp --key-mapping relative
  bucketdir cp s3://photos/cp/a.png s3://photos/x/`,
	Args: cobra.ExactArgs(2),
	RunE: runCp,
}

var cpRecursive bool

func init() {
	rootCmd.AddCommand(cpCmd)

	cpCmd.Flags().BoolVarP(&cpRecursive, "recursive", "r", false, "Copy every member of the source directory")
	cpCmd.Flags().String("key-mapping", "", "Destination key mapping: basename or relative")
}

func runCp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, err := exactRemote(args[0])
	if err != nil {
		return err
	}
	dst, err := exactRemote(args[1])
	if err != nil {
		return err
	}

	d, client, err := openDriver(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if cpRecursive {
		prefix, err := remoteDir(src)
		if err != nil {
			return err
		}
		rep, err := d.CopyDirectory(ctx, src.Bucket, prefix, dst.Bucket, dst.Key)
		return renderReport(cmd, rep, err)
	}

	if src.IsPrefix() {
		return exitError(foundry.ExitInvalidArgument, "cp needs -r to copy a directory", fmt.Errorf("source %s is a directory", src))
	}
	dstKey := dst.Key
	if dst.IsPrefix() {
		dstKey += path.Base(src.Key)
	}
	rec, err := d.CopyFile(ctx, src.Bucket, src.Key, dst.Bucket, dstKey)
	return renderReceipt(cmd, vdir.OpCopy, src.Bucket, src.Key, dstKey, rec, err)
}

// exactRemote parses a remote argument that must not be a glob.
func exactRemote(arg string) (*ObjectURI, error) {
	u, err := parseRemote(arg)
	if err != nil {
		return nil, err
	}
	if u.IsPattern() {
		return nil, exitError(foundry.ExitInvalidArgument, "Patterns are only supported by ls",
			fmt.Errorf("%w: %s", ErrInvalidURI, arg))
	}
	return u, nil
}
