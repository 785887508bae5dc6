package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/3leaps/bucketdir/pkg/vdir"
)

var putCmd = &cobra.Command{
	Use:   "put <local-path> <uri>",
	Short: "Upload a file or, with -r, a local directory",
	Long: `Upload a file, or with -r every regular file below a local directory.

A destination ending in "/" receives the file under its base name. Directory
uploads keep the path relative to the local root: "./site/css/a.css" put to
"s3://web/www" becomes "www/css/a.css".

Examples:
  bucketdir put -r ./site s3://web/www
  bucketdir put report.pdf s3://docs/2024/`,
	Args: cobra.ExactArgs(2),
	RunE: runPut,
}

var putRecursive bool

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().BoolVarP(&putRecursive, "recursive", "r", false, "Upload every file below the local directory")
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	local := args[0]
	u, err := exactRemote(args[1])
	if err != nil {
		return err
	}

	d, client, err := openDriver(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if putRecursive {
		rep, err := d.UploadDirectory(ctx, local, u.Bucket, u.Key)
		return renderReport(cmd, rep, err)
	}

	key := u.Key
	if u.IsPrefix() {
		key += filepath.Base(local)
	}
	rec, err := d.PutFile(ctx, u.Bucket, key, local)
	return renderReceipt(cmd, vdir.OpUpload, u.Bucket, key, local, rec, err)
}
