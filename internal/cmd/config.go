package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML with secrets masked",
	Long: `Print the configuration after defaults, the config file, BUCKETDIR_*
environment variables (and the AWS_S3_BUCKET, AWS_S3_REGION, AWS_S3_KEY and
AWS_S3_SECRET aliases) and command line flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(appConfig.Masked()); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write configuration", err)
	}
	return enc.Close()
}
