// Package cmd implements the bucketdir command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/3leaps/bucketdir/internal/config"
	"github.com/3leaps/bucketdir/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool

	// appConfig is loaded once per invocation in PersistentPreRunE.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bucketdir",
	Short: "Directory operations over flat object stores",
	Long: `bucketdir treats "/"-separated key prefixes in an object store as
directories. It lists, copies, moves, deletes, downloads and uploads whole
directories one member key at a time and reports the outcome per key.

Buckets may be named in a URI (s3://bucket/prefix/) or left out, in which
case the configured default bucket is used.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// flagPaths maps CLI flags to the config keys they override.
var flagPaths = map[string]string{
	"bucket":      "bucket",
	"backend":     "backend",
	"region":      "s3.region",
	"profile":     "s3.profile",
	"endpoint":    "s3.endpoint",
	"root":        "file.root",
	"log-level":   "logging.level",
	"concurrency": "operations.concurrency",
	"key-timeout": "operations.key_timeout",
	"rate-limit":  "operations.rate_limit",
	"max-keys":    "listing.max_keys",
	"all":         "listing.paginate",
	"key-mapping": "operations.key_mapping",
	"move-mode":   "operations.move_mode",
	"dir-perm":    "operations.dir_perm",
	"host":        "server.host",
	"port":        "server.port",
	"path-style":  "s3.force_path_style",
	"imds-region": "s3.use_imds_region",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./bucketdir.yaml or ~/.config/bucketdir/bucketdir.yaml)")
	pf.StringP("bucket", "b", "", "Default bucket for paths without s3://bucket/")
	pf.String("backend", "", "Storage backend: s3, minio or file")
	pf.String("region", "", "AWS region")
	pf.StringP("profile", "p", "", "AWS profile")
	pf.String("endpoint", "", "Custom S3 endpoint")
	pf.Bool("path-style", false, "Use path-style S3 addressing")
	pf.Bool("imds-region", false, "Look up the region from EC2 instance metadata")
	pf.String("root", "", "Root directory for the file backend")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	pf.Int("concurrency", 0, "Keys processed in parallel")
	pf.Duration("key-timeout", 0, "Timeout for each key (0 disables)")
	pf.Float64("rate-limit", 0, "Maximum store requests per second (0 disables)")
	pf.BoolVar(&jsonOutput, "json", false, "Emit JSONL records instead of a table")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	// Console logger until the configured level and format are known.
	observability.InitCLILogger("bucketdir", verbose)
	config.SetConfigFile(cfgFile)

	cfg, err := config.Load(cmd.Context(), flagOverrides(cmd.Flags()))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}
	appConfig = cfg

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger("bucketdir", level, cfg.Logging.Format)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to initialize logger", err)
	}
	observability.CLILogger = logger
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("backend", cfg.Backend),
		zap.String("bucket", cfg.Bucket),
		zap.Int("concurrency", cfg.Operations.Concurrency))
	return nil
}

// flagOverrides collects explicitly set flags as config overrides.
func flagOverrides(flags *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		if path, ok := flagPaths[f.Name]; ok {
			out[path] = f.Value.String()
		}
	})
	return out
}

// ExitError carries a process exit code alongside the failure.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		observability.CLILogger.Error("Command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)

		var ee *ExitError
		if errors.As(err, &ee) {
			return ee.Code
		}
		return 1
	}
	return 0
}
