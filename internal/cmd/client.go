package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/afero"

	"github.com/3leaps/bucketdir/internal/config"
	"github.com/3leaps/bucketdir/internal/observability"
	"github.com/3leaps/bucketdir/pkg/provider"
	"github.com/3leaps/bucketdir/pkg/provider/file"
	"github.com/3leaps/bucketdir/pkg/provider/minio"
	"github.com/3leaps/bucketdir/pkg/provider/s3"
	"github.com/3leaps/bucketdir/pkg/vdir"
)

// newClient opens the configured backend.
func newClient(ctx context.Context, cfg *config.Config) (provider.Client, error) {
	switch provider.ProviderType(cfg.Backend) {
	case provider.ProviderS3:
		return s3.New(ctx, s3.Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Profile:         cfg.S3.Profile,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			ForcePathStyle:  cfg.S3.ForcePathStyle || cfg.S3.Endpoint != "",
			UseIMDSRegion:   cfg.S3.UseIMDSRegion,
		})
	case provider.ProviderMinIO:
		endpoint, useSSL := cfg.MinIO.Endpoint, cfg.MinIO.UseSSL
		if endpoint == "" && cfg.S3.Endpoint != "" {
			endpoint, useSSL = splitEndpoint(cfg.S3.Endpoint, useSSL)
		}
		return minio.New(minio.Config{
			Endpoint:  endpoint,
			AccessKey: firstNonEmpty(cfg.MinIO.AccessKey, cfg.S3.AccessKeyID),
			SecretKey: firstNonEmpty(cfg.MinIO.SecretKey, cfg.S3.SecretAccessKey),
			UseSSL:    useSSL,
			Region:    firstNonEmpty(cfg.MinIO.Region, cfg.S3.Region),
		})
	case provider.ProviderFile:
		return file.New(file.Config{Root: cfg.File.Root})
	}
	return nil, fmt.Errorf("backend %q is not supported", cfg.Backend)
}

// splitEndpoint turns "http://host:9000" into ("host:9000", false).
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false
	}
	return endpoint, useSSL
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// openDriver connects to the backend and builds a directory driver over the
// local OS filesystem. The caller closes the returned client.
func openDriver(ctx context.Context) (*vdir.Driver, provider.Client, error) {
	client, err := newClient(ctx, appConfig)
	if err != nil {
		return nil, nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	d := vdir.New(client, afero.NewOsFs(), observability.CLILogger, appConfig.Driver())
	return d, client, nil
}

// checkScheme rejects URIs whose scheme names a different backend.
func checkScheme(u *ObjectURI) error {
	if u.Provider == "" || u.Provider == appConfig.Backend {
		return nil
	}
	return exitError(foundry.ExitInvalidArgument, "Unsupported provider",
		fmt.Errorf("%w: %s:// given but backend is %s", ErrUnsupportedProvider, u.Provider, appConfig.Backend))
}

// parseRemote parses and scheme-checks a remote argument.
func parseRemote(arg string) (*ObjectURI, error) {
	u, err := ParseURI(arg)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	if err := checkScheme(u); err != nil {
		return nil, err
	}
	return u, nil
}

func remoteDir(u *ObjectURI) (string, error) {
	prefix, err := u.DirPrefix()
	if err != nil {
		return "", exitError(foundry.ExitInvalidArgument, "Invalid directory", err)
	}
	return prefix, nil
}
