// Package s3 implements the versioned object store on Amazon S3 or any
// S3-compatible endpoint (MinIO, Ceph RGW).
//
// Branch isolation maps to key prefixes ("{branch}/{key}"), version ids map
// to S3 object versions, and deleting an asset places a delete marker at the
// head so history stays readable until retention expires it.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/store/object"
)

// metaChecksum is the object-metadata key carrying the SHA-256 digest of the
// payload. It is how Upload detects a byte-identical re-upload without
// fetching the body.
const metaChecksum = "checksum-sha256"

// Config configures the S3 object store.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the bucket all branches live in.
	Bucket string

	// PublicURL, when set, replaces the scheme and host of presigned URLs
	// so that clients outside the cluster network can reach the store.
	PublicURL string

	// DefaultRetentionDays is how long noncurrent object versions are kept
	// on non-main branches. Default: 7.
	DefaultRetentionDays int32

	// MainBranch names the branch with extended retention. Default: "main".
	MainBranch string

	// MainBranchRetentionDays is the retention for the main branch.
	// Default: 30.
	MainBranchRetentionDays int32
}

// Store implements object.Store on a versioned S3 bucket.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	publicURL string

	defaultRetentionDays    int32
	mainBranch              string
	mainBranchRetentionDays int32
}

var _ object.Store = (*Store)(nil)

// NewClientFromConfig creates an S3 client for a custom endpoint with static
// credentials. forcePathStyle must be true for MinIO and most self-hosted
// stores.
func NewClientFromConfig(
	ctx context.Context,
	endpoint,
	region,
	accessKeyID,
	secretAccessKey string,
	forcePathStyle bool,
) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	return client, nil
}

// New creates an S3 object store. It does not touch the bucket; call
// EnsureRepository to provision it.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	defaultRetention := cfg.DefaultRetentionDays
	if defaultRetention == 0 {
		defaultRetention = 7
	}
	mainRetention := cfg.MainBranchRetentionDays
	if mainRetention == 0 {
		mainRetention = 30
	}
	mainBranch := cfg.MainBranch
	if mainBranch == "" {
		mainBranch = "main"
	}

	return &Store{
		client:                  cfg.Client,
		presigner:               s3.NewPresignClient(cfg.Client),
		bucket:                  cfg.Bucket,
		publicURL:               cfg.PublicURL,
		defaultRetentionDays:    defaultRetention,
		mainBranch:              mainBranch,
		mainBranchRetentionDays: mainRetention,
	}, nil
}

// EnsureRepository creates the bucket if needed, enables versioning, and
// installs the retention lifecycle rules. Safe to call on every startup.
func (s *Store) EnsureRepository(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		if _, cerr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(s.bucket),
		}); cerr != nil && !bucketAlreadyOurs(cerr) {
			return asset.Wrap(asset.KindUnavailable, cerr, "create bucket %s", s.bucket)
		}
		logger.Info("created object-store bucket", "bucket", s.bucket)
	}

	if _, err := s.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(s.bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	}); err != nil {
		return asset.Wrap(asset.KindUnavailable, err, "enable versioning on %s", s.bucket)
	}

	if _, err := s.client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(s.bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{
			Rules: []types.LifecycleRule{
				{
					ID:     aws.String("retention-main"),
					Status: types.ExpirationStatusEnabled,
					Filter: &types.LifecycleRuleFilter{
						Prefix: aws.String(s.mainBranch + "/"),
					},
					NoncurrentVersionExpiration: &types.NoncurrentVersionExpiration{
						NoncurrentDays: aws.Int32(s.mainBranchRetentionDays),
					},
				},
				{
					ID:     aws.String("retention-default"),
					Status: types.ExpirationStatusEnabled,
					Filter: &types.LifecycleRuleFilter{
						Prefix: aws.String(""),
					},
					NoncurrentVersionExpiration: &types.NoncurrentVersionExpiration{
						NoncurrentDays: aws.Int32(s.defaultRetentionDays),
					},
				},
			},
		},
	}); err != nil {
		return asset.Wrap(asset.KindUnavailable, err, "configure retention on %s", s.bucket)
	}

	return nil
}

// objectKey joins branch and key into the full bucket key.
func (s *Store) objectKey(branch, key string) string {
	return branch + "/" + strings.TrimPrefix(key, "/")
}

func bucketAlreadyOurs(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	return errors.As(err, &owned) || errors.As(err, &exists)
}

// classify maps an SDK error to the domain taxonomy.
func classify(err error, op, key string) error {
	var notFound *types.NotFound
	var noKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return asset.Wrap(asset.KindNotFound, err, "%s: %s not found", op, key)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchVersion":
			return asset.Wrap(asset.KindNotFound, err, "%s: %s not found", op, key)
		}
		return asset.Wrap(asset.KindStorage, err, "%s: %s", op, key)
	}

	return asset.Wrap(asset.KindUnavailable, err, "%s: %s", op, key)
}
