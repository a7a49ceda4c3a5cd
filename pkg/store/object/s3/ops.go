package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/store/object"
)

// Upload commits data under key with the given user metadata. A payload
// whose SHA-256 matches the current head returns the head's version together
// with object.ErrNoChange.
func (s *Store) Upload(ctx context.Context, branch, key string, data []byte, contentType string, metadata map[string]string) (*object.UploadResult, error) {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	fullKey := s.objectKey(branch, key)

	head, err := s.HeadVersion(ctx, branch, key)
	if err == nil && head.Checksum == checksum {
		logger.Debug("upload skipped, payload unchanged",
			"key", fullKey, "version_id", head.VersionID)
		return head, object.ErrNoChange
	}
	if err != nil && !asset.IsKind(err, asset.KindNotFound) {
		return nil, err
	}

	objectMeta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		objectMeta[k] = v
	}
	objectMeta[metaChecksum] = checksum

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    objectMeta,
	})
	if err != nil {
		return nil, classify(err, "upload", fullKey)
	}

	result := &object.UploadResult{
		VersionID: aws.ToString(out.VersionId),
		Checksum:  checksum,
	}
	logger.Debug("uploaded object",
		"key", fullKey, "version_id", result.VersionID, "size", len(data))
	return result, nil
}

// Read fetches a version of key. An empty versionID reads the head; a
// delete-marker head reads as not found.
func (s *Store) Read(ctx context.Context, branch, key, versionID string) (*object.Object, error) {
	fullKey := s.objectKey(branch, key)

	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}
	if versionID != "" {
		in.VersionId = aws.String(versionID)
	}

	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, classify(err, "read", fullKey)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, asset.Wrap(asset.KindStorage, err, "read body: %s", fullKey)
	}

	return &object.Object{
		Content:     content,
		ContentType: aws.ToString(out.ContentType),
		VersionID:   aws.ToString(out.VersionId),
		Checksum:    metadataChecksum(out.Metadata),
	}, nil
}

// PresignURL returns a time-limited GET URL for a version of key, rewritten
// to the configured public endpoint.
func (s *Store) PresignURL(ctx context.Context, branch, key, versionID string, expiry time.Duration) (string, error) {
	fullKey := s.objectKey(branch, key)

	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}
	if versionID != "" {
		in.VersionId = aws.String(versionID)
	}

	req, err := s.presigner.PresignGetObject(ctx, in, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", classify(err, "presign", fullKey)
	}

	return rewritePublicURL(req.URL, s.publicURL)
}

// HeadVersion returns the current head of key.
func (s *Store) HeadVersion(ctx context.Context, branch, key string) (*object.UploadResult, error) {
	fullKey := s.objectKey(branch, key)

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, classify(err, "head", fullKey)
	}

	return &object.UploadResult{
		VersionID: aws.ToString(out.VersionId),
		Checksum:  metadataChecksum(out.Metadata),
	}, nil
}

// List returns the keys under prefix, relative to the branch.
func (s *Store) List(ctx context.Context, branch, prefix string) ([]string, error) {
	fullPrefix := s.objectKey(branch, strings.TrimSuffix(prefix, "/") + "/")

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err, "list", fullPrefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), branch+"/"))
		}
	}

	return keys, nil
}

// Delete places a delete marker at the head of key. Historical versions
// remain until retention removes them.
func (s *Store) Delete(ctx context.Context, branch, key string) error {
	fullKey := s.objectKey(branch, key)

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}); err != nil {
		return classify(err, "delete", fullKey)
	}

	logger.Debug("deleted object head", "key", fullKey)
	return nil
}

// DeleteAssociated removes the heads of every key under dir except the
// primary filename, in one batch.
func (s *Store) DeleteAssociated(ctx context.Context, branch, dir, primaryFilename string) error {
	keys, err := s.List(ctx, branch, dir)
	if err != nil {
		return err
	}

	var targets []types.ObjectIdentifier
	for _, key := range keys {
		if path.Base(key) == primaryFilename {
			continue
		}
		targets = append(targets, types.ObjectIdentifier{
			Key: aws.String(s.objectKey(branch, key)),
		})
	}
	if len(targets) == 0 {
		return nil
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: targets,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return classify(err, "delete associated", s.objectKey(branch, dir))
	}
	for _, derr := range out.Errors {
		return asset.E(asset.KindStorage, "delete associated %s: %s",
			aws.ToString(derr.Key), aws.ToString(derr.Message))
	}

	logger.Debug("deleted associated objects",
		"dir", s.objectKey(branch, dir), "count", len(targets))
	return nil
}

// metadataChecksum extracts the stored SHA-256 digest. S3 implementations
// differ in the case of returned metadata keys.
func metadataChecksum(metadata map[string]string) string {
	for k, v := range metadata {
		if strings.EqualFold(k, metaChecksum) {
			return v
		}
	}
	return ""
}

// rewritePublicURL swaps the scheme and host of a presigned URL for the
// public endpoint, preserving path and query so the signature stays valid
// for path-style addressing behind a reverse proxy.
func rewritePublicURL(raw, publicURL string) (string, error) {
	if publicURL == "" {
		return raw, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", asset.Wrap(asset.KindInternal, err, "parse presigned url")
	}
	public, err := url.Parse(publicURL)
	if err != nil {
		return "", asset.Wrap(asset.KindInternal, err, "parse public url %q", publicURL)
	}

	parsed.Scheme = public.Scheme
	parsed.Host = public.Host
	return parsed.String(), nil
}
