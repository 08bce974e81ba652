package cronjob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ContextSource supplies one or more named text files to prepend to every
// cron job's prompt (§4.3 step 6 "context files"). Kept as an interface so
// the executor doesn't care whether a file lives on local disk or in
// object storage.
type ContextSource interface {
	Load(ctx context.Context) (map[string]string, error)
}

// LocalContextSource reads every regular file directly under Dir (no
// recursion) as a context file keyed by its base name.
type LocalContextSource struct {
	Dir string
}

func (s LocalContextSource) Load(ctx context.Context) (map[string]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cronjob: read context dir %s: %w", s.Dir, err)
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("cronjob: read context file %s: %w", e.Name(), err)
		}
		out[e.Name()] = string(data)
	}
	return out, nil
}

// S3ContextSource reads every object under Prefix in Bucket as a context
// file keyed by its key relative to Prefix. An optional, alongside-local-disk
// source (§6 DOMAIN STACK) for hosts that keep shared context files in a
// bucket instead of on the host's own disk.
type S3ContextSource struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewS3ContextSource loads the default AWS config chain (env vars, shared
// config file, instance role) and returns a source scoped to bucket/prefix.
func NewS3ContextSource(ctx context.Context, bucket, prefix, region string) (*S3ContextSource, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cronjob: load aws config: %w", err)
	}
	return &S3ContextSource{Client: s3.NewFromConfig(cfg), Bucket: bucket, Prefix: prefix}, nil
}

func (s *S3ContextSource) Load(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	downloader := manager.NewDownloader(s.Client)

	var token *string
	for {
		page, err := s.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.Bucket),
			Prefix:            aws.String(s.Prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("cronjob: list context objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			buf := manager.NewWriteAtBuffer(nil)
			if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
				Bucket: aws.String(s.Bucket),
				Key:    aws.String(key),
			}); err != nil {
				return nil, fmt.Errorf("cronjob: download context object %s: %w", key, err)
			}
			out[strings.TrimPrefix(key, s.Prefix)] = string(buf.Bytes())
		}

		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

// BuildWorkspaceContext concatenates every file from every source, in
// source order and then alphabetically by file name within a source,
// under a "## Context: <name>" heading, so the executor can prepend the
// result verbatim to a job's assembled prompt.
func BuildWorkspaceContext(ctx context.Context, sources ...ContextSource) (string, error) {
	var b strings.Builder
	for _, src := range sources {
		files, err := src.Load(ctx)
		if err != nil {
			return "", err
		}
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "## Context: %s\n\n%s\n\n", name, files[name])
		}
	}
	return strings.TrimSpace(b.String()), nil
}
