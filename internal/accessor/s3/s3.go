// Package s3 provides an accessor backed by an S3-compatible bucket.
// Directories are zero-byte "key/" marker objects; any common prefix also
// reads as a directory.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/internal/logging"
	"github.com/fruitsalade/fsaccess/internal/metrics"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

// Config is the JSON-serializable S3 accessor configuration.
type Config struct {
	Endpoint     string        `json:"endpoint"`
	Bucket       string        `json:"bucket"`
	Prefix       string        `json:"prefix"`
	AccessKey    string        `json:"access_key"`
	SecretKey    string        `json:"secret_key"`
	Region       string        `json:"region"`
	UseSSL       bool          `json:"use_ssl"`
	PresignTTL   time.Duration `json:"presign_ttl"`
	CreateBucket bool          `json:"create_bucket"`
}

// S3Accessor implements accessor.Accessor on one bucket and key prefix.
type S3Accessor struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string // "" or ends with "/"
	ttl     time.Duration
	log     *zap.Logger
}

// New creates an S3 accessor. The bucket is checked, and created when
// CreateBucket is set; a failed check is logged, not returned.
func New(ctx context.Context, cfg Config) (*S3Accessor, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		// S3-compatible stores often reject aws-chunked trailers.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	a := &S3Accessor{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  normalizePrefix(cfg.Prefix),
		ttl:     cfg.PresignTTL,
		log:     logging.Named("s3").With(zap.String("bucket", cfg.Bucket)),
	}

	if cfg.CreateBucket {
		if err := a.ensureBucket(ctx); err != nil {
			a.log.Error("bucket check failed", zap.Error(err))
		}
	}
	return a, nil
}

// NewFromJSON creates an S3Accessor from raw JSON config.
func NewFromJSON(ctx context.Context, raw json.RawMessage) (*S3Accessor, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return New(ctx, cfg)
}

func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (a *S3Accessor) ensureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}
	_, createErr := a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	metrics.RecordS3Operation("create_bucket", time.Since(start), createErr == nil)
	if createErr != nil {
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", a.bucket, createErr)
	}
	a.log.Info("created S3 bucket")
	return nil
}

// Name returns "s3://bucket/prefix".
func (a *S3Accessor) Name() string {
	return "s3://" + a.bucket + "/" + strings.TrimSuffix(a.prefix, "/")
}

// GetPath returns the object key for fullPath.
func (a *S3Accessor) GetPath(fullPath string) string {
	return a.key(fullPath)
}

func (a *S3Accessor) key(fullPath string) string {
	p := models.Clean(fullPath)
	if p == models.DirSeparator {
		return a.prefix
	}
	return a.prefix + p[1:]
}

func (a *S3Accessor) dirKey(fullPath string) string {
	if models.IsRoot(fullPath) {
		return a.prefix
	}
	return a.key(fullPath) + "/"
}

// GetURL presigns a GET or PUT request for the object.
func (a *S3Accessor) GetURL(ctx context.Context, fullPath string, method locator.Method) (string, error) {
	start := time.Now()
	var (
		req *v4.PresignedHTTPRequest
		err error
	)
	switch method {
	case locator.GET:
		req, err = a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(fullPath)),
		}, s3.WithPresignExpires(a.ttl))
	case locator.PUT:
		req, err = a.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(fullPath)),
		}, s3.WithPresignExpires(a.ttl))
	default:
		return "", nil
	}
	metrics.RecordS3Operation("presign_"+strings.ToLower(string(method)), time.Since(start), err == nil)
	if err != nil {
		return "", fmt.Errorf("presign %s %s: %w", method, fullPath, err)
	}
	return req.URL, nil
}

func (a *S3Accessor) GetObject(ctx context.Context, fullPath string) (*models.FileSystemObject, error) {
	p := models.Clean(fullPath)
	if p == models.DirSeparator {
		return models.NewDirectory(p, time.Time{}), nil
	}

	head, err := a.head(ctx, a.key(p))
	if err == nil {
		return models.NewFile(p, aws.ToInt64(head.ContentLength), aws.ToTime(head.LastModified)), nil
	}
	if !isNotFound(err) {
		return nil, a.readErr(fullPath, err)
	}

	modTime, found, err := a.dirInfo(ctx, p)
	if err != nil {
		return nil, a.readErr(fullPath, err)
	}
	if !found {
		return nil, fserr.NotFound(a.Name(), fullPath, nil)
	}
	return models.NewDirectory(p, modTime), nil
}

func (a *S3Accessor) GetObjects(ctx context.Context, dirPath string) ([]*models.FileSystemObject, error) {
	dir := models.Clean(dirPath)
	prefix := a.dirKey(dir)

	start := time.Now()
	var (
		objs      []*models.FileSystemObject
		sawMarker bool
	)
	pager := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			metrics.RecordS3Operation("list_objects", time.Since(start), false)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, a.readErr(dirPath, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				sawMarker = true
				continue
			}
			name := strings.TrimPrefix(key, prefix)
			objs = append(objs, models.NewFile(models.Join(dir, name), aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified)))
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			objs = append(objs, models.NewDirectory(models.Join(dir, name), time.Time{}))
		}
	}
	metrics.RecordS3Operation("list_objects", time.Since(start), true)

	if dir != models.DirSeparator && !sawMarker && len(objs) == 0 {
		return nil, fserr.NotFound(a.Name(), dirPath, nil)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].FullPath < objs[j].FullPath })
	return objs, nil
}

func (a *S3Accessor) PutObject(ctx context.Context, obj *models.FileSystemObject) error {
	p := models.Clean(obj.FullPath)
	if p == models.DirSeparator {
		if obj.IsFile() {
			return fserr.InvalidModification(a.Name(), obj.FullPath, errors.New("root is a directory"))
		}
		return nil
	}

	if err := a.requireParent(ctx, p); err != nil {
		return fserr.InvalidModification(a.Name(), obj.FullPath, err)
	}

	var key string
	if obj.IsFile() {
		_, isDir, err := a.dirInfo(ctx, p)
		if err != nil {
			return fserr.InvalidModification(a.Name(), obj.FullPath, err)
		}
		if isDir {
			return fserr.InvalidModification(a.Name(), obj.FullPath, errors.New("a directory exists at this path"))
		}
		key = a.key(p)
	} else {
		if _, err := a.head(ctx, a.key(p)); err == nil {
			return fserr.InvalidModification(a.Name(), obj.FullPath, errors.New("a file exists at this path"))
		}
		key = a.dirKey(p)
	}

	start := time.Now()
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil && isPreconditionFailed(err) {
		err = nil
	}
	metrics.RecordS3Operation("put_object", time.Since(start), err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fserr.InvalidModification(a.Name(), obj.FullPath, err)
	}
	return nil
}

func (a *S3Accessor) ReadContent(ctx context.Context, fullPath string) ([]byte, error) {
	start := time.Now()
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(fullPath)),
	})
	if err != nil {
		metrics.RecordS3Operation("get_object", time.Since(start), false)
		return nil, a.readErr(fullPath, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	metrics.RecordS3Operation("get_object", time.Since(start), err == nil)
	if err != nil {
		return nil, a.readErr(fullPath, err)
	}
	return data, nil
}

func (a *S3Accessor) WriteContent(ctx context.Context, fullPath string, content []byte) error {
	p := models.Clean(fullPath)
	if err := a.requireParent(ctx, p); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fserr.NotFound(a.Name(), fullPath, err)
	}
	if _, isDir, err := a.dirInfo(ctx, p); err == nil && isDir {
		return fserr.InvalidModification(a.Name(), fullPath, errors.New("is a directory"))
	}

	start := time.Now()
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.key(p)),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	metrics.RecordS3Operation("put_object", time.Since(start), err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fserr.InvalidModification(a.Name(), fullPath, err)
	}
	a.log.Debug("S3 put object", zap.String("key", a.key(p)), zap.Int("size", len(content)))
	return nil
}

func (a *S3Accessor) Delete(ctx context.Context, fullPath string, isFile bool) error {
	p := models.Clean(fullPath)
	if p == models.DirSeparator {
		return fserr.InvalidModification(a.Name(), fullPath, errors.New("cannot delete the root"))
	}

	if isFile {
		if _, err := a.head(ctx, a.key(p)); err != nil {
			if isNotFound(err) {
				return fserr.NotFound(a.Name(), fullPath, nil)
			}
			return fserr.InvalidModification(a.Name(), fullPath, err)
		}
		return a.deleteKeys(ctx, fullPath, a.key(p))
	}

	prefix := a.dirKey(p)
	start := time.Now()
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(3),
	})
	metrics.RecordS3Operation("list_objects", time.Since(start), err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fserr.InvalidModification(a.Name(), fullPath, err)
	}

	var keys []string
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key != prefix && key != prefix+models.IndexMarker {
			return fserr.InvalidModification(a.Name(), fullPath, errors.New("directory not empty"))
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return fserr.NotFound(a.Name(), fullPath, nil)
	}
	// Marker before the directory key, so a failure never orphans it.
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return a.deleteKeys(ctx, fullPath, keys...)
}

func (a *S3Accessor) deleteKeys(ctx context.Context, fullPath string, keys ...string) error {
	for _, key := range keys {
		start := time.Now()
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		})
		metrics.RecordS3Operation("delete_object", time.Since(start), err == nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fserr.InvalidModification(a.Name(), fullPath, err)
		}
		a.log.Debug("S3 delete object", zap.String("key", key))
	}
	return nil
}

func (a *S3Accessor) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	start := time.Now()
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	metrics.RecordS3Operation("head_object", time.Since(start), err == nil || isNotFound(err))
	return out, err
}

// dirInfo reports whether fullPath reads as a directory, either through its
// marker object or through any key under it.
func (a *S3Accessor) dirInfo(ctx context.Context, fullPath string) (time.Time, bool, error) {
	if models.IsRoot(fullPath) {
		return time.Time{}, true, nil
	}
	prefix := a.dirKey(fullPath)
	start := time.Now()
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	metrics.RecordS3Operation("list_objects", time.Since(start), err == nil)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return time.Time{}, false, nil
	}
	var modTime time.Time
	if len(out.Contents) > 0 && aws.ToString(out.Contents[0].Key) == prefix {
		modTime = aws.ToTime(out.Contents[0].LastModified)
	}
	return modTime, true, nil
}

func (a *S3Accessor) requireParent(ctx context.Context, p string) error {
	parent := models.Parent(p)
	_, ok, err := a.dirInfo(ctx, parent)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("parent directory %s does not exist", parent)
	}
	return nil
}

func (a *S3Accessor) readErr(fullPath string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isNotFound(err) {
		return fserr.NotFound(a.Name(), fullPath, err)
	}
	return fserr.NotReadable(a.Name(), fullPath, err)
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return httpStatus(err) == 404
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	return httpStatus(err) == 412
}

func httpStatus(err error) int {
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
