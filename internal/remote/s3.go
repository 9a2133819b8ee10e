package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	apperrors "github.com/chmdznr/ftpsync/internal/errors"
)

// mtimeKey is the object user metadata entry holding the file mtime in
// unix seconds.
const mtimeKey = "Mtime"

// S3Config holds the object storage session settings.
type S3Config struct {
	Endpoint  string
	Secure    bool
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Timeout   time.Duration
}

// S3Client is a Client over an S3-compatible bucket. Directories are
// slash-delimited key prefixes.
type S3Client struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
	base    context.Context
	log     zerolog.Logger
}

// DialS3 creates the client and checks the bucket exists.
func DialS3(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Client, error) {
	opts := minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupAuto,
	}
	mc, err := minio.New(cfg.Endpoint, &opts)
	if err != nil {
		return nil, apperrors.Connectivity("Failed to initialize object storage client.", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &S3Client{client: mc, bucket: cfg.Bucket, timeout: timeout, base: ctx, log: log}

	callCtx, cancel := c.callContext()
	defer cancel()
	ok, err := mc.BucketExists(callCtx, cfg.Bucket)
	if err != nil {
		return nil, apperrors.Connectivity(fmt.Sprintf("Could not reach %s.", cfg.Endpoint), err)
	}
	if !ok {
		return nil, apperrors.Connectivity(fmt.Sprintf("Bucket %s does not exist.", cfg.Bucket), nil)
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("connected")
	return c, nil
}

func (c *S3Client) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.base, c.timeout)
}

// transferContext bounds a transfer by inactivity rather than total time:
// the context is cancelled once no bytes have moved for the call timeout.
// The returned Progress restarts the clock and then forwards to progress.
func (c *S3Client) transferContext(progress Progress) (context.Context, Progress, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.base)
	stall := time.AfterFunc(c.timeout, cancel)
	touch := func(done, total int64) {
		stall.Reset(c.timeout)
		if progress != nil {
			progress(done, total)
		}
	}
	return ctx, touch, func() {
		stall.Stop()
		cancel()
	}
}

func objectKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func dirPrefix(dir string) string {
	key := objectKey(dir)
	if key == "" {
		return ""
	}
	return key + "/"
}

func (c *S3Client) ChangeDir(dir string) error {
	prefix := dirPrefix(dir)
	if prefix == "" {
		return nil
	}
	ctx, cancel := c.callContext()
	defer cancel()

	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if obj.Err != nil {
			return obj.Err
		}
		return nil
	}
	return apperrors.NotFound("directory", dir)
}

func (c *S3Client) List(dir string) ([]Entry, error) {
	prefix := dirPrefix(dir)
	ctx, cancel := c.callContext()
	defer cancel()

	var entries []Entry
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		rest := strings.TrimPrefix(obj.Key, prefix)
		if rest == "" {
			// directory marker of dir itself
			continue
		}
		if strings.HasSuffix(rest, "/") {
			entries = append(entries, Entry{Name: strings.TrimSuffix(rest, "/"), IsDir: true})
			continue
		}
		entries = append(entries, Entry{Name: rest, Size: obj.Size})
	}
	return entries, nil
}

func (c *S3Client) NameList(dir string) ([]string, error) {
	entries, err := c.List(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

func (c *S3Client) stat(p string) (minio.ObjectInfo, error) {
	ctx, cancel := c.callContext()
	defer cancel()
	return c.client.StatObject(ctx, c.bucket, objectKey(p), minio.StatObjectOptions{})
}

func (c *S3Client) FileSize(p string) (int64, error) {
	info, err := c.stat(p)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (c *S3Client) ModTime(p string) (time.Time, error) {
	info, err := c.stat(p)
	if err != nil {
		return time.Time{}, err
	}
	return objectModTime(info), nil
}

func objectModTime(info minio.ObjectInfo) time.Time {
	if raw, ok := info.UserMetadata[mtimeKey]; ok {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return info.LastModified.UTC().Truncate(time.Second)
}

// SetModTime rewrites the object's metadata with a server-side copy.
func (c *S3Client) SetModTime(p string, t time.Time) error {
	ctx, cancel := c.callContext()
	defer cancel()

	key := objectKey(p)
	dst := minio.CopyDestOptions{
		Bucket:          c.bucket,
		Object:          key,
		UserMetadata:    map[string]string{mtimeKey: strconv.FormatInt(t.Unix(), 10)},
		ReplaceMetadata: true,
	}
	src := minio.CopySrcOptions{Bucket: c.bucket, Object: key}
	_, err := c.client.CopyObject(ctx, dst, src)
	return err
}

func (c *S3Client) Retrieve(p string, w io.Writer, progress Progress) (int64, error) {
	ctx, progress, cancel := c.transferContext(progress)
	defer cancel()

	obj, err := c.client.GetObject(ctx, c.bucket, objectKey(p), minio.GetObjectOptions{})
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return 0, err
	}
	return io.Copy(&progressWriter{w: w, total: info.Size, progress: progress}, obj)
}

func (c *S3Client) Store(p string, r io.Reader, size int64, progress Progress) error {
	ctx, progress, cancel := c.transferContext(progress)
	defer cancel()

	_, err := c.client.PutObject(ctx, c.bucket, objectKey(p),
		&progressReader{r: r, total: size, progress: progress}, size,
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

func (c *S3Client) Delete(p string) error {
	ctx, cancel := c.callContext()
	defer cancel()
	return c.client.RemoveObject(ctx, c.bucket, objectKey(p), minio.RemoveObjectOptions{})
}

// MakeDir writes a zero-byte marker object so empty directories survive.
func (c *S3Client) MakeDir(dir string) error {
	prefix := dirPrefix(dir)
	if prefix == "" {
		return nil
	}
	ctx, cancel := c.callContext()
	defer cancel()

	_, err := c.client.PutObject(ctx, c.bucket, prefix, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	return err
}

func (c *S3Client) Close() error {
	return nil
}
