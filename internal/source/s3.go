package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const s3Scheme = "s3://"

// S3API is the subset of the S3 client used to read objects.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from awsCfg. Path-style addressing is
// enabled so LocalStack and MinIO endpoints accept the requests.
func NewS3Client(awsCfg aws.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// ParseS3URL splits "s3://bucket/key" into its parts.
func ParseS3URL(u string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(u, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%q is not an s3:// URL", u)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%q must name a bucket and a key", u)
	}
	return bucket, key, nil
}

// S3Object reads an object with ranged GETs; nothing is buffered locally.
type S3Object struct {
	ctx    context.Context
	api    S3API
	bucket string
	key    string
	size   int64
}

// OpenS3 looks up the object's size. ctx bounds every later read.
func OpenS3(ctx context.Context, api S3API, bucket, key string) (*S3Object, error) {
	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	return &S3Object{
		ctx:    ctx,
		api:    api,
		bucket: bucket,
		key:    key,
		size:   aws.ToInt64(out.ContentLength),
	}, nil
}

func (o *S3Object) Name() string { return s3Scheme + o.bucket + "/" + o.key }

func (o *S3Object) Size() (int64, error) { return o.size, nil }

// ReadAt fetches bytes [off, off+len(p)) clipped to the object size.
func (o *S3Object) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= o.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := min(off+int64(len(p)), o.size)
	rng := fmt.Sprintf("bytes=%d-%d", off, end-1)
	zap.L().Named("source").Debug("s3 ranged get",
		zap.String("object", o.Name()), zap.String("range", rng))

	out, err := o.api.GetObject(o.ctx, &s3.GetObjectInput{
		Bucket: &o.bucket,
		Key:    &o.key,
		Range:  &rng,
	})
	if err != nil {
		return 0, fmt.Errorf("get %s %s: %w", o.Name(), rng, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:end-off])
	if err != nil {
		return n, fmt.Errorf("read %s %s: %w", o.Name(), rng, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (o *S3Object) Close() error { return nil }
