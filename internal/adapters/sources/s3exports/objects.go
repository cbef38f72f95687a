package s3exports

import (
	"context"
	"io"

	"signalroom/internal/platform/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object is one listed key
type Object struct {
	Key  string
	Size int64
}

// Objects is the slice of S3 the source needs
type Objects interface {
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// s3Objects is Objects over the AWS SDK
type s3Objects struct{ c *s3.Client }

// NewS3 builds Objects from the default AWS credential chain. endpoint, when
// set, targets an S3-compatible store with path-style addressing
func NewS3(ctx context.Context, region, endpoint string) (Objects, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeConfig, "s3_exports: load aws config")
	}
	c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return s3Objects{c: c}, nil
}

func (o s3Objects) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var out []Object
	p := s3.NewListObjectsV2Paginator(o.c, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorCodeUnavailable, "s3_exports: list s3://%s/%s", bucket, prefix)
		}
		for _, obj := range page.Contents {
			out = append(out, Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)})
		}
	}
	return out, nil
}

func (o s3Objects) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	res, err := o.c.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorCodeUnavailable, "s3_exports: get s3://%s/%s", bucket, key)
	}
	return res.Body, nil
}
