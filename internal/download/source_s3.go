package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures access to distributions hosted in an S3 compatible bucket.
// Empty keys fall back to the default AWS credential chain.
type S3Config struct {
	Region    string `json:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
}

// S3Source opens s3://bucket/key URLs. The AWS client is created on first use
// so launchers served over plain HTTP never load AWS configuration.
type S3Source struct {
	cfg S3Config

	once    sync.Once
	client  *s3.Client
	initErr error
}

func NewS3Source(cfg S3Config) *S3Source {
	return &S3Source{cfg: cfg}
}

// NewS3SourceWithClient wraps an existing client.
func NewS3SourceWithClient(client *s3.Client) *S3Source {
	s := &S3Source{client: client}
	s.once.Do(func() {})
	return s
}

func (s *S3Source) init(ctx context.Context) error {
	s.once.Do(func() {
		opts := []func(*config.LoadOptions) error{}
		if s.cfg.Region != "" {
			opts = append(opts, config.WithRegion(s.cfg.Region))
		}
		if s.cfg.AccessKey != "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(s.cfg.AccessKey, s.cfg.SecretKey, ""),
			))
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			s.initErr = fmt.Errorf("download: load aws config: %w", err)
			return
		}

		s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if s.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
	})
	return s.initErr
}

func (s *S3Source) Open(ctx context.Context, rawURL string, offset int64) (*Response, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			code := respErr.HTTPStatusCode()
			if code == 416 {
				return nil, errRestart
			}
			return nil, &HTTPStatusError{URL: rawURL, StatusCode: code}
		}
		return nil, &NetworkError{URL: rawURL, Err: err}
	}

	resp := &Response{Body: out.Body, Offset: 0, Total: -1}
	if out.ContentLength != nil {
		resp.Total = *out.ContentLength
	}
	if out.ContentRange != nil {
		start, total, ok := parseContentRange(aws.ToString(out.ContentRange))
		if !ok || start != offset {
			out.Body.Close()
			return nil, errRestart
		}
		resp.Offset = start
		resp.Total = total
	}
	return resp, nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("download: invalid s3 url %q: %w", rawURL, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("download: invalid s3 url %q", rawURL)
	}
	return bucket, key, nil
}
