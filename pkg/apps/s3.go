package apps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/vango-dev/gateway/pkg/gateway"
	"github.com/vango-dev/gateway/pkg/middleware"
)

// DefaultMaxObjectSize caps how much of an object S3Objects buffers.
const DefaultMaxObjectSize = 1 << 20

// S3API is the subset of *s3.Client used by S3Objects.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config configures S3Objects.
type S3Config struct {
	Bucket string
	Prefix string

	// MaxObjectSize is the largest object served.
	// Default: 1MB.
	MaxObjectSize int64
}

// S3ClientOptions configures NewS3Client.
type S3ClientOptions struct {
	Region   string
	Endpoint string // e.g. a MinIO URL; empty uses AWS

	// UsePathStyle addresses buckets as endpoint/bucket/key.
	UsePathStyle bool
}

// NewS3Client builds an S3 client with credentials from AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN. Without them requests are
// sent unsigned.
func NewS3Client(opts S3ClientOptions) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
		Credentials:  envCredentials(),
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	return s3.New(o)
}

func envCredentials() aws.CredentialsProvider {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	token := os.Getenv("AWS_SESSION_TOKEN")
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    token,
			Source:          "environment",
		}, nil
	}))
}

// S3Objects serves GET /<key> from the bucket and GET / as a key listing.
// Only UTF-8 text objects can be served; others get a 502.
func S3Objects(client S3API, cfg S3Config) gateway.Application {
	if cfg.MaxObjectSize <= 0 {
		cfg.MaxObjectSize = DefaultMaxObjectSize
	}
	return gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
		if env.RequestMethod != "GET" {
			return respond(start, "405 Method Not Allowed", "method not allowed\n"), nil
		}

		ctx := middleware.TraceContext(env)
		key := strings.TrimPrefix(env.PathInfo, "/")
		if i := strings.IndexByte(key, '?'); i >= 0 {
			key = key[:i]
		}
		if key == "" {
			return listObjects(ctx, client, cfg, start)
		}
		return getObject(ctx, client, cfg, key, start)
	})
}

func respond(start gateway.StartResponse, status, text string) gateway.Body {
	start(status, textPlain, nil)
	return gateway.Body{[]byte(text)}
}

func getObject(ctx context.Context, client S3API, cfg S3Config, key string, start gateway.StartResponse) (gateway.Body, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(cfg.Prefix + key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return respond(start, "404 Not Found", "not found\n"), nil
		}
		return respond(start, "502 Bad Gateway", fmt.Sprintf("s3: %v\n", err)), nil
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, cfg.MaxObjectSize+1))
	if err != nil {
		return respond(start, "502 Bad Gateway", fmt.Sprintf("s3 read: %v\n", err)), nil
	}
	if int64(len(data)) > cfg.MaxObjectSize {
		return respond(start, "502 Bad Gateway", "object too large\n"), nil
	}
	if !utf8.Valid(data) {
		return respond(start, "502 Bad Gateway", "object is not UTF-8 text\n"), nil
	}

	contentType := "text/plain"
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}
	headers := []gateway.Header{{Name: "Content-Type", Value: contentType}}
	if out.ETag != nil {
		headers = append(headers, gateway.Header{Name: "ETag", Value: *out.ETag})
	}
	start("200 OK", headers, nil)
	return gateway.Body{data}, nil
}

func listObjects(ctx context.Context, client S3API, cfg S3Config, start gateway.StartResponse) (gateway.Body, error) {
	var body gateway.Body
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.Bucket),
		Prefix: aws.String(cfg.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return respond(start, "502 Bad Gateway", fmt.Sprintf("s3 list: %v\n", err)), nil
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			body = append(body, []byte(strings.TrimPrefix(*obj.Key, cfg.Prefix)+"\n"))
		}
	}
	start("200 OK", textPlain, nil)
	return body, nil
}
