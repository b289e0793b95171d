package apps

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/vango-dev/gateway/pkg/gateway"
)

type captured struct {
	status  string
	headers []gateway.Header
	calls   int
}

func (c *captured) start(status string, headers []gateway.Header, _ error) {
	c.status = status
	c.headers = headers
	c.calls++
}

func (c *captured) header(name string) string {
	for _, h := range c.headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

func decode(t *testing.T, raw string) *gateway.Environ {
	t.Helper()
	env, err := gateway.Decode([]byte(raw), "localhost", 8888)
	if err != nil {
		t.Fatalf("Decode(%q) error: %v", raw, err)
	}
	return env
}

func joined(body gateway.Body) string {
	return string(bytes.Join(body, nil))
}

func TestHello(t *testing.T) {
	var c captured
	body, err := Hello("").Serve(decode(t, "GET / HTTP/1.1\r\n\r\n"), c.start)
	if err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if c.status != "200 OK" || c.header("Content-Type") != "text/plain" {
		t.Fatalf("status=%q headers=%v", c.status, c.headers)
	}
	if joined(body) != DefaultGreeting {
		t.Fatalf("body = %q", joined(body))
	}

	body, _ = Hello("hi\n").Serve(decode(t, "GET / HTTP/1.1"), c.start)
	if joined(body) != "hi\n" {
		t.Fatalf("custom body = %q", joined(body))
	}
}

func TestEnvironDump(t *testing.T) {
	raw := "POST /submit HTTP/1.0\r\nHost: x\r\n\r\npayload"
	env := decode(t, raw).With("custom.key", "v")

	var c captured
	body, err := EnvironDump().Serve(env, c.start)
	if err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	out := joined(body)
	for _, want := range []string{
		"REQUEST_METHOD = POST\n",
		"PATH_INFO = /submit\n",
		"SERVER_PROTOCOL = HTTP/1.0\n",
		"SERVER_PORT = 8888\n",
		"custom.key = v\n",
		"--- wsgi.input ---\n" + raw,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "wsgi.errors =") {
		t.Errorf("output should not print wsgi.errors:\n%s", out)
	}
}

type fakeS3 struct {
	objects map[string]string
	getErr  error
	listErr error
	gets    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets = append(f.gets, aws.ToString(in.Key))
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(data)),
		ETag: aws.String(`"etag"`),
	}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func TestS3Objects(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"site/index.txt": "hello from s3\n",
		"site/bin":       "\xff\xfe",
	}}
	app := S3Objects(client, S3Config{Bucket: "b", Prefix: "site/"})

	tests := []struct {
		name       string
		request    string
		wantStatus string
		wantBody   string
	}{
		{"object", "GET /index.txt HTTP/1.1", "200 OK", "hello from s3\n"},
		{"query ignored", "GET /index.txt?x=1 HTTP/1.1", "200 OK", "hello from s3\n"},
		{"missing", "GET /nope HTTP/1.1", "404 Not Found", "not found\n"},
		{"binary", "GET /bin HTTP/1.1", "502 Bad Gateway", "object is not UTF-8 text\n"},
		{"method", "PUT /index.txt HTTP/1.1", "405 Method Not Allowed", "method not allowed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c captured
			body, err := app.Serve(decode(t, tt.request), c.start)
			if err != nil {
				t.Fatalf("Serve() error: %v", err)
			}
			if c.status != tt.wantStatus {
				t.Fatalf("status = %q, want %q", c.status, tt.wantStatus)
			}
			if got := joined(body); got != tt.wantBody {
				t.Fatalf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}

	if client.gets[0] != "site/index.txt" {
		t.Fatalf("GetObject key = %q, want prefixed key", client.gets[0])
	}
}

func TestS3Objects_ETagAndContentType(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"a": "x"}}
	var c captured
	if _, err := S3Objects(client, S3Config{Bucket: "b"}).Serve(decode(t, "GET /a HTTP/1.1"), c.start); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if c.header("Content-Type") != "text/plain" || c.header("ETag") != `"etag"` {
		t.Fatalf("headers = %v", c.headers)
	}
}

func TestS3Objects_Listing(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"site/a.txt": "a"}}
	var c captured
	body, err := S3Objects(client, S3Config{Bucket: "b", Prefix: "site/"}).Serve(decode(t, "GET / HTTP/1.1"), c.start)
	if err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if c.status != "200 OK" || joined(body) != "a.txt\n" {
		t.Fatalf("status=%q body=%q", c.status, joined(body))
	}
}

func TestS3Objects_UpstreamErrors(t *testing.T) {
	client := &fakeS3{getErr: errors.New("boom"), listErr: errors.New("boom")}
	app := S3Objects(client, S3Config{Bucket: "b"})

	for _, req := range []string{"GET /a HTTP/1.1", "GET / HTTP/1.1"} {
		var c captured
		body, err := app.Serve(decode(t, req), c.start)
		if err != nil {
			t.Fatalf("Serve(%q) error: %v", req, err)
		}
		if c.status != "502 Bad Gateway" || !strings.Contains(joined(body), "boom") {
			t.Fatalf("Serve(%q): status=%q body=%q", req, c.status, joined(body))
		}
	}
}

func TestS3Objects_TooLarge(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"big": strings.Repeat("x", 11)}}
	var c captured
	_, _ = S3Objects(client, S3Config{Bucket: "b", MaxObjectSize: 10}).Serve(decode(t, "GET /big HTTP/1.1"), c.start)
	if c.status != "502 Bad Gateway" {
		t.Fatalf("status = %q, want 502", c.status)
	}
}

func TestNewS3Client(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	c := NewS3Client(S3ClientOptions{Region: "us-east-1", Endpoint: "http://localhost:9000", UsePathStyle: true})
	o := c.Options()
	if o.Region != "us-east-1" || !o.UsePathStyle || aws.ToString(o.BaseEndpoint) != "http://localhost:9000" {
		t.Fatalf("options = %+v", o)
	}
	if _, ok := envCredentials().(aws.AnonymousCredentials); !ok {
		t.Fatalf("credentials = %T, want anonymous", envCredentials())
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "id")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	creds, err := envCredentials().Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "id" || creds.SecretAccessKey != "secret" {
		t.Fatalf("Retrieve() = %+v, %v", creds, err)
	}
}
