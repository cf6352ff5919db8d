package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func TestAssetKeyIsDeterministic(t *testing.T) {
	a := AssetKey("ws-1", "job-1", "image/png")
	b := AssetKey("ws-1", "job-1", "image/png; charset=binary")
	if a != "generated/ws-1/job-1.png" || a != b {
		t.Fatalf("keys = %q, %q", a, b)
	}
	if got := AssetKey("ws-1", "job-1", "image/jpeg"); got != "generated/ws-1/job-1.jpg" {
		t.Fatalf("jpeg key = %q", got)
	}
	if got := AssetKey("ws-1", "job-1", ""); got != "generated/ws-1/job-1.bin" {
		t.Fatalf("empty type key = %q", got)
	}
}

func TestFileStorePutWritesAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	url, err := store.Put(ctx, "/generated/ws/job.png", []byte("first"), "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "http://localhost:8080/static/generated/ws/job.png" {
		t.Fatalf("url = %q", url)
	}
	if _, err := store.Put(ctx, "generated/ws/job.png", []byte("second"), "image/png"); err != nil {
		t.Fatalf("second put: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "generated", "ws", "job.png"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("content = %q", data)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "generated", "ws"))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "../etc/passwd", "a/../../b", ".."} {
		if _, err := sanitizeKey(key); err == nil {
			t.Errorf("sanitizeKey(%q) should fail", key)
		}
	}
	if got, err := sanitizeKey(`.\a\b.png`); err != nil || got != "a/b.png" {
		t.Fatalf("sanitizeKey backslashes = %q, %v", got, err)
	}
}

type stubS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  []byte
}

func (s *stubS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	s.input = in
	s.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePut(t *testing.T) {
	client := &stubS3{}
	store := newS3Store(client, S3Options{Bucket: "assets", Region: "eu-west-1"})
	url, err := store.Put(context.Background(), "generated/ws/job.webp", []byte("img"), "image/webp")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "https://assets.s3.eu-west-1.amazonaws.com/generated/ws/job.webp" {
		t.Fatalf("url = %q", url)
	}
	if aws.StringValue(client.input.Bucket) != "assets" || aws.StringValue(client.input.Key) != "generated/ws/job.webp" {
		t.Fatalf("unexpected input: %+v", client.input)
	}
	if aws.StringValue(client.input.ContentType) != "image/webp" || string(client.body) != "img" {
		t.Fatalf("unexpected body/content type")
	}
}

func TestS3StoreCustomEndpointURL(t *testing.T) {
	store := newS3Store(&stubS3{}, S3Options{Bucket: "b", Endpoint: "http://minio:9000/"})
	url, err := store.Put(context.Background(), "k.png", nil, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "http://minio:9000/b/k.png" {
		t.Fatalf("url = %q", url)
	}
}
