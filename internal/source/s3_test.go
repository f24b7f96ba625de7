package source_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Anish-Chanda/sdhash/internal/source"
)

// fakeS3 serves a single object from memory and records the ranges asked for.
type fakeS3 struct {
	bucket, key string
	data        []byte
	ranges      []string
	fail        error
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if aws.ToString(in.Bucket) != f.bucket || aws.ToString(in.Key) != f.key {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(f.data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	rng := aws.ToString(in.Range)
	f.ranges = append(f.ranges, rng)
	var start, end int
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.data[start : end+1]))}, nil
}

func TestS3Object_ReadAt(t *testing.T) {
	fake := &fakeS3{bucket: "b", key: "obj", data: []byte("0123456789")}
	src, err := source.Open(context.Background(), "s3://b/obj", fake)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if src.Name() != "s3://b/obj" {
		t.Errorf("Name() = %q", src.Name())
	}
	if size, _ := src.Size(); size != 10 {
		t.Errorf("Size() = %d, want 10", size)
	}

	buf := make([]byte, 4)
	n, err := src.ReadAt(buf, 3)
	if err != nil || string(buf[:n]) != "3456" {
		t.Errorf("ReadAt(3) = %q, %v", buf[:n], err)
	}

	n, err = src.ReadAt(buf, 8)
	if n != 2 || err != io.EOF || string(buf[:n]) != "89" {
		t.Errorf("ReadAt(8) = %q, %v; want \"89\", EOF", buf[:n], err)
	}

	if _, err := src.ReadAt(buf, 10); err != io.EOF {
		t.Errorf("ReadAt(10) error = %v, want EOF", err)
	}

	want := []string{"bytes=3-6", "bytes=8-9"}
	if fmt.Sprint(fake.ranges) != fmt.Sprint(want) {
		t.Errorf("ranges = %v, want %v", fake.ranges, want)
	}
}

func TestS3Object_Errors(t *testing.T) {
	fake := &fakeS3{bucket: "b", key: "obj", data: []byte("data")}
	if _, err := source.OpenS3(context.Background(), fake, "b", "missing"); err == nil {
		t.Error("expected error for missing key")
	}

	src, err := source.OpenS3(context.Background(), fake, "b", "obj")
	if err != nil {
		t.Fatalf("OpenS3() error: %v", err)
	}
	fake.fail = errors.New("connection reset")
	if _, err := src.ReadAt(make([]byte, 2), 0); !errors.Is(err, fake.fail) {
		t.Errorf("expected wrapped GetObject error, got %v", err)
	}
}
