package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	a := ObjectKey("memory-map-v1", "uid-1", "../../etc/beach photo.JPG", now)
	b := ObjectKey("memory-map-v1", "uid-1", "../../etc/beach photo.JPG", now)

	assert.True(t, strings.HasPrefix(a, "artifacts/memory-map-v1/memories/uid-1/beach_photo.JPG_1700000000000_"), a)
	assert.NotEqual(t, a, b, "keys must differ per attempt")
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"photo.jpg", "photo.jpg"},
		{"", "file"},
		{"...", "file"},
		{`C:\Users\me\pic.png`, "pic.png"},
		{"фото.png", "____.png"},
		{strings.Repeat("a", 200), strings.Repeat("a", maxNameLen)},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, sanitize(tc.in), "in=%q", tc.in)
	}
}

type flakyUploader struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
}

func (u *flakyUploader) UploadFile(_ context.Context, f File) (string, error) {
	u.mu.Lock()
	u.calls[f.Name]++
	u.mu.Unlock()
	if u.fail[f.Name] {
		return "", errors.New("connection reset")
	}
	return "https://cdn/" + f.Name, nil
}

func TestUploadAll_SkipsFailuresKeepsOrder(t *testing.T) {
	up := &flakyUploader{fail: map[string]bool{"b": true}, calls: map[string]int{}}
	files := []File{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}

	urls := UploadAll(context.Background(), up, files, 2, nil)

	assert.Equal(t, []string{"https://cdn/a", "https://cdn/c", "https://cdn/d"}, urls)
	assert.Less(t, len(urls), len(files))
	assert.Greater(t, len(urls), 0)
	for _, f := range files {
		assert.Equal(t, 1, up.calls[f.Name], "no retries for %s", f.Name)
	}
}

func TestUploadAll_Empty(t *testing.T) {
	urls := UploadAll(context.Background(), &flakyUploader{}, nil, 0, nil)
	assert.NotNil(t, urls)
	assert.Empty(t, urls)
}

type fakeObjectAPI struct {
	puts    []*s3.PutObjectInput
	body    []byte
	deletes []string
	err     error
}

func (f *fakeObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_UploadDeleteKeyFromURL(t *testing.T) {
	api := &fakeObjectAPI{}
	s := &S3{api: api, bucket: "pins", publicBase: "http://minio:9000/pins"}

	url, err := s.Upload(context.Background(), bytes.NewReader([]byte("jpeg")), 4, "image/jpeg", "artifacts/x/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/pins/artifacts/x/a.jpg", url)
	require.Len(t, api.puts, 1)
	assert.Equal(t, "pins", aws.ToString(api.puts[0].Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(api.puts[0].ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(api.puts[0].ContentLength))
	assert.Equal(t, []byte("jpeg"), api.body)

	key, ok := s.KeyFromURL(url)
	require.True(t, ok)
	assert.Equal(t, "artifacts/x/a.jpg", key)

	_, ok = s.KeyFromURL("https://elsewhere/pins/artifacts/x/a.jpg")
	assert.False(t, ok)

	require.NoError(t, s.Delete(context.Background(), key))
	assert.Equal(t, []string{"artifacts/x/a.jpg"}, api.deletes)
}

func TestS3_UploadError(t *testing.T) {
	s := &S3{api: &fakeObjectAPI{err: errors.New("denied")}, bucket: "pins", publicBase: "http://x/pins"}
	_, err := s.Upload(context.Background(), strings.NewReader(""), 0, "", "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestNewS3_AppliesEndpointAndCredentials(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}
	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &fakeObjectAPI{}
	}

	s, err := NewS3(context.Background(), S3Config{
		Bucket:    "pins",
		Region:    "eu-west-1",
		Endpoint:  "http://127.0.0.1:9000/",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, "http://127.0.0.1:9000/pins", s.publicBase)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = NewS3(context.Background(), S3Config{Bucket: "pins"})
	require.EqualError(t, err, "load-fail")

	_, err = NewS3(context.Background(), S3Config{})
	require.Error(t, err)
}

func TestPublicBase(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com", publicBase(S3Config{PublicBaseURL: "https://cdn.example.com/"}))
	assert.Equal(t, "https://pins.s3.us-east-1.amazonaws.com", publicBase(S3Config{Bucket: "pins", Region: "us-east-1"}))
}
