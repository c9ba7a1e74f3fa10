package s3_test

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	s3repo "github.com/absmach/fedround/pkg/storage/s3"
	"github.com/absmach/fedround/pkg/storage/testutil"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket is an in-memory stand-in for a single S3 bucket. It returns at
// most two keys per list page so pagination is exercised.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data

	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeBucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &s3types.NotFound{}
	}

	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))

	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = slices.BinarySearch(keys, aws.ToString(in.ContinuationToken))
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}

	return out, nil
}

func TestRunRepository(t *testing.T) {
	repo := s3repo.NewRepository(newFakeBucket(), "runs-bucket", "fedround/runs/")
	testutil.RunRepositoryContract(t, repo)
}

func TestObjectsAreCompressedUnderPrefix(t *testing.T) {
	bucket := newFakeBucket()
	repo := s3repo.NewRepository(bucket, "runs-bucket", "team-a/")

	require.NoError(t, repo.Save(context.Background(), testutil.TestRun("r1", 0)))
	bucket.objects["team-a/notes.txt"] = []byte("ignored")
	bucket.objects["team-b/r2.cbor.sz"] = []byte("other tenant")

	assert.Contains(t, bucket.objects, "team-a/r1.cbor.sz")

	recs, total, err := repo.List(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	assert.Equal(t, "r1", recs[0].ID)
}

func TestRejectsSlashInID(t *testing.T) {
	repo := s3repo.NewRepository(newFakeBucket(), "b", "")
	assert.ErrorIs(t, repo.Save(context.Background(), testutil.TestRun("a/b", 0)), pkgerrors.ErrInvalidID)
}
