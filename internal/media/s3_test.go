package media

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectAPI struct {
	puts    map[string]string
	deleted []string
	putErr  error
}

func (f *fakeObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestS3(api objectAPI) *S3 {
	return newS3(api, S3Options{
		Bucket:        "media",
		PublicBaseURL: "https://cdn.example.com/",
		KeyPrefix:     "/avatars/",
	})
}

func TestS3Upload_PutsObjectUnderPrefix(t *testing.T) {
	api := &fakeObjectAPI{}
	host := newTestS3(api)

	asset, err := host.Upload(context.Background(), writeTempFile(t, "me.PNG", "image"))
	require.NoError(t, err)
	require.NotNil(t, asset)

	assert.Regexp(t, `^avatars/[0-9a-f-]{36}\.png$`, asset.PublicID)
	assert.Equal(t, "https://cdn.example.com/"+asset.PublicID, asset.URL)
	assert.Equal(t, "image", api.puts[asset.PublicID])
}

func TestS3Upload_EmptyPath(t *testing.T) {
	asset, err := newTestS3(&fakeObjectAPI{}).Upload(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, asset)
}

func TestS3Upload_PutError(t *testing.T) {
	host := newTestS3(&fakeObjectAPI{putErr: errors.New("access denied")})

	_, err := host.Upload(context.Background(), writeTempFile(t, "me.png", "image"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3Destroy(t *testing.T) {
	api := &fakeObjectAPI{}
	host := newTestS3(api)

	require.NoError(t, host.Destroy(context.Background(), "https://cdn.example.com/avatars/x.png"))
	assert.Equal(t, []string{"avatars/x.png"}, api.deleted)

	assert.Error(t, host.Destroy(context.Background(), "https://elsewhere.example.com/avatars/x.png"))
}
