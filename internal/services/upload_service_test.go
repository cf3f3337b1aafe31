package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	duet_errors "duet-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPutter struct {
	mock.Mock
}

func (m *mockPutter) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	args := m.Called(ctx, key, contentType, body)
	return args.String(0), args.Error(1)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func dataURL(body []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(body)
}

func TestResolvePassesThroughURLs(t *testing.T) {
	putter := &mockPutter{}
	svc := NewImageService(putter, 1024)

	for _, in := range []string{"", "https://cdn.example.com/a.png", "http://img.local/b.jpg"} {
		got, err := svc.Resolve(context.Background(), uuid.New(), in)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	}
	putter.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveUploadsDataURL(t *testing.T) {
	owner := uuid.New()
	putter := &mockPutter{}
	putter.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "images/"+owner.String()+"/") && strings.HasSuffix(key, ".png")
	}), "image/png", pngHeader).Return("https://cdn.example.com/x.png", nil).Once()

	got, err := NewImageService(putter, 1024).Resolve(context.Background(), owner, dataURL(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.png", got)
	putter.AssertExpectations(t)
}

func TestResolveFailures(t *testing.T) {
	owner := uuid.New()

	failing := &mockPutter{}
	failing.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket gone"))

	cases := []struct {
		name    string
		svc     *ImageService
		image   string
		wantErr error
	}{
		{"not a url", NewImageService(failing, 1024), "file.png", duet_errors.ErrValidation},
		{"not base64", NewImageService(failing, 1024), "data:image/png,raw", duet_errors.ErrValidation},
		{"bad base64", NewImageService(failing, 1024), "data:image/png;base64,@@@", duet_errors.ErrValidation},
		{"not an image", NewImageService(failing, 1024), dataURL([]byte("just some text")), duet_errors.ErrValidation},
		{"too large", NewImageService(failing, 4), dataURL(pngHeader), duet_errors.ErrTooLarge},
		{"too large before decoding", NewImageService(failing, 16), "data:image/png;base64," + strings.Repeat("@", 1<<10), duet_errors.ErrTooLarge},
		{"no storage", NewImageService(nil, 1024), dataURL(pngHeader), duet_errors.ErrUpload},
		{"upload error", NewImageService(failing, 1024), dataURL(pngHeader), duet_errors.ErrUpload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.svc.Resolve(context.Background(), owner, tc.image)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
