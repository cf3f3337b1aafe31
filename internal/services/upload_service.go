package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	duet_errors "duet-chat/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ObjectPutter stores an object and returns its public URL.
type ObjectPutter interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// ImageService turns the image field of a submission into a resolved URL.
// Inline data URLs are decoded and uploaded; http(s) URLs pass through.
type ImageService struct {
	storage  ObjectPutter
	maxBytes int64
}

func NewImageService(storage ObjectPutter, maxBytes int64) *ImageService {
	return &ImageService{storage: storage, maxBytes: maxBytes}
}

// Resolve returns "" for an empty image. Upload failures are reported as
// ErrUpload; nothing should be persisted after one.
func (s *ImageService) Resolve(ctx context.Context, ownerID uuid.UUID, image string) (string, error) {
	image = strings.TrimSpace(image)
	switch {
	case image == "":
		return "", nil
	case strings.HasPrefix(image, "https://"), strings.HasPrefix(image, "http://"):
		return image, nil
	case !strings.HasPrefix(image, "data:"):
		return "", fmt.Errorf("%w: image must be a data URL or http(s) URL", duet_errors.ErrValidation)
	}

	body, err := decodeDataURL(image, s.maxBytes)
	if err != nil {
		return "", err
	}

	mtype := mimetype.Detect(body)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: unsupported image type %s", duet_errors.ErrValidation, mtype.String())
	}

	if s.storage == nil {
		return "", fmt.Errorf("%w: storage is not configured", duet_errors.ErrUpload)
	}
	key := fmt.Sprintf("images/%s/%s%s", ownerID, uuid.New(), mtype.Extension())
	url, err := s.storage.Put(ctx, key, mtype.String(), body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", duet_errors.ErrUpload, err)
	}
	return url, nil
}

// decodeDataURL accepts "data:[<mediatype>];base64,<payload>".
// Oversized payloads are rejected from their encoded length, before decoding.
func decodeDataURL(value string, maxBytes int64) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: image data URL must be base64", duet_errors.ErrValidation)
	}
	tooLarge := fmt.Errorf("%w: image exceeds %d bytes", duet_errors.ErrTooLarge, maxBytes)
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
		return nil, tooLarge
	}
	body, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image", duet_errors.ErrValidation)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty image", duet_errors.ErrValidation)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, tooLarge
	}
	return body, nil
}
