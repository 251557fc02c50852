package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

const MaxAvatarBytes = 5 << 20

var (
	ErrAvatarTooLarge = errors.New("avatar must be at most 5MB")
	ErrAvatarType     = errors.New("avatar must be a JPEG, PNG, GIF or WebP image")
	ErrUploadDisabled = errors.New("avatar uploads are not configured")
)

var allowedAvatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AvatarUploader stores an avatar image and returns its public URL.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, userID uuid.UUID, file io.Reader) (string, error)
}

type CloudinaryService struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryService(cloudName, apiKey, apiSecret string) (*CloudinaryService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}

	return &CloudinaryService{
		cld:    cld,
		folder: "avatars",
	}, nil
}

// ReadAvatar reads at most MaxAvatarBytes and checks the content type by
// sniffing the bytes rather than trusting the client's header.
func ReadAvatar(file io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > MaxAvatarBytes {
		return nil, ErrAvatarTooLarge
	}
	if !allowedAvatarTypes[http.DetectContentType(data)] {
		return nil, ErrAvatarType
	}
	return data, nil
}

// UploadAvatar replaces the user's avatar; each user has one public id so
// re-uploads overwrite the previous image.
func (s *CloudinaryService) UploadAvatar(ctx context.Context, userID uuid.UUID, file io.Reader) (string, error) {
	data, err := ReadAvatar(file)
	if err != nil {
		return "", err
	}

	uploadResult, err := s.cld.Upload.Upload(ctx, data, uploader.UploadParams{
		Folder:         s.folder,
		PublicID:       "user_" + userID.String() + "_avatar",
		Overwrite:      api.Bool(true),
		Invalidate:     api.Bool(true),
		ResourceType:   "image",
		Transformation: "c_limit,h_300,q_auto:best,w_300/f_webp",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if uploadResult.Error.Message != "" {
		return "", fmt.Errorf("failed to upload to Cloudinary: %s", uploadResult.Error.Message)
	}

	return uploadResult.SecureURL, nil
}

// DisabledUploader rejects every upload. Used when Cloudinary is not configured.
type DisabledUploader struct{}

func (DisabledUploader) UploadAvatar(context.Context, uuid.UUID, io.Reader) (string, error) {
	return "", ErrUploadDisabled
}
