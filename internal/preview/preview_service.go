package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/h2non/bimg"
	log "github.com/sirupsen/logrus"

	"cratedrive/internal/apperr"
	"cratedrive/internal/service/s3"
)

const (
	maxImageSize = 1024 // максимальная сторона превью в пикселях
	jpegQuality  = 85
)

// Service генерирует и кэширует превью изображений. Превью живёт
// в бакете своего крейта под ключом previews/{uuid}: окончательное
// удаление файла чистит и его превью.
type Service struct {
	storage s3.Storage
}

func NewService(storage s3.Storage) *Service {
	return &Service{storage: storage}
}

// Supported сообщает, умеем ли мы строить превью для данного MIME.
func Supported(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

// GetOrGenerate возвращает JPEG-превью файла, создавая и кэшируя его
// при первом обращении. source читается целиком только при промахе кэша.
func (s *Service) GetOrGenerate(ctx context.Context, crateID int64, fileUUID, mimeType string, source io.Reader) ([]byte, error) {
	if !Supported(mimeType) {
		return nil, apperr.Validation("previews are not supported for %s", mimeType)
	}

	bucket := s3.BucketName(crateID)
	key := s3.PreviewKey(fileUUID)

	if cached, err := s.storage.Get(ctx, bucket, key); err == nil {
		defer cached.Close()
		data, err := io.ReadAll(cached)
		if err == nil {
			return data, nil
		}
		log.Printf("Failed to read cached preview %s: %v", key, err)
	}

	original, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read source image: %w", err)
	}

	thumbnail, err := generateThumbnail(original)
	if err != nil {
		return nil, apperr.Storage(err, "failed to generate preview for %s", fileUUID)
	}

	// Промах кэша не критичен: превью пересоберётся в следующий раз
	if err := s.storage.Put(ctx, bucket, key, bytes.NewReader(thumbnail), "image/jpeg"); err != nil {
		log.Printf("Failed to cache preview %s: %v", key, err)
	}

	return thumbnail, nil
}

func generateThumbnail(data []byte) ([]byte, error) {
	img := bimg.NewImage(data)

	size, err := img.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to read image dimensions: %w", err)
	}

	width, height := size.Width, size.Height
	if width > maxImageSize || height > maxImageSize {
		if width > height {
			height = height * maxImageSize / width
			width = maxImageSize
		} else {
			width = width * maxImageSize / height
			height = maxImageSize
		}
	}

	return img.Process(bimg.Options{
		Width:   width,
		Height:  height,
		Quality: jpegQuality,
		Type:    bimg.JPEG,
	})
}
