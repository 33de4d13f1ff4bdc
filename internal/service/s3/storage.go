// storage.go
package s3

import (
	"context"
	"fmt"
	"io"
)

// Object определяет интерфейс для объектов хранилища
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// object реализует интерфейс Object
type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем.
// Бакет — на крейт, ключи внутри бакета назначает вызывающий.
type Storage interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, bucket, key string) (Object, error)
	Delete(ctx context.Context, bucket, key string) error
	// DeleteMany удаляет пачку ключей одним запросом; частичные
	// отказы схлопываются в одну ошибку.
	DeleteMany(ctx context.Context, bucket string, keys []string) error
}

// BucketName возвращает имя бакета крейта: crate-{id}, в нижнем регистре.
func BucketName(crateID int64) string {
	return fmt.Sprintf("crate-%d", crateID)
}

// ObjectPrefix — префикс ключей содержимого файлов внутри бакета крейта.
const ObjectPrefix = "files/"

// ObjectKey — ключ содержимого файла внутри бакета крейта.
func ObjectKey(fileUUID string) string {
	return ObjectPrefix + fileUUID
}

// PreviewKey — ключ кэшированного превью файла в том же бакете.
func PreviewKey(fileUUID string) string {
	return "previews/" + fileUUID
}
