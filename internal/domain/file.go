package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// File — лист дерева. FolderID равен nil для файлов в корне крейта.
// SizeBytes — единственный источник правды для учёта квоты, размер
// никогда не перечитывается из хранилища объектов. StorageKey
// назначается при загрузке и не меняется.
type File struct {
	UUID       uuid.UUID  `json:"uuid" db:"uuid"`
	CrateID    int64      `json:"crate_id" db:"crate_id"`
	FolderID   *int64     `json:"folder_id,omitempty" db:"folder_id"`
	Name       string     `json:"name" db:"name"`
	MIMEType   string     `json:"mime_type" db:"mime_type"`
	SizeBytes  int64      `json:"size_bytes" db:"size_bytes"`
	StorageKey string     `json:"-" db:"storage_key"`
	UploadedBy string     `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy  *string    `json:"deleted_by,omitempty" db:"deleted_by"`
	RestoredAt *time.Time `json:"restored_at,omitempty" db:"restored_at"`
	RestoredBy *string    `json:"restored_by,omitempty" db:"restored_by"`
}

func (f *File) Deleted() bool {
	return f.DeletedAt != nil
}

// FileUpload — параметры загрузки, собранные хендлером.
type FileUpload struct {
	CrateID  int64
	FolderID *int64
	Name     string
	MIMEType string
	Size     int64
}

// Категории MIME для отчёта об использовании хранилища.
const (
	CategoryImages       = "images"
	CategoryVideo        = "video"
	CategoryAudio        = "audio"
	CategoryPDF          = "pdf"
	CategoryText         = "text"
	CategorySpreadsheets = "spreadsheets"
	CategoryCode         = "code"
	CategoryArchives     = "archives"
	CategoryOther        = "other"
)

// CategoryUsage — суммарный объём одной категории.
type CategoryUsage struct {
	Category  string `json:"category"`
	Files     int    `json:"files"`
	SizeBytes int64  `json:"size_bytes"`
}

var mimeExact = map[string]string{
	"application/pdf":              CategoryPDF,
	"text/csv":                     CategorySpreadsheets,
	"application/vnd.ms-excel":     CategorySpreadsheets,
	"application/zip":              CategoryArchives,
	"application/gzip":             CategoryArchives,
	"application/x-tar":            CategoryArchives,
	"application/x-7z-compressed":  CategoryArchives,
	"application/x-rar-compressed": CategoryArchives,
	"application/json":             CategoryCode,
	"application/xml":              CategoryCode,
	"application/javascript":       CategoryCode,
	"text/html":                    CategoryCode,
	"text/css":                     CategoryCode,
	"text/x-go":                    CategoryCode,
	"text/x-python":                CategoryCode,
}

// MimeCategory относит MIME-тип к одной из крупных корзин отчёта.
// Сначала точные совпадения, затем по префиксу.
func MimeCategory(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	if category, ok := mimeExact[mt]; ok {
		return category
	}
	if strings.Contains(mt, "spreadsheet") {
		return CategorySpreadsheets
	}

	switch {
	case strings.HasPrefix(mt, "image/"):
		return CategoryImages
	case strings.HasPrefix(mt, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mt, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(mt, "text/"):
		return CategoryText
	default:
		return CategoryOther
	}
}
