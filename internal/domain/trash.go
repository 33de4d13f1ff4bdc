package domain

import (
	"time"

	"github.com/google/uuid"
)

// TrashItem — элемент корзины (файл или папка). В корзину попадают
// только явно удалённые элементы: потомки удалённой папки сохраняют
// свои собственные флаги и отдельной строкой не показываются.
type TrashItem struct {
	ID            string    `json:"id" db:"id"`
	Type          string    `json:"type" db:"type"`
	Name          string    `json:"name" db:"name"`
	SizeBytes     int64     `json:"size_bytes" db:"size_bytes"`
	MIMEType      *string   `json:"mime_type,omitempty" db:"mime_type"`
	DeletedAt     time.Time `json:"deleted_at" db:"deleted_at"`
	DeletedBy     string    `json:"deleted_by" db:"deleted_by"`
	DeletedByName string    `json:"deleted_by_name,omitempty"`
}

// ExpiredRef — ссылка на элемент корзины, пересидевший срок хранения.
// Для файла заполнен FileUUID, для папки — FolderID.
type ExpiredRef struct {
	CrateID  int64     `db:"crate_id"`
	Type     string    `db:"type"`
	FileUUID uuid.UUID `db:"file_uuid"`
	FolderID int64     `db:"folder_id"`
}

// TrashPage — страница объединённого списка корзины,
// отсортированного по убыванию времени удаления.
type TrashPage struct {
	Items    []TrashItem `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
