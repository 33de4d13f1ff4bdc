package domain

import "time"

// Folder — узел дерева внутри крейта. ParentID равен nil только у
// корневой папки (is_root), которую нельзя удалить или переместить.
// Мягкое удаление помечает только саму папку: видимость потомков
// вычисляется по цепочке предков при чтении, а не раскидывается по
// строкам.
type Folder struct {
	ID         int64      `json:"id" db:"id"`
	CrateID    int64      `json:"crate_id" db:"crate_id"`
	Name       string     `json:"name" db:"name"`
	Color      string     `json:"color" db:"color"`
	ParentID   *int64     `json:"parent_id,omitempty" db:"parent_id"`
	IsRoot     bool       `json:"is_root" db:"is_root"`
	CreatedBy  string     `json:"created_by" db:"created_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy  *string    `json:"deleted_by,omitempty" db:"deleted_by"`
	RestoredAt *time.Time `json:"restored_at,omitempty" db:"restored_at"`
	RestoredBy *string    `json:"restored_by,omitempty" db:"restored_by"`
}

// Deleted сообщает, помечена ли сама папка удалённой.
func (f *Folder) Deleted() bool {
	return f.DeletedAt != nil
}

const (
	ItemTypeFolder = "folder"
	ItemTypeFile   = "file"
)

// CrateItem — строка объединённого списка содержимого уровня:
// папки и файлы в одном срезе, папки раньше файлов.
type CrateItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	MIMEType  string    `json:"mime_type,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FolderContent — страница содержимого папки после слияния,
// поиска и сортировки.
type FolderContent struct {
	Folder   Folder      `json:"folder"`
	Items    []CrateItem `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
