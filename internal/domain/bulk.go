package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// BulkOperation — единая операция пакетного запроса.
type BulkOperation string

const (
	BulkMove    BulkOperation = "move"
	BulkDelete  BulkOperation = "delete"
	BulkRestore BulkOperation = "restore"
)

func ParseBulkOperation(s string) (BulkOperation, error) {
	switch BulkOperation(s) {
	case BulkMove, BulkDelete, BulkRestore:
		return BulkOperation(s), nil
	}
	return "", fmt.Errorf("unknown bulk operation: %q", s)
}

// BulkRequest — смешанный набор файлов и папок плюс одна операция.
// Для move пустой TargetFolderID означает корень крейта.
// Файлы, уже накрытые папкой из того же запроса, отфильтровываются
// до выполнения: операция над папкой их и так покрывает.
type BulkRequest struct {
	Operation      BulkOperation `json:"operation"`
	FileIDs        []uuid.UUID   `json:"file_ids"`
	FolderIDs      []int64       `json:"folder_ids"`
	TargetFolderID *int64        `json:"target_folder_id,omitempty"`
}

// BulkResult — что реально было обработано. Файлы, поглощённые
// папками запроса, попадают в Skipped.
type BulkResult struct {
	Folders int         `json:"folders"`
	Files   int         `json:"files"`
	Skipped []uuid.UUID `json:"skipped,omitempty"`
}
