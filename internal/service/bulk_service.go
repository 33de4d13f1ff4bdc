package service

import (
	"context"

	"cratedrive/internal/apperr"
	"cratedrive/internal/domain"
)

// BulkService выполняет одну операцию над смешанным набором папок и
// файлов. Порядок фиксирован: сначала папки в порядке запроса, затем
// файлы. Первый отказ прерывает остаток набора; уже применённые
// изменения не откатываются.
type BulkService struct {
	folders   FolderStore
	files     FileStore
	folderSvc *FolderService
	fileSvc   *FileService
}

func NewBulkService(folders FolderStore, files FileStore, folderSvc *FolderService, fileSvc *FileService) *BulkService {
	return &BulkService{
		folders:   folders,
		files:     files,
		folderSvc: folderSvc,
		fileSvc:   fileSvc,
	}
}

// subsumed отвечает, накрыт ли файл какой-либо папкой из набора:
// цепочка родителей файла пересекается с запрошенными папками.
func (s *BulkService) subsumed(ctx context.Context, file *domain.File, folderSet map[int64]bool) (bool, error) {
	if file.FolderID == nil || len(folderSet) == 0 {
		return false, nil
	}

	id := *file.FolderID
	for {
		if folderSet[id] {
			return true, nil
		}
		folder, err := s.folders.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		if folder.ParentID == nil {
			return false, nil
		}
		id = *folder.ParentID
	}
}

// Execute применяет операцию запроса. Для move и delete файлы, уже
// накрытые папками того же запроса, пропускаются: операция над папкой
// покрывает их содержимое. Для restore фильтрации нет — возврат папки
// не снимает собственный флаг удаления вложенного файла.
func (s *BulkService) Execute(ctx context.Context, crateID int64, userID string, req domain.BulkRequest) (*domain.BulkResult, error) {
	op, err := domain.ParseBulkOperation(string(req.Operation))
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if len(req.FolderIDs) == 0 && len(req.FileIDs) == 0 {
		return nil, apperr.Validation("bulk request is empty")
	}

	folderSet := make(map[int64]bool, len(req.FolderIDs))
	for _, id := range req.FolderIDs {
		folderSet[id] = true
	}

	result := &domain.BulkResult{}

	for _, id := range req.FolderIDs {
		switch op {
		case domain.BulkMove:
			err = s.folderSvc.Move(ctx, crateID, userID, id, req.TargetFolderID)
		case domain.BulkDelete:
			err = s.folderSvc.SoftDelete(ctx, crateID, userID, id)
		case domain.BulkRestore:
			err = s.folderSvc.Restore(ctx, crateID, userID, id)
		}
		if err != nil {
			return result, err
		}
		result.Folders++
	}

	for _, id := range req.FileIDs {
		if op != domain.BulkRestore {
			file, err := s.files.GetByUUID(ctx, id)
			if err != nil {
				return result, err
			}
			covered, err := s.subsumed(ctx, file, folderSet)
			if err != nil {
				return result, err
			}
			if covered {
				result.Skipped = append(result.Skipped, id)
				continue
			}
		}

		switch op {
		case domain.BulkMove:
			err = s.fileSvc.Move(ctx, crateID, userID, id, req.TargetFolderID)
		case domain.BulkDelete:
			err = s.fileSvc.SoftDelete(ctx, crateID, userID, id)
		case domain.BulkRestore:
			err = s.fileSvc.Restore(ctx, crateID, userID, id)
		}
		if err != nil {
			return result, err
		}
		result.Files++
	}

	return result, nil
}
