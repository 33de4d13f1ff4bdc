package service

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"cratedrive/internal/apperr"
	"cratedrive/internal/domain"
	"cratedrive/internal/service/s3"
)

// MaxFileSize ограничивает размер одной загрузки.
const MaxFileSize = 100 << 20 // 100MB

// FileService управляет жизненным циклом файла: загрузка с учётом
// квоты, выдача, перемещение, корзина и окончательное удаление.
type FileService struct {
	files    FileStore
	folders  FolderStore
	crates   CrateStore
	perms    *PermissionService
	quotaSvc *StorageQuotaService
	storage  s3.Storage
}

func NewFileService(files FileStore, folders FolderStore, crates CrateStore, perms *PermissionService, quotaSvc *StorageQuotaService, storage s3.Storage) *FileService {
	return &FileService{
		files:    files,
		folders:  folders,
		crates:   crates,
		perms:    perms,
		quotaSvc: quotaSvc,
		storage:  storage,
	}
}

// normalizeFolder резолвит целевую папку загрузки или перемещения.
// Корень крейта нормализуется в nil: файлы верхнего уровня хранятся
// с пустым folder_id.
func (s *FileService) normalizeFolder(ctx context.Context, crateID int64, folderID *int64) (*int64, error) {
	if folderID == nil {
		return nil, nil
	}

	folder, err := s.folders.GetByID(ctx, *folderID)
	if err != nil {
		return nil, err
	}
	if folder.CrateID != crateID {
		return nil, apperr.NotFound("folder %d not found", *folderID)
	}
	if folder.Deleted() {
		return nil, apperr.NotFound("folder %d is deleted", *folderID)
	}
	buried, err := s.folders.HasDeletedAncestor(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	if buried {
		return nil, apperr.NotFound("folder %d is deleted", *folderID)
	}

	if folder.IsRoot {
		return nil, nil
	}
	return &folder.ID, nil
}

func validateUpload(upload domain.FileUpload) error {
	if upload.Name == "" {
		return apperr.Validation("file name is required")
	}
	if upload.Size <= 0 {
		return apperr.Validation("file is empty")
	}
	if upload.Size > MaxFileSize {
		return apperr.Validation("file exceeds maximum size of %d bytes", int64(MaxFileSize))
	}
	if strings.HasPrefix(strings.ToLower(upload.MIMEType), "video/") {
		return apperr.Validation("video uploads are not supported")
	}
	return nil
}

// Upload принимает файл. Порядок шагов фиксирован: ранняя проверка
// квоты — запись объекта в хранилище — транзакционная вставка
// метаданных со списанием квоты. Если вставка не прошла, объект
// из хранилища убирается компенсирующим удалением.
func (s *FileService) Upload(ctx context.Context, userID string, upload domain.FileUpload, body io.Reader) (*domain.File, error) {
	if _, err := s.perms.Require(ctx, upload.CrateID, userID, domain.RoleUploader); err != nil {
		return nil, err
	}
	if err := validateUpload(upload); err != nil {
		return nil, err
	}

	folderID, err := s.normalizeFolder(ctx, upload.CrateID, upload.FolderID)
	if err != nil {
		return nil, err
	}

	crate, err := s.crates.GetByID(ctx, upload.CrateID)
	if err != nil {
		return nil, err
	}

	// Ранний отказ до записи объекта; решающая проверка — в транзакции
	if crate.UsedBytes+upload.Size > crate.AllocatedBytes {
		return nil, apperr.QuotaExceeded("crate quota exceeded: %d of %d bytes used, %d requested",
			crate.UsedBytes, crate.AllocatedBytes, upload.Size)
	}
	if err := s.quotaSvc.CanConsume(ctx, crate.OwnerID, upload.Size); err != nil {
		return nil, err
	}

	file := &domain.File{
		UUID:       uuid.New(),
		CrateID:    upload.CrateID,
		FolderID:   folderID,
		Name:       upload.Name,
		MIMEType:   upload.MIMEType,
		SizeBytes:  upload.Size,
		UploadedBy: userID,
	}
	file.StorageKey = s3.ObjectKey(file.UUID.String())

	bucket := s3.BucketName(upload.CrateID)
	if err := s.storage.EnsureBucket(ctx, bucket); err != nil {
		return nil, apperr.Storage(err, "failed to prepare crate bucket")
	}
	if err := s.storage.Put(ctx, bucket, file.StorageKey, body, upload.MIMEType); err != nil {
		return nil, apperr.Storage(err, "failed to store file")
	}

	if err := s.files.Create(ctx, file); err != nil {
		// Компенсирующее удаление: объект без строки метаданных
		// не должен оставаться в хранилище
		if delErr := s.storage.Delete(ctx, bucket, file.StorageKey); delErr != nil {
			log.Printf("Failed to delete orphaned object %s: %v", file.StorageKey, delErr)
		}
		return nil, err
	}

	return file, nil
}

// visible возвращает активный файл крейта, учитывая цепочку предков.
func (s *FileService) visible(ctx context.Context, crateID int64, fileID uuid.UUID) (*domain.File, error) {
	file, err := s.files.GetByUUID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.CrateID != crateID {
		return nil, apperr.NotFound("file %s not found", fileID)
	}
	if file.Deleted() {
		return nil, apperr.NotFound("file %s is deleted", fileID)
	}

	if file.FolderID != nil {
		folder, err := s.folders.GetByID(ctx, *file.FolderID)
		if err != nil {
			return nil, err
		}
		if folder.Deleted() {
			return nil, apperr.NotFound("file %s is deleted", fileID)
		}
		buried, err := s.folders.HasDeletedAncestor(ctx, folder.ID)
		if err != nil {
			return nil, err
		}
		if buried {
			return nil, apperr.NotFound("file %s is deleted", fileID)
		}
	}

	return file, nil
}

func (s *FileService) Get(ctx context.Context, crateID int64, userID string, fileID uuid.UUID) (*domain.File, error) {
	if _, err := s.perms.Require(ctx, crateID, userID, domain.RoleViewer); err != nil {
		return nil, err
	}

	return s.visible(ctx, crateID, fileID)
}

// Download отдаёт объект из хранилища вместе с метаданными.
func (s *FileService) Download(ctx context.Context, crateID int64, userID string, fileID uuid.UUID) (s3.Object, *domain.File, error) {
	file, err := s.Get(ctx, crateID, userID, fileID)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.storage.Get(ctx, s3.BucketName(crateID), file.StorageKey)
	if err != nil {
		return nil, nil, apperr.Storage(err, "failed to fetch file %s", fileID)
	}

	return obj, file, nil
}

func (s *FileService) requireModify(ctx context.Context, crateID int64, userID string, file *domain.File) error {
	role, err := s.perms.Require(ctx, crateID, userID, domain.RoleUploader)
	if err != nil {
		return err
	}
	if !s.perms.CanDeleteItem(role, userID, file.UploadedBy) {
		return apperr.Forbidden("only managers may modify files uploaded by others")
	}

	return nil
}

func (s *FileService) Rename(ctx context.Context, crateID int64, userID string, fileID uuid.UUID, name string) error {
	if name == "" {
		return apperr.Validation("file name is required")
	}

	file, err := s.visible(ctx, crateID, fileID)
	if err != nil {
		return err
	}
	if err := s.requireModify(ctx, crateID, userID, file); err != nil {
		return err
	}

	return s.files.UpdateName(ctx, fileID, name)
}

// Move переносит файл в другую папку того же крейта. nil target —
// корень крейта.
func (s *FileService) Move(ctx context.Context, crateID int64, userID string, fileID uuid.UUID, targetFolderID *int64) error {
	file, err := s.visible(ctx, crateID, fileID)
	if err != nil {
		return err
	}
	if err := s.requireModify(ctx, crateID, userID, file); err != nil {
		return err
	}

	folderID, err := s.normalizeFolder(ctx, crateID, targetFolderID)
	if err != nil {
		return err
	}

	return s.files.UpdateParent(ctx, fileID, folderID)
}

// SoftDelete помещает файл в корзину. Квота не освобождается:
// место возвращается только окончательным удалением.
func (s *FileService) SoftDelete(ctx context.Context, crateID int64, userID string, fileID uuid.UUID) error {
	file, err := s.visible(ctx, crateID, fileID)
	if err != nil {
		return err
	}
	if err := s.requireModify(ctx, crateID, userID, file); err != nil {
		return err
	}

	return s.files.SoftDelete(ctx, fileID, userID)
}

// Restore возвращает файл из корзины; повторный вызов — no-op.
// Если папка файла к этому моменту удалена, файл переезжает в корень.
func (s *FileService) Restore(ctx context.Context, crateID int64, userID string, fileID uuid.UUID) error {
	file, err := s.files.GetByUUID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.CrateID != crateID {
		return apperr.NotFound("file %s not found", fileID)
	}
	if err := s.requireModify(ctx, crateID, userID, file); err != nil {
		return err
	}

	restored, err := s.files.Restore(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if !restored {
		return nil
	}

	if file.FolderID != nil {
		folder, err := s.folders.GetByID(ctx, *file.FolderID)
		if err != nil {
			return err
		}
		buried := folder.Deleted()
		if !buried {
			buried, err = s.folders.HasDeletedAncestor(ctx, folder.ID)
			if err != nil {
				return err
			}
		}
		if buried {
			if err := s.files.UpdateParent(ctx, fileID, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

// PermanentlyDelete убирает строку метаданных (освобождая квоту)
// и затем объект из хранилища. Сбой на втором шаге оставляет
// осиротевший объект, а не двойное списание.
func (s *FileService) PermanentlyDelete(ctx context.Context, crateID int64, userID string, fileID uuid.UUID) error {
	file, err := s.files.GetByUUID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.CrateID != crateID {
		return apperr.NotFound("file %s not found", fileID)
	}
	if err := s.requireModify(ctx, crateID, userID, file); err != nil {
		return err
	}

	if err := s.files.DeletePermanently(ctx, fileID); err != nil {
		return err
	}

	keys := []string{file.StorageKey, s3.PreviewKey(file.UUID.String())}
	if err := s.storage.DeleteMany(ctx, s3.BucketName(crateID), keys); err != nil {
		log.Printf("Failed to delete object %s after permanent delete: %v", file.StorageKey, err)
	}

	return nil
}

// MimeBreakdown — отчёт об использовании крейта по категориям MIME,
// большие категории первыми.
func (s *FileService) MimeBreakdown(ctx context.Context, crateID int64, userID string) ([]domain.CategoryUsage, error) {
	if _, err := s.perms.Require(ctx, crateID, userID, domain.RoleViewer); err != nil {
		return nil, err
	}

	files, err := s.files.ListActiveByCrate(ctx, crateID)
	if err != nil {
		return nil, err
	}

	byCategory := map[string]*domain.CategoryUsage{}
	for _, f := range files {
		category := domain.MimeCategory(f.MIMEType)
		usage, ok := byCategory[category]
		if !ok {
			usage = &domain.CategoryUsage{Category: category}
			byCategory[category] = usage
		}
		usage.Files++
		usage.SizeBytes += f.SizeBytes
	}

	report := make([]domain.CategoryUsage, 0, len(byCategory))
	for _, usage := range byCategory {
		report = append(report, *usage)
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].SizeBytes != report[j].SizeBytes {
			return report[i].SizeBytes > report[j].SizeBytes
		}
		return report[i].Category < report[j].Category
	})

	return report, nil
}
