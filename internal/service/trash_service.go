package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"cratedrive/internal/auth"
	"cratedrive/internal/domain"
	"cratedrive/internal/service/s3"
)

// TrashService собирает корзину крейта и выполняет пакетные возвраты
// и окончательные удаления. Видимость корзины зависит от роли:
// менеджер и выше видят всё, остальные — только своё.
type TrashService struct {
	trash       TrashStore
	folders     FolderStore
	files       FileStore
	perms       *PermissionService
	folderSvc   *FolderService
	fileSvc     *FileService
	storage     s3.Storage
	lookupUsers UserLookup
}

func NewTrashService(trash TrashStore, folders FolderStore, files FileStore, perms *PermissionService, folderSvc *FolderService, fileSvc *FileService, storage s3.Storage, lookupUsers UserLookup) *TrashService {
	if lookupUsers == nil {
		lookupUsers = auth.GetUsersByIds
	}
	return &TrashService{
		trash:       trash,
		folders:     folders,
		files:       files,
		perms:       perms,
		folderSvc:   folderSvc,
		fileSvc:     fileSvc,
		storage:     storage,
		lookupUsers: lookupUsers,
	}
}

// List возвращает страницу корзины крейта, свежие удаления первыми.
func (s *TrashService) List(ctx context.Context, crateID int64, userID string, page, pageSize int) (*domain.TrashPage, error) {
	role, err := s.perms.Require(ctx, crateID, userID, domain.RoleViewer)
	if err != nil {
		return nil, err
	}

	onlyUserID := ""
	if !s.perms.SeesFullTrash(role) {
		onlyUserID = userID
	}

	items, err := s.trash.ListDeleted(ctx, crateID, onlyUserID)
	if err != nil {
		return nil, err
	}

	s.attachNames(ctx, items)

	total := len(items)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &domain.TrashPage{
		Items:    items[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// attachNames подставляет имена удаливших из сервиса аккаунтов.
// Отказ резолва имена не валит листинг.
func (s *TrashService) attachNames(ctx context.Context, items []domain.TrashItem) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.DeletedBy)
	}
	if len(ids) == 0 {
		return
	}

	users, err := s.lookupUsers(ctx, ids)
	if err != nil {
		log.Printf("Failed to resolve user names for trash listing: %v", err)
		return
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name + " " + u.Lastname
	}
	for i := range items {
		items[i].DeletedByName = names[items[i].DeletedBy]
	}
}

// Restore возвращает набор элементов из корзины: сначала папки,
// затем файлы. Первый отказ прерывает остаток набора, уже
// восстановленные элементы остаются восстановленными.
func (s *TrashService) Restore(ctx context.Context, crateID int64, userID string, folderIDs []int64, fileIDs []uuid.UUID) error {
	for _, id := range folderIDs {
		if err := s.folderSvc.Restore(ctx, crateID, userID, id); err != nil {
			return err
		}
	}
	for _, id := range fileIDs {
		if err := s.fileSvc.Restore(ctx, crateID, userID, id); err != nil {
			return err
		}
	}

	return nil
}

// DeletePermanently окончательно удаляет набор элементов корзины.
// Папки идут первыми и удаляются рекурсивно.
func (s *TrashService) DeletePermanently(ctx context.Context, crateID int64, userID string, folderIDs []int64, fileIDs []uuid.UUID) error {
	for _, id := range folderIDs {
		if err := s.folderSvc.PermanentlyDelete(ctx, crateID, userID, id, true); err != nil {
			return err
		}
	}
	for _, id := range fileIDs {
		if err := s.fileSvc.PermanentlyDelete(ctx, crateID, userID, id); err != nil {
			return err
		}
	}

	return nil
}

// Sweep окончательно удаляет элементы, пересидевшие срок хранения.
// Ошибки отдельных элементов логируются и не прерывают проход.
func (s *TrashService) Sweep(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)

	refs, err := s.trash.Expired(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	log.Printf("Trash sweep: %d expired items older than %s", len(refs), cutoff.Format(time.RFC3339))

	for _, ref := range refs {
		switch ref.Type {
		case domain.ItemTypeFolder:
			keys, err := s.folders.PurgeSubtree(ctx, ref.FolderID)
			if err != nil {
				log.Printf("Trash sweep: failed to purge folder %d: %v", ref.FolderID, err)
				continue
			}
			if len(keys) > 0 {
				if err := s.storage.DeleteMany(ctx, s3.BucketName(ref.CrateID), withPreviewKeys(keys)); err != nil {
					log.Printf("Trash sweep: failed to delete %d objects of folder %d: %v", len(keys), ref.FolderID, err)
				}
			}
		case domain.ItemTypeFile:
			file, err := s.files.GetByUUID(ctx, ref.FileUUID)
			if err != nil {
				log.Printf("Trash sweep: failed to load file %s: %v", ref.FileUUID, err)
				continue
			}
			if err := s.files.DeletePermanently(ctx, ref.FileUUID); err != nil {
				log.Printf("Trash sweep: failed to delete file %s: %v", ref.FileUUID, err)
				continue
			}
			keys := []string{file.StorageKey, s3.PreviewKey(file.UUID.String())}
			if err := s.storage.DeleteMany(ctx, s3.BucketName(ref.CrateID), keys); err != nil {
				log.Printf("Trash sweep: failed to delete object %s: %v", file.StorageKey, err)
			}
		}
	}

	return nil
}

// Run крутит периодическую чистку корзины до отмены контекста.
func (s *TrashService) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx, retention); err != nil {
				log.Printf("Trash sweep failed: %v", err)
			}
		}
	}
}
