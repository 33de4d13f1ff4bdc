package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"cratedrive/internal/apperr"
	"cratedrive/internal/domain"
	"cratedrive/internal/service/s3"
)

// FolderService управляет деревом папок крейта: создание, переименование,
// перемещение с защитой от циклов, мягкое и окончательное удаление.
type FolderService struct {
	folders FolderStore
	files   FileStore
	perms   *PermissionService
	storage s3.Storage
}

func NewFolderService(folders FolderStore, files FileStore, perms *PermissionService, storage s3.Storage) *FolderService {
	return &FolderService{
		folders: folders,
		files:   files,
		perms:   perms,
		storage: storage,
	}
}

// resolve возвращает активную папку крейта. nil id означает корень.
// Папка с удалённым предком наружу не видна, даже если её собственный
// флаг чист.
func (s *FolderService) resolve(ctx context.Context, crateID int64, id *int64) (*domain.Folder, error) {
	if id == nil {
		return s.folders.Root(ctx, crateID)
	}

	folder, err := s.folders.GetByID(ctx, *id)
	if err != nil {
		return nil, err
	}
	if folder.CrateID != crateID {
		return nil, apperr.NotFound("folder %d not found", *id)
	}
	if folder.Deleted() {
		return nil, apperr.NotFound("folder %d is deleted", *id)
	}

	buried, err := s.folders.HasDeletedAncestor(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	if buried {
		return nil, apperr.NotFound("folder %d is deleted", *id)
	}

	return folder, nil
}

func (s *FolderService) Create(ctx context.Context, crateID int64, userID, name, color string, parentID *int64) (*domain.Folder, error) {
	if _, err := s.perms.Require(ctx, crateID, userID, domain.RoleUploader); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperr.Validation("folder name is required")
	}

	parent, err := s.resolve(ctx, crateID, parentID)
	if err != nil {
		return nil, err
	}

	folder := &domain.Folder{
		CrateID:   crateID,
		Name:      name,
		Color:     color,
		ParentID:  &parent.ID,
		CreatedBy: userID,
	}
	if err := s.folders.Create(ctx, folder); err != nil {
		return nil, err
	}

	return folder, nil
}

// requireModify: менеджер и выше правят любые папки, создатель — свои.
func (s *FolderService) requireModify(ctx context.Context, crateID int64, userID string, folder *domain.Folder) error {
	role, err := s.perms.Require(ctx, crateID, userID, domain.RoleUploader)
	if err != nil {
		return err
	}
	if !s.perms.CanDeleteItem(role, userID, folder.CreatedBy) {
		return apperr.Forbidden("only managers may modify folders created by others")
	}

	return nil
}

func (s *FolderService) Rename(ctx context.Context, crateID int64, userID string, folderID int64, name string) error {
	if name == "" {
		return apperr.Validation("folder name is required")
	}

	folder, err := s.resolve(ctx, crateID, &folderID)
	if err != nil {
		return err
	}
	if err := s.requireModify(ctx, crateID, userID, folder); err != nil {
		return err
	}

	return s.folders.UpdateName(ctx, folderID, name)
}

func (s *FolderService) Recolor(ctx context.Context, crateID int64, userID string, folderID int64, color string) error {
	folder, err := s.resolve(ctx, crateID, &folderID)
	if err != nil {
		return err
	}
	if err := s.requireModify(ctx, crateID, userID, folder); err != nil {
		return err
	}

	return s.folders.UpdateColor(ctx, folderID, color)
}

// Move переносит папку под новую родительскую. nil target означает
// корень крейта. Перемещение в собственное поддерево ломает
// ацикличность и отклоняется до любой записи.
func (s *FolderService) Move(ctx context.Context, crateID int64, userID string, folderID int64, targetID *int64) error {
	folder, err := s.resolve(ctx, crateID, &folderID)
	if err != nil {
		return err
	}
	if folder.IsRoot {
		return apperr.InvalidMove("root folder cannot be moved")
	}
	if err := s.requireModify(ctx, crateID, userID, folder); err != nil {
		return err
	}

	target, err := s.resolve(ctx, crateID, targetID)
	if err != nil {
		return err
	}

	if target.ID == folder.ID {
		return apperr.InvalidMove("folder cannot be moved into itself")
	}

	// Проверка на цикл и запись ребра — одна транзакция хранилища
	return s.folders.Move(ctx, folderID, target.ID)
}

func (s *FolderService) SoftDelete(ctx context.Context, crateID int64, userID string, folderID int64) error {
	folder, err := s.resolve(ctx, crateID, &folderID)
	if err != nil {
		return err
	}
	if folder.IsRoot {
		return apperr.Validation("root folder cannot be deleted")
	}
	if err := s.requireModify(ctx, crateID, userID, folder); err != nil {
		return err
	}

	return s.folders.SoftDelete(ctx, folderID, userID)
}

// Restore возвращает папку из корзины. Повторный вызов для активной
// папки — no-op. Если родительская цепочка к этому моменту удалена,
// папка переподвешивается в корень, чтобы не остаться недостижимой.
func (s *FolderService) Restore(ctx context.Context, crateID int64, userID string, folderID int64) error {
	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.CrateID != crateID {
		return apperr.NotFound("folder %d not found", folderID)
	}
	if err := s.requireModify(ctx, crateID, userID, folder); err != nil {
		return err
	}

	restored, err := s.folders.Restore(ctx, folderID, userID)
	if err != nil {
		return err
	}
	if !restored {
		return nil
	}

	buried, err := s.folders.HasDeletedAncestor(ctx, folderID)
	if err != nil {
		return err
	}
	if buried {
		root, err := s.folders.Root(ctx, crateID)
		if err != nil {
			return err
		}
		if err := s.folders.UpdateParent(ctx, folderID, root.ID); err != nil {
			return err
		}
	}

	return nil
}

// PermanentlyDelete окончательно удаляет папку. Без recursive непустая
// папка отклоняется. Метаданные и квота уходят одной транзакцией,
// объекты хранилища чистятся после фиксации: сбой здесь оставляет
// осиротевшие объекты, но не обратную дыру в учёте.
func (s *FolderService) PermanentlyDelete(ctx context.Context, crateID int64, userID string, folderID int64, recursive bool) error {
	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.CrateID != crateID {
		return apperr.NotFound("folder %d not found", folderID)
	}
	if folder.IsRoot {
		return apperr.Validation("root folder cannot be deleted")
	}
	if err := s.requireModify(ctx, crateID, userID, folder); err != nil {
		return err
	}

	if !recursive {
		childFolders, childFiles, err := s.folders.CountChildren(ctx, folderID)
		if err != nil {
			return err
		}
		if childFolders > 0 || childFiles > 0 {
			return apperr.Conflict("folder %d is not empty: %d folders, %d files", folderID, childFolders, childFiles)
		}
	}

	keys, err := s.folders.PurgeSubtree(ctx, folderID)
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		if err := s.storage.DeleteMany(ctx, s3.BucketName(crateID), withPreviewKeys(keys)); err != nil {
			log.Printf("Failed to delete %d objects after folder purge: %v", len(keys), err)
		}
	}

	return nil
}

// withPreviewKeys дополняет ключи содержимого ключами кэшированных
// превью; несуществующие ключи хранилище удаляет молча.
func withPreviewKeys(keys []string) []string {
	all := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		all = append(all, key, s3.PreviewKey(strings.TrimPrefix(key, s3.ObjectPrefix)))
	}
	return all
}

func formatFolderID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// GetContents возвращает страницу содержимого папки: подпапки и файлы
// одним списком, папки раньше файлов, внутри группы — по имени.
// Непустой search сужает список до имён с подстрокой без учёта регистра.
func (s *FolderService) GetContents(ctx context.Context, crateID int64, userID string, folderID *int64, search string, page, pageSize int) (*domain.FolderContent, error) {
	if _, err := s.perms.Require(ctx, crateID, userID, domain.RoleViewer); err != nil {
		return nil, err
	}

	folder, err := s.resolve(ctx, crateID, folderID)
	if err != nil {
		return nil, err
	}

	subfolders, err := s.folders.ListChildren(ctx, folder.ID)
	if err != nil {
		return nil, err
	}

	// Файлы в корне крейта хранятся с пустым folder_id
	var fid *int64
	if !folder.IsRoot {
		fid = &folder.ID
	}
	files, err := s.files.ListByFolder(ctx, crateID, fid)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	match := func(name string) bool {
		return needle == "" || strings.Contains(strings.ToLower(name), needle)
	}

	items := make([]domain.CrateItem, 0, len(subfolders)+len(files))
	for _, f := range subfolders {
		if !match(f.Name) {
			continue
		}
		items = append(items, domain.CrateItem{
			ID:        formatFolderID(f.ID),
			Type:      domain.ItemTypeFolder,
			Name:      f.Name,
			Color:     f.Color,
			UpdatedAt: f.UpdatedAt,
		})
	}
	for _, f := range files {
		if !match(f.Name) {
			continue
		}
		items = append(items, domain.CrateItem{
			ID:        f.UUID.String(),
			Type:      domain.ItemTypeFile,
			Name:      f.Name,
			MIMEType:  f.MIMEType,
			SizeBytes: f.SizeBytes,
			UpdatedAt: f.UpdatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type == domain.ItemTypeFolder
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

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

	return &domain.FolderContent{
		Folder:   *folder,
		Items:    items[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
