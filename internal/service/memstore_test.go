package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cratedrive/internal/apperr"
	"cratedrive/internal/auth"
	"cratedrive/internal/domain"
	"cratedrive/internal/service/s3"
)

// Хранилища в памяти для тестов сервисов. Семантика повторяет
// SQL-репозитории: та же атомарность учёта квоты, те же коды ошибок.

type memDB struct {
	mu      sync.Mutex
	crates  map[int64]*domain.Crate
	members map[int64]map[string]*domain.CrateMember
	folders map[int64]*domain.Folder
	files   map[uuid.UUID]*domain.File
	quotas  map[string]*domain.StorageQuota
	nextID  int64
}

func newMemDB() *memDB {
	return &memDB{
		crates:  map[int64]*domain.Crate{},
		members: map[int64]map[string]*domain.CrateMember{},
		folders: map[int64]*domain.Folder{},
		files:   map[uuid.UUID]*domain.File{},
		quotas:  map[string]*domain.StorageQuota{},
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

// hasDeletedAncestorLocked идёт вверх по цепочке строгих предков.
func (db *memDB) hasDeletedAncestorLocked(id int64) bool {
	folder, ok := db.folders[id]
	if !ok || folder.ParentID == nil {
		return false
	}
	cur := db.folders[*folder.ParentID]
	for cur != nil {
		if cur.DeletedAt != nil {
			return true
		}
		if cur.ParentID == nil {
			return false
		}
		cur = db.folders[*cur.ParentID]
	}
	return false
}

func (db *memDB) releaseLocked(crateID int64, size int64) {
	if crate, ok := db.crates[crateID]; ok {
		crate.UsedBytes -= size
		if quota, ok := db.quotas[crate.OwnerID]; ok {
			quota.UsedBytes -= size
		}
	}
}

type memCrateStore struct{ db *memDB }

func (s *memCrateStore) Create(_ context.Context, crate *domain.Crate, root *domain.Folder, owner *domain.CrateMember) error {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	quota, ok := db.quotas[crate.OwnerID]
	if !ok {
		return apperr.NotFound("storage quota for owner %s not found", crate.OwnerID)
	}

	var allocated int64
	for _, c := range db.crates {
		if c.OwnerID == crate.OwnerID {
			allocated += c.AllocatedBytes
		}
	}
	if allocated+crate.AllocatedBytes > quota.TotalBytesLimit {
		return apperr.QuotaExceeded("allocation exceeds account limit: %d allocated of %d, %d requested",
			allocated, quota.TotalBytesLimit, crate.AllocatedBytes)
	}

	crate.ID = db.id()
	crate.CreatedAt = time.Now()
	crate.UpdatedAt = crate.CreatedAt

	root.ID = db.id()
	root.CrateID = crate.ID
	root.IsRoot = true
	root.CreatedAt = crate.CreatedAt
	root.UpdatedAt = crate.CreatedAt
	crate.RootFolderID = root.ID

	owner.CrateID = crate.ID
	owner.JoinedAt = crate.CreatedAt

	db.crates[crate.ID] = crate
	db.folders[root.ID] = root
	db.members[crate.ID] = map[string]*domain.CrateMember{owner.UserID: owner}
	return nil
}

func (s *memCrateStore) GetByID(_ context.Context, id int64) (*domain.Crate, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	crate, ok := s.db.crates[id]
	if !ok {
		return nil, apperr.NotFound("crate %d not found", id)
	}
	copied := *crate
	return &copied, nil
}

func (s *memCrateStore) ListForUser(_ context.Context, userID string) ([]domain.Crate, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var crates []domain.Crate
	for crateID, members := range s.db.members {
		if _, ok := members[userID]; ok {
			crates = append(crates, *s.db.crates[crateID])
		}
	}
	sort.Slice(crates, func(i, j int) bool { return crates[i].ID < crates[j].ID })
	return crates, nil
}

func (s *memCrateStore) UpdateMeta(_ context.Context, id int64, name, color string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	crate, ok := s.db.crates[id]
	if !ok {
		return apperr.NotFound("crate %d not found", id)
	}
	crate.Name = name
	crate.Color = color
	return nil
}

func (s *memCrateStore) UpdateAllocation(_ context.Context, id int64, allocatedBytes int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	crate, ok := s.db.crates[id]
	if !ok {
		return apperr.NotFound("crate %d not found", id)
	}
	if allocatedBytes < crate.UsedBytes {
		return apperr.Conflict("allocation below current usage: %d used, %d requested", crate.UsedBytes, allocatedBytes)
	}

	quota := s.db.quotas[crate.OwnerID]
	var others int64
	for _, c := range s.db.crates {
		if c.OwnerID == crate.OwnerID && c.ID != id {
			others += c.AllocatedBytes
		}
	}
	if others+allocatedBytes > quota.TotalBytesLimit {
		return apperr.QuotaExceeded("allocation exceeds account limit: %d allocated of %d, %d requested",
			others, quota.TotalBytesLimit, allocatedBytes)
	}

	crate.AllocatedBytes = allocatedBytes
	return nil
}

type memMemberStore struct{ db *memDB }

func (s *memMemberStore) Get(_ context.Context, crateID int64, userID string) (*domain.CrateMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if m, ok := s.db.members[crateID][userID]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, apperr.NotFound("user %s is not a member of crate %d", userID, crateID)
}

func (s *memMemberStore) Add(_ context.Context, m *domain.CrateMember) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.members[m.CrateID] == nil {
		s.db.members[m.CrateID] = map[string]*domain.CrateMember{}
	}
	if _, ok := s.db.members[m.CrateID][m.UserID]; ok {
		return apperr.Conflict("user %s is already a member of crate %d", m.UserID, m.CrateID)
	}
	m.JoinedAt = time.Now()
	s.db.members[m.CrateID][m.UserID] = m
	return nil
}

func (s *memMemberStore) UpdateRole(_ context.Context, crateID int64, userID string, role domain.Role) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.members[crateID][userID]
	if !ok {
		return apperr.NotFound("user %s is not a member of crate %d", userID, crateID)
	}
	m.Role = role
	return nil
}

func (s *memMemberStore) Remove(_ context.Context, crateID int64, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.members[crateID][userID]; !ok {
		return apperr.NotFound("user %s is not a member of crate %d", userID, crateID)
	}
	delete(s.db.members[crateID], userID)
	return nil
}

func (s *memMemberStore) ListByCrate(_ context.Context, crateID int64) ([]domain.CrateMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var members []domain.CrateMember
	for _, m := range s.db.members[crateID] {
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

type memFolderStore struct{ db *memDB }

func (s *memFolderStore) Create(_ context.Context, folder *domain.Folder) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	folder.ID = s.db.id()
	folder.CreatedAt = time.Now()
	folder.UpdatedAt = folder.CreatedAt
	s.db.folders[folder.ID] = folder
	return nil
}

func (s *memFolderStore) GetByID(_ context.Context, id int64) (*domain.Folder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	folder, ok := s.db.folders[id]
	if !ok {
		return nil, apperr.NotFound("folder %d not found", id)
	}
	copied := *folder
	return &copied, nil
}

func (s *memFolderStore) Root(_ context.Context, crateID int64) (*domain.Folder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, f := range s.db.folders {
		if f.CrateID == crateID && f.IsRoot {
			copied := *f
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("root folder of crate %d not found", crateID)
}

func (s *memFolderStore) ListChildren(_ context.Context, parentID int64) ([]domain.Folder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var folders []domain.Folder
	for _, f := range s.db.folders {
		if f.ParentID != nil && *f.ParentID == parentID && f.DeletedAt == nil {
			folders = append(folders, *f)
		}
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

func (s *memFolderStore) UpdateName(_ context.Context, id int64, name string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	folder, ok := s.db.folders[id]
	if !ok {
		return apperr.NotFound("folder %d not found", id)
	}
	folder.Name = name
	folder.UpdatedAt = time.Now()
	return nil
}

func (s *memFolderStore) UpdateColor(_ context.Context, id int64, color string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	folder, ok := s.db.folders[id]
	if !ok {
		return apperr.NotFound("folder %d not found", id)
	}
	folder.Color = color
	return nil
}

func (s *memFolderStore) UpdateParent(_ context.Context, id int64, parentID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	folder, ok := s.db.folders[id]
	if !ok {
		return apperr.NotFound("folder %d not found", id)
	}
	pid := parentID
	folder.ParentID = &pid
	folder.UpdatedAt = time.Now()
	return nil
}

func (s *memFolderStore) SoftDelete(_ context.Context, id int64, actorID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	folder, ok := s.db.folders[id]
	if !ok || folder.DeletedAt != nil {
		return apperr.NotFound("folder %d not found or already deleted", id)
	}
	now := time.Now()
	folder.DeletedAt = &now
	folder.DeletedBy = &actorID
	folder.RestoredAt = nil
	folder.RestoredBy = nil
	return nil
}

func (s *memFolderStore) Restore(_ context.Context, id int64, actorID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	folder, ok := s.db.folders[id]
	if !ok {
		return false, apperr.NotFound("folder %d not found", id)
	}
	if folder.DeletedAt == nil {
		return false, nil
	}
	now := time.Now()
	folder.DeletedAt = nil
	folder.DeletedBy = nil
	folder.RestoredAt = &now
	folder.RestoredBy = &actorID
	return true, nil
}

// Move держит блокировку на время проверки цикла и записи ребра,
// как репозиторная транзакция.
func (s *memFolderStore) Move(_ context.Context, id, newParentID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if id == newParentID {
		return apperr.InvalidMove("folder cannot be moved into itself")
	}
	folder, ok := s.db.folders[id]
	if !ok {
		return apperr.NotFound("folder %d not found", id)
	}
	cur, ok := s.db.folders[newParentID]
	if !ok {
		return apperr.NotFound("folder %d not found", newParentID)
	}
	for {
		if cur.ID == id {
			return apperr.InvalidMove("folder cannot be moved into its own subtree")
		}
		if cur.ParentID == nil {
			break
		}
		cur = s.db.folders[*cur.ParentID]
	}
	pid := newParentID
	folder.ParentID = &pid
	folder.UpdatedAt = time.Now()
	return nil
}

func (s *memFolderStore) HasDeletedAncestor(_ context.Context, id int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.hasDeletedAncestorLocked(id), nil
}

func (s *memFolderStore) CountChildren(_ context.Context, id int64) (int, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var folders, files int
	for _, f := range s.db.folders {
		if f.ParentID != nil && *f.ParentID == id {
			folders++
		}
	}
	for _, f := range s.db.files {
		if f.FolderID != nil && *f.FolderID == id {
			files++
		}
	}
	return folders, files, nil
}

func (s *memFolderStore) PurgeSubtree(_ context.Context, folderID int64) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	root, ok := s.db.folders[folderID]
	if !ok {
		return nil, apperr.NotFound("folder %d not found", folderID)
	}

	subtree := map[int64]bool{folderID: true}
	for changed := true; changed; {
		changed = false
		for _, f := range s.db.folders {
			if f.ParentID != nil && subtree[*f.ParentID] && !subtree[f.ID] {
				subtree[f.ID] = true
				changed = true
			}
		}
	}

	var keys []string
	var freed int64
	for id, f := range s.db.files {
		if f.FolderID != nil && subtree[*f.FolderID] {
			keys = append(keys, f.StorageKey)
			freed += f.SizeBytes
			delete(s.db.files, id)
		}
	}
	for id := range subtree {
		delete(s.db.folders, id)
	}

	s.db.releaseLocked(root.CrateID, freed)
	return keys, nil
}

type memFileStore struct{ db *memDB }

func (s *memFileStore) Create(_ context.Context, file *domain.File) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	crate, ok := s.db.crates[file.CrateID]
	if !ok {
		return apperr.NotFound("crate %d not found", file.CrateID)
	}
	if crate.UsedBytes+file.SizeBytes > crate.AllocatedBytes {
		return apperr.QuotaExceeded("crate quota exceeded: %d of %d bytes used, %d requested",
			crate.UsedBytes, crate.AllocatedBytes, file.SizeBytes)
	}
	quota, ok := s.db.quotas[crate.OwnerID]
	if !ok {
		return apperr.NotFound("storage quota for owner %s not found", crate.OwnerID)
	}
	if quota.UsedBytes+file.SizeBytes > quota.TotalBytesLimit {
		return apperr.QuotaExceeded("account quota exceeded: %d of %d bytes used, %d requested",
			quota.UsedBytes, quota.TotalBytesLimit, file.SizeBytes)
	}

	file.CreatedAt = time.Now()
	file.UpdatedAt = file.CreatedAt
	s.db.files[file.UUID] = file
	crate.UsedBytes += file.SizeBytes
	quota.UsedBytes += file.SizeBytes
	return nil
}

func (s *memFileStore) GetByUUID(_ context.Context, id uuid.UUID) (*domain.File, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	file, ok := s.db.files[id]
	if !ok {
		return nil, apperr.NotFound("file %s not found", id)
	}
	copied := *file
	return &copied, nil
}

func (s *memFileStore) ListByFolder(_ context.Context, crateID int64, folderID *int64) ([]domain.File, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var files []domain.File
	for _, f := range s.db.files {
		if f.CrateID != crateID || f.DeletedAt != nil {
			continue
		}
		switch {
		case folderID == nil && f.FolderID == nil:
			files = append(files, *f)
		case folderID != nil && f.FolderID != nil && *f.FolderID == *folderID:
			files = append(files, *f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *memFileStore) ListActiveByCrate(_ context.Context, crateID int64) ([]domain.File, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var files []domain.File
	for _, f := range s.db.files {
		if f.CrateID != crateID || f.DeletedAt != nil {
			continue
		}
		if f.FolderID != nil {
			folder := s.db.folders[*f.FolderID]
			if folder == nil || folder.DeletedAt != nil || s.db.hasDeletedAncestorLocked(folder.ID) {
				continue
			}
		}
		files = append(files, *f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *memFileStore) UpdateName(_ context.Context, id uuid.UUID, name string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	file, ok := s.db.files[id]
	if !ok {
		return apperr.NotFound("file %s not found", id)
	}
	file.Name = name
	file.UpdatedAt = time.Now()
	return nil
}

func (s *memFileStore) UpdateParent(_ context.Context, id uuid.UUID, folderID *int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	file, ok := s.db.files[id]
	if !ok {
		return apperr.NotFound("file %s not found", id)
	}
	file.FolderID = folderID
	file.UpdatedAt = time.Now()
	return nil
}

func (s *memFileStore) SoftDelete(_ context.Context, id uuid.UUID, actorID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	file, ok := s.db.files[id]
	if !ok || file.DeletedAt != nil {
		return apperr.NotFound("file %s not found or already deleted", id)
	}
	now := time.Now()
	file.DeletedAt = &now
	file.DeletedBy = &actorID
	file.RestoredAt = nil
	file.RestoredBy = nil
	return nil
}

func (s *memFileStore) Restore(_ context.Context, id uuid.UUID, actorID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	file, ok := s.db.files[id]
	if !ok {
		return false, apperr.NotFound("file %s not found", id)
	}
	if file.DeletedAt == nil {
		return false, nil
	}
	now := time.Now()
	file.DeletedAt = nil
	file.DeletedBy = nil
	file.RestoredAt = &now
	file.RestoredBy = &actorID
	return true, nil
}

func (s *memFileStore) DeletePermanently(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	file, ok := s.db.files[id]
	if !ok {
		return apperr.NotFound("file %s not found", id)
	}
	delete(s.db.files, id)
	s.db.releaseLocked(file.CrateID, file.SizeBytes)
	return nil
}

type memTrashStore struct{ db *memDB }

// buriedLocked: элемент накрыт удалённым предком и корзине не виден.
func (s *memTrashStore) buriedLocked(parentID *int64) bool {
	if parentID == nil {
		return false
	}
	folder, ok := s.db.folders[*parentID]
	if !ok {
		return false
	}
	if folder.DeletedAt != nil {
		return true
	}
	return s.db.hasDeletedAncestorLocked(folder.ID)
}

func (s *memTrashStore) ListDeleted(_ context.Context, crateID int64, onlyUserID string) ([]domain.TrashItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var items []domain.TrashItem

	for _, f := range s.db.folders {
		if f.CrateID != crateID || f.DeletedAt == nil {
			continue
		}
		if s.buriedLocked(f.ParentID) {
			continue
		}
		if onlyUserID != "" && *f.DeletedBy != onlyUserID && f.CreatedBy != onlyUserID {
			continue
		}
		items = append(items, domain.TrashItem{
			ID:        fmt.Sprintf("%d", f.ID),
			Type:      domain.ItemTypeFolder,
			Name:      f.Name,
			DeletedAt: *f.DeletedAt,
			DeletedBy: *f.DeletedBy,
		})
	}
	for _, f := range s.db.files {
		if f.CrateID != crateID || f.DeletedAt == nil {
			continue
		}
		if s.buriedLocked(f.FolderID) {
			continue
		}
		if onlyUserID != "" && *f.DeletedBy != onlyUserID && f.UploadedBy != onlyUserID {
			continue
		}
		mt := f.MIMEType
		items = append(items, domain.TrashItem{
			ID:        f.UUID.String(),
			Type:      domain.ItemTypeFile,
			Name:      f.Name,
			SizeBytes: f.SizeBytes,
			MIMEType:  &mt,
			DeletedAt: *f.DeletedAt,
			DeletedBy: *f.DeletedBy,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].DeletedAt.After(items[j].DeletedAt) })
	return items, nil
}

func (s *memTrashStore) Expired(_ context.Context, cutoff time.Time) ([]domain.ExpiredRef, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var refs []domain.ExpiredRef
	for _, f := range s.db.folders {
		if f.DeletedAt != nil && f.DeletedAt.Before(cutoff) && !s.buriedLocked(f.ParentID) {
			refs = append(refs, domain.ExpiredRef{CrateID: f.CrateID, Type: domain.ItemTypeFolder, FolderID: f.ID})
		}
	}
	for _, f := range s.db.files {
		if f.DeletedAt != nil && f.DeletedAt.Before(cutoff) && !s.buriedLocked(f.FolderID) {
			refs = append(refs, domain.ExpiredRef{CrateID: f.CrateID, Type: domain.ItemTypeFile, FileUUID: f.UUID})
		}
	}
	return refs, nil
}

type memQuotaStore struct{ db *memDB }

func (s *memQuotaStore) GetOrCreate(_ context.Context, ownerID, plan string, limitBytes int64) (*domain.StorageQuota, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if quota, ok := s.db.quotas[ownerID]; ok {
		quota.Plan = plan
		copied := *quota
		return &copied, nil
	}
	quota := &domain.StorageQuota{
		ID:              s.db.id(),
		OwnerID:         ownerID,
		Plan:            plan,
		TotalBytesLimit: limitBytes,
		CreatedAt:       time.Now(),
	}
	s.db.quotas[ownerID] = quota
	copied := *quota
	return &copied, nil
}

func (s *memQuotaStore) Get(_ context.Context, ownerID string) (*domain.StorageQuota, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	quota, ok := s.db.quotas[ownerID]
	if !ok {
		return nil, apperr.NotFound("storage quota for owner %s not found", ownerID)
	}
	copied := *quota
	return &copied, nil
}

func (s *memQuotaStore) UpdateLimit(_ context.Context, ownerID string, limitBytes int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	quota, ok := s.db.quotas[ownerID]
	if !ok {
		return apperr.NotFound("storage quota for owner %s not found", ownerID)
	}
	if limitBytes < quota.UsedBytes {
		return apperr.Conflict("cannot shrink quota below current usage: %d used, %d requested", quota.UsedBytes, limitBytes)
	}
	quota.TotalBytesLimit = limitBytes
	return nil
}

func (s *memQuotaStore) AllocatedToCrates(_ context.Context, ownerID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var total int64
	for _, c := range s.db.crates {
		if c.OwnerID == ownerID {
			total += c.AllocatedBytes
		}
	}
	return total, nil
}

// memStorage — хранилище объектов в памяти с переключаемыми отказами.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut bool
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStorage) key(bucket, key string) string { return bucket + "/" + key }

func (m *memStorage) EnsureBucket(context.Context, string) error { return nil }

func (m *memStorage) Put(_ context.Context, bucket, key string, body io.Reader, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return fmt.Errorf("storage unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[m.key(bucket, key)] = data
	m.types[m.key(bucket, key)] = contentType
	return nil
}

type memObject struct {
	*bytes.Reader
	contentType string
}

func (o *memObject) Close() error         { return nil }
func (o *memObject) ContentLength() int64 { return o.Size() }
func (o *memObject) ContentType() string  { return o.contentType }

func (m *memStorage) Get(_ context.Context, bucket, key string) (s3.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[m.key(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &memObject{Reader: bytes.NewReader(data), contentType: m.types[m.key(bucket, key)]}, nil
}

func (m *memStorage) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, m.key(bucket, key))
	delete(m.types, m.key(bucket, key))
	return nil
}

func (m *memStorage) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	for _, k := range keys {
		if err := m.Delete(ctx, bucket, k); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStorage) has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[m.key(bucket, key)]
	return ok
}

// env собирает полный граф сервисов поверх памяти.
type env struct {
	db        *memDB
	storage   *memStorage
	crates    *memCrateStore
	members   *memMemberStore
	folders   *memFolderStore
	files     *memFileStore
	trash     *memTrashStore
	quotas    *memQuotaStore
	perms     *PermissionService
	quotaSvc  *StorageQuotaService
	crateSvc  *CrateService
	folderSvc *FolderService
	fileSvc   *FileService
	trashSvc  *TrashService
	bulkSvc   *BulkService
}

const (
	testFreeLimit = int64(5) << 30 // 5GB
)

func noUsers(context.Context, []string) ([]auth.UserInfo, error) { return nil, nil }

func newEnv() *env {
	db := newMemDB()
	storage := newMemStorage()

	e := &env{
		db:      db,
		storage: storage,
		crates:  &memCrateStore{db},
		members: &memMemberStore{db},
		folders: &memFolderStore{db},
		files:   &memFileStore{db},
		trash:   &memTrashStore{db},
		quotas:  &memQuotaStore{db},
	}

	e.perms = NewPermissionService(e.members)
	e.quotaSvc = NewStorageQuotaService(e.quotas, func(context.Context, string) (string, int64, error) {
		return domain.PlanFree, testFreeLimit, nil
	})
	e.crateSvc = NewCrateService(e.crates, e.members, e.perms, e.quotaSvc, noUsers)
	e.folderSvc = NewFolderService(e.folders, e.files, e.perms, storage)
	e.fileSvc = NewFileService(e.files, e.folders, e.crates, e.perms, e.quotaSvc, storage)
	e.trashSvc = NewTrashService(e.trash, e.folders, e.files, e.perms, e.folderSvc, e.fileSvc, storage, noUsers)
	e.bulkSvc = NewBulkService(e.folders, e.files, e.folderSvc, e.fileSvc)
	return e
}

// mustCrate создаёт крейт и падает в панике при ошибке: подготовка
// фикстур не является предметом теста.
func (e *env) mustCrate(owner string, allocated int64) *domain.Crate {
	crate, err := e.crateSvc.Create(context.Background(), owner, "crate of "+owner, "", allocated)
	if err != nil {
		panic(err)
	}
	return crate
}

func (e *env) mustMember(crateID int64, owner, user string, role domain.Role) {
	if err := e.crateSvc.AddMember(context.Background(), crateID, owner, user, role); err != nil {
		panic(err)
	}
}

func (e *env) mustFolder(crateID int64, user, name string, parentID *int64) *domain.Folder {
	folder, err := e.folderSvc.Create(context.Background(), crateID, user, name, "", parentID)
	if err != nil {
		panic(err)
	}
	return folder
}

func (e *env) mustFile(crateID int64, user, name string, size int64, folderID *int64) *domain.File {
	file, err := e.fileSvc.Upload(context.Background(), user, domain.FileUpload{
		CrateID:  crateID,
		FolderID: folderID,
		Name:     name,
		MIMEType: "text/plain",
		Size:     size,
	}, bytes.NewReader(make([]byte, minInt64(size, 64))))
	if err != nil {
		panic(err)
	}
	return file
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
