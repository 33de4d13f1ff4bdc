package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cratedrive/internal/domain"
)

// Узкие интерфейсы хранилищ, которые потребляют сервисы. Реализации
// живут в internal/repository; тесты используют память.

type CrateStore interface {
	// Create атомарно сохраняет крейт, его корневую папку и членство
	// владельца; выделение места проверяется против лимита аккаунта
	// в той же транзакции.
	Create(ctx context.Context, crate *domain.Crate, root *domain.Folder, owner *domain.CrateMember) error
	GetByID(ctx context.Context, id int64) (*domain.Crate, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Crate, error)
	UpdateMeta(ctx context.Context, id int64, name, color string) error
	UpdateAllocation(ctx context.Context, id int64, allocatedBytes int64) error
}

type MemberStore interface {
	Get(ctx context.Context, crateID int64, userID string) (*domain.CrateMember, error)
	Add(ctx context.Context, m *domain.CrateMember) error
	UpdateRole(ctx context.Context, crateID int64, userID string, role domain.Role) error
	Remove(ctx context.Context, crateID int64, userID string) error
	ListByCrate(ctx context.Context, crateID int64) ([]domain.CrateMember, error)
}

type FolderStore interface {
	Create(ctx context.Context, folder *domain.Folder) error
	GetByID(ctx context.Context, id int64) (*domain.Folder, error)
	Root(ctx context.Context, crateID int64) (*domain.Folder, error)
	// ListChildren возвращает только активные (не удалённые) подпапки.
	ListChildren(ctx context.Context, parentID int64) ([]domain.Folder, error)
	UpdateName(ctx context.Context, id int64, name string) error
	UpdateColor(ctx context.Context, id int64, color string) error
	UpdateParent(ctx context.Context, id int64, parentID int64) error
	// Move атомарно переносит папку под нового родителя: проверка на
	// цикл и запись ребра идут под блокировкой затронутых строк, два
	// встречных переноса не могут оба пройти проверку и замкнуть дерево.
	Move(ctx context.Context, id int64, newParentID int64) error
	SoftDelete(ctx context.Context, id int64, actorID string) error
	// Restore возвращает false, если папка и так была активна.
	Restore(ctx context.Context, id int64, actorID string) (bool, error)
	HasDeletedAncestor(ctx context.Context, id int64) (bool, error)
	// CountChildren считает прямых потомков в любом состоянии.
	CountChildren(ctx context.Context, id int64) (folders int, files int, err error)
	// PurgeSubtree удаляет папку со всем содержимым в одной транзакции,
	// возвращая ключи объектов для удаления из хранилища. Квота
	// освобождается там же.
	PurgeSubtree(ctx context.Context, folderID int64) ([]string, error)
}

type FileStore interface {
	// Create вставляет метаданные и списывает квоту крейта и аккаунта
	// одним атомарным шагом: проверка и применение под блокировкой строк.
	Create(ctx context.Context, file *domain.File) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*domain.File, error)
	// ListByFolder возвращает активные файлы уровня; folderID == nil —
	// файлы в корне крейта.
	ListByFolder(ctx context.Context, crateID int64, folderID *int64) ([]domain.File, error)
	ListActiveByCrate(ctx context.Context, crateID int64) ([]domain.File, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	UpdateParent(ctx context.Context, id uuid.UUID, folderID *int64) error
	SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error
	Restore(ctx context.Context, id uuid.UUID, actorID string) (bool, error)
	// DeletePermanently — единственный путь освобождения квоты файла.
	DeletePermanently(ctx context.Context, id uuid.UUID) error
}

type TrashStore interface {
	// ListDeleted возвращает явно удалённые элементы крейта,
	// свежеудалённые первыми. onlyUserID != "" сужает выдачу до
	// элементов, удалённых или созданных этим пользователем.
	ListDeleted(ctx context.Context, crateID int64, onlyUserID string) ([]domain.TrashItem, error)
	Expired(ctx context.Context, cutoff time.Time) ([]domain.ExpiredRef, error)
}

type QuotaStore interface {
	GetOrCreate(ctx context.Context, ownerID, plan string, limitBytes int64) (*domain.StorageQuota, error)
	Get(ctx context.Context, ownerID string) (*domain.StorageQuota, error)
	UpdateLimit(ctx context.Context, ownerID string, limitBytes int64) error
	// AllocatedToCrates — сколько байт аккаунта уже роздано крейтам.
	AllocatedToCrates(ctx context.Context, ownerID string) (int64, error)
}
