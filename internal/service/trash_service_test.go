package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cratedrive/internal/domain"
	"cratedrive/internal/service/s3"
)

func TestTrashListsOnlyExplicitRoots(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	parent := e.mustFolder(crate.ID, "alice", "parent", nil)
	child := e.mustFolder(crate.ID, "alice", "child", &parent.ID)
	e.mustFile(crate.ID, "alice", "inside.txt", 10, &child.ID)
	loose := e.mustFile(crate.ID, "alice", "loose.txt", 10, nil)

	require.NoError(t, e.fileSvc.SoftDelete(ctx, crate.ID, "alice", loose.UUID))
	require.NoError(t, e.folderSvc.SoftDelete(ctx, crate.ID, "alice", parent.ID))

	page, err := e.trashSvc.List(ctx, crate.ID, "alice", 1, 10)
	require.NoError(t, err)

	// Вложенный файл и child отдельной строкой не показываются:
	// их накрывает удалённый parent
	assert.Equal(t, 2, page.Total)
	var names []string
	for _, item := range page.Items {
		names = append(names, item.Name)
	}
	assert.ElementsMatch(t, []string{"parent", "loose.txt"}, names)
}

func TestTrashVisibilityByRole(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)
	e.mustMember(crate.ID, "alice", "bob", domain.RoleManager)
	e.mustMember(crate.ID, "alice", "carol", domain.RoleUploader)

	mine := e.mustFile(crate.ID, "carol", "carol.txt", 10, nil)
	theirs := e.mustFile(crate.ID, "alice", "alice.txt", 10, nil)

	require.NoError(t, e.fileSvc.SoftDelete(ctx, crate.ID, "carol", mine.UUID))
	require.NoError(t, e.fileSvc.SoftDelete(ctx, crate.ID, "alice", theirs.UUID))

	// Менеджер видит всю корзину
	page, err := e.trashSvc.List(ctx, crate.ID, "bob", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	// Загрузивший — только свои удаления и свои файлы
	page, err = e.trashSvc.List(ctx, crate.ID, "carol", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "carol.txt", page.Items[0].Name)
}

func TestTrashBatchRestoreFoldersFirst(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	folder := e.mustFolder(crate.ID, "alice", "docs", nil)
	file := e.mustFile(crate.ID, "alice", "doc.txt", 10, &folder.ID)

	require.NoError(t, e.fileSvc.SoftDelete(ctx, crate.ID, "alice", file.UUID))
	require.NoError(t, e.folderSvc.SoftDelete(ctx, crate.ID, "alice", folder.ID))

	// Папка восстанавливается первой, поэтому файл возвращается
	// на своё место, а не в корень
	require.NoError(t, e.trashSvc.Restore(ctx, crate.ID, "alice", []int64{folder.ID}, []uuid.UUID{file.UUID}))

	got, err := e.files.GetByUUID(ctx, file.UUID)
	require.NoError(t, err)
	assert.False(t, got.Deleted())
	require.NotNil(t, got.FolderID)
	assert.Equal(t, folder.ID, *got.FolderID)
}

func TestTrashSweepPurgesExpired(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	folder := e.mustFolder(crate.ID, "alice", "old", nil)
	inside := e.mustFile(crate.ID, "alice", "inside.txt", 100, &folder.ID)
	fresh := e.mustFile(crate.ID, "alice", "fresh.txt", 50, nil)

	require.NoError(t, e.folderSvc.SoftDelete(ctx, crate.ID, "alice", folder.ID))
	require.NoError(t, e.fileSvc.SoftDelete(ctx, crate.ID, "alice", fresh.UUID))

	// Старим удаление папки за горизонт хранения
	e.db.mu.Lock()
	old := time.Now().Add(-40 * 24 * time.Hour)
	e.db.folders[folder.ID].DeletedAt = &old
	e.db.mu.Unlock()

	require.NoError(t, e.trashSvc.Sweep(ctx, 30*24*time.Hour))

	// Просроченная папка ушла вместе с содержимым, свежий файл остался
	_, err := e.folders.GetByID(ctx, folder.ID)
	assert.Error(t, err)
	_, err = e.files.GetByUUID(ctx, inside.UUID)
	assert.Error(t, err)
	_, err = e.files.GetByUUID(ctx, fresh.UUID)
	assert.NoError(t, err)

	assert.False(t, e.storage.has(s3.BucketName(crate.ID), inside.StorageKey))

	updated, err := e.crates.GetByID(ctx, crate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), updated.UsedBytes)
}
