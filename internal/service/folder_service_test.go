package service

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cratedrive/internal/apperr"
	"cratedrive/internal/domain"
	"cratedrive/internal/service/s3"
)

func TestFolderMoveCycleRejected(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	x := e.mustFolder(crate.ID, "alice", "X", nil)
	y := e.mustFolder(crate.ID, "alice", "Y", &x.ID)
	z := e.mustFolder(crate.ID, "alice", "Z", &y.ID)

	// X -> Y, Y -> Z лежат в поддереве X
	err := e.folderSvc.Move(ctx, crate.ID, "alice", x.ID, &y.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidMove))

	err = e.folderSvc.Move(ctx, crate.ID, "alice", x.ID, &z.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidMove))

	err = e.folderSvc.Move(ctx, crate.ID, "alice", x.ID, &x.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidMove))

	// Вверх по дереву двигаться можно
	require.NoError(t, e.folderSvc.Move(ctx, crate.ID, "alice", z.ID, &x.ID))
	moved, err := e.folders.GetByID(ctx, z.ID)
	require.NoError(t, err)
	assert.Equal(t, x.ID, *moved.ParentID)

	// И в корень через nil
	require.NoError(t, e.folderSvc.Move(ctx, crate.ID, "alice", z.ID, nil))
	moved, err = e.folders.GetByID(ctx, z.ID)
	require.NoError(t, err)
	assert.Equal(t, crate.RootFolderID, *moved.ParentID)
}

func TestFolderMoveChecksCommittedEdges(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	// Встречные переносы двух соседних папок: против исходного дерева
	// оба прошли бы проверку, но проверка идёт против записанных рёбер
	a := e.mustFolder(crate.ID, "alice", "A", nil)
	b := e.mustFolder(crate.ID, "alice", "B", nil)

	require.NoError(t, e.folderSvc.Move(ctx, crate.ID, "alice", a.ID, &b.ID))

	err := e.folderSvc.Move(ctx, crate.ID, "alice", b.ID, &a.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidMove))

	moved, err := e.folders.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, *moved.ParentID)
	intact, err := e.folders.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, crate.RootFolderID, *intact.ParentID)
}

func TestRootFolderProtected(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)
	x := e.mustFolder(crate.ID, "alice", "X", nil)

	err := e.folderSvc.Move(ctx, crate.ID, "alice", crate.RootFolderID, &x.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidMove))

	err = e.folderSvc.SoftDelete(ctx, crate.ID, "alice", crate.RootFolderID)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	err = e.folderSvc.PermanentlyDelete(ctx, crate.ID, "alice", crate.RootFolderID, true)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestSoftDeleteHidesSubtree(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	parent := e.mustFolder(crate.ID, "alice", "parent", nil)
	child := e.mustFolder(crate.ID, "alice", "child", &parent.ID)
	file := e.mustFile(crate.ID, "alice", "doc.txt", 100, &child.ID)

	require.NoError(t, e.folderSvc.SoftDelete(ctx, crate.ID, "alice", parent.ID))

	// Потомки не получают собственный флаг, но наружу не видны
	raw, err := e.folders.GetByID(ctx, child.ID)
	require.NoError(t, err)
	assert.False(t, raw.Deleted())

	_, err = e.folderSvc.GetContents(ctx, crate.ID, "alice", &child.ID, "", 1, 10)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	_, err = e.fileSvc.Get(ctx, crate.ID, "alice", file.UUID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	// Возврат родителя делает всё поддерево видимым снова
	require.NoError(t, e.folderSvc.Restore(ctx, crate.ID, "alice", parent.ID))
	_, err = e.fileSvc.Get(ctx, crate.ID, "alice", file.UUID)
	assert.NoError(t, err)
}

func TestFolderRestoreIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)
	x := e.mustFolder(crate.ID, "alice", "X", nil)

	require.NoError(t, e.folderSvc.SoftDelete(ctx, crate.ID, "alice", x.ID))
	require.NoError(t, e.folderSvc.Restore(ctx, crate.ID, "alice", x.ID))
	// Повторный возврат активной папки — no-op, не ошибка
	require.NoError(t, e.folderSvc.Restore(ctx, crate.ID, "alice", x.ID))

	restored, err := e.folders.GetByID(ctx, x.ID)
	require.NoError(t, err)
	assert.False(t, restored.Deleted())
	assert.NotNil(t, restored.RestoredAt)
}

func TestFolderRestoreReparentsWhenParentDeleted(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	parent := e.mustFolder(crate.ID, "alice", "parent", nil)
	child := e.mustFolder(crate.ID, "alice", "child", &parent.ID)

	require.NoError(t, e.folderSvc.SoftDelete(ctx, crate.ID, "alice", child.ID))
	require.NoError(t, e.folderSvc.SoftDelete(ctx, crate.ID, "alice", parent.ID))

	require.NoError(t, e.folderSvc.Restore(ctx, crate.ID, "alice", child.ID))

	restored, err := e.folders.GetByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, crate.RootFolderID, *restored.ParentID)
}

func TestPermanentDeleteRequiresRecursive(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	parent := e.mustFolder(crate.ID, "alice", "parent", nil)
	e.mustFile(crate.ID, "alice", "doc.txt", 100, &parent.ID)

	err := e.folderSvc.PermanentlyDelete(ctx, crate.ID, "alice", parent.ID, false)
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))

	require.NoError(t, e.folderSvc.PermanentlyDelete(ctx, crate.ID, "alice", parent.ID, true))
	_, err = e.folders.GetByID(ctx, parent.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestPermanentDeleteReleasesQuotaAndObjects(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	parent := e.mustFolder(crate.ID, "alice", "parent", nil)
	child := e.mustFolder(crate.ID, "alice", "child", &parent.ID)
	f1 := e.mustFile(crate.ID, "alice", "a.txt", 100, &parent.ID)
	f2 := e.mustFile(crate.ID, "alice", "b.txt", 200, &child.ID)
	outside := e.mustFile(crate.ID, "alice", "c.txt", 50, nil)

	require.NoError(t, e.folderSvc.PermanentlyDelete(ctx, crate.ID, "alice", parent.ID, true))

	updated, err := e.crates.GetByID(ctx, crate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), updated.UsedBytes)

	quota, err := e.quotas.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), quota.UsedBytes)

	bucket := s3.BucketName(crate.ID)
	assert.False(t, e.storage.has(bucket, f1.StorageKey))
	assert.False(t, e.storage.has(bucket, f2.StorageKey))
	assert.True(t, e.storage.has(bucket, outside.StorageKey))
}

func TestGetContentsMergeSearchPaginate(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)

	e.mustFolder(crate.ID, "alice", "beta", nil)
	e.mustFolder(crate.ID, "alice", "alpha", nil)
	e.mustFile(crate.ID, "alice", "zeta.txt", 10, nil)
	e.mustFile(crate.ID, "alice", "Alpha-notes.txt", 10, nil)

	content, err := e.folderSvc.GetContents(ctx, crate.ID, "alice", nil, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, content.Total)

	// Папки раньше файлов, внутри группы — лексикографически
	var got []string
	for _, item := range content.Items {
		got = append(got, item.Type+":"+item.Name)
	}
	want := []string{"folder:alpha", "folder:beta", "file:Alpha-notes.txt", "file:zeta.txt"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected listing order (-want +got):\n%s", diff)
	}

	// Поиск без учёта регистра
	content, err = e.folderSvc.GetContents(ctx, crate.ID, "alice", nil, "ALPHA", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, content.Total)

	// Пагинация
	content, err = e.folderSvc.GetContents(ctx, crate.ID, "alice", nil, "", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, content.Total)
	assert.Len(t, content.Items, 1)
}

func TestFolderPermissions(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	crate := e.mustCrate("alice", 1<<30)
	e.mustMember(crate.ID, "alice", "carol", domain.RoleUploader)
	e.mustMember(crate.ID, "alice", "dave", domain.RoleViewer)

	// Наблюдатель не создаёт папок
	_, err := e.folderSvc.Create(ctx, crate.ID, "dave", "nope", "", nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	// Загрузивший правит своё, но не чужое
	own := e.mustFolder(crate.ID, "carol", "mine", nil)
	other := e.mustFolder(crate.ID, "alice", "theirs", nil)

	assert.NoError(t, e.folderSvc.Rename(ctx, crate.ID, "carol", own.ID, "renamed"))
	err = e.folderSvc.Rename(ctx, crate.ID, "carol", other.ID, "hijack")
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	err = e.folderSvc.SoftDelete(ctx, crate.ID, "carol", other.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
}
