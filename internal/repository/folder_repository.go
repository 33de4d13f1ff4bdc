package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"cratedrive/internal/apperr"
	"cratedrive/internal/domain"
)

type FolderRepository struct {
	db *sqlx.DB
}

func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) Create(ctx context.Context, folder *domain.Folder) error {
	err := r.db.QueryRowContext(ctx, `
        INSERT INTO folders (crate_id, name, color, parent_id, is_root, created_by)
        VALUES ($1, $2, $3, $4, FALSE, $5)
        RETURNING id, created_at, updated_at`,
		folder.CrateID, folder.Name, folder.Color, folder.ParentID, folder.CreatedBy,
	).Scan(&folder.ID, &folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	return nil
}

// GetByID возвращает папку независимо от флага удаления: решение о
// видимости принимает сервис, а не запрос.
func (r *FolderRepository) GetByID(ctx context.Context, id int64) (*domain.Folder, error) {
	var folder domain.Folder
	err := r.db.GetContext(ctx, &folder, `SELECT * FROM folders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("folder %d not found", id)
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}

	return &folder, nil
}

func (r *FolderRepository) Root(ctx context.Context, crateID int64) (*domain.Folder, error) {
	var folder domain.Folder
	err := r.db.GetContext(ctx, &folder,
		`SELECT * FROM folders WHERE crate_id = $1 AND is_root LIMIT 1`,
		crateID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("root folder of crate %d not found", crateID)
		}
		return nil, fmt.Errorf("failed to get root folder: %w", err)
	}

	return &folder, nil
}

func (r *FolderRepository) ListChildren(ctx context.Context, parentID int64) ([]domain.Folder, error) {
	var folders []domain.Folder
	err := r.db.SelectContext(ctx, &folders, `
        SELECT * FROM folders
        WHERE parent_id = $1 AND deleted_at IS NULL
        ORDER BY name`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list child folders: %w", err)
	}

	return folders, nil
}

func (r *FolderRepository) UpdateName(ctx context.Context, id int64, name string) error {
	return r.updateColumn(ctx, id, "name", name)
}

func (r *FolderRepository) UpdateColor(ctx context.Context, id int64, color string) error {
	return r.updateColumn(ctx, id, "color", color)
}

func (r *FolderRepository) updateColumn(ctx context.Context, id int64, column, value string) error {
	query := fmt.Sprintf(`
        UPDATE folders
        SET %s = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`, column)

	result, err := r.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("failed to update folder %s: %w", column, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("folder %d not found", id)
	}

	return nil
}

func (r *FolderRepository) UpdateParent(ctx context.Context, id int64, parentID int64) error {
	result, err := r.db.ExecContext(ctx, `
        UPDATE folders
        SET parent_id = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`,
		parentID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to move folder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("folder %d not found", id)
	}

	return nil
}

// SoftDelete помечает удалённой только саму папку. Потомки остаются
// со своими флагами: их эффективная видимость вычисляется по цепочке
// предков при чтении.
func (r *FolderRepository) SoftDelete(ctx context.Context, id int64, actorID string) error {
	result, err := r.db.ExecContext(ctx, `
        UPDATE folders
        SET deleted_at = CURRENT_TIMESTAMP,
            deleted_by = $1,
            restored_at = NULL,
            restored_by = NULL
        WHERE id = $2 AND deleted_at IS NULL`,
		actorID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete folder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("folder %d not found or already deleted", id)
	}

	return nil
}

func (r *FolderRepository) Restore(ctx context.Context, id int64, actorID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
        UPDATE folders
        SET deleted_at = NULL,
            deleted_by = NULL,
            restored_at = CURRENT_TIMESTAMP,
            restored_by = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND deleted_at IS NOT NULL`,
		actorID, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to restore folder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// Move переносит папку под нового родителя одной транзакцией.
// Блокируются сама папка и вся цепочка предков нового родителя,
// поэтому встречные переносы сериализуются: второй увидит уже
// записанное ребро первого и не сможет замкнуть цикл.
func (r *FolderRepository) Move(ctx context.Context, id, newParentID int64) error {
	if id == newParentID {
		return apperr.InvalidMove("folder cannot be moved into itself")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var folderID int64
	err = tx.GetContext(ctx, &folderID, `SELECT id FROM folders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("folder %d not found", id)
		}
		return fmt.Errorf("failed to lock folder: %w", err)
	}

	var chain []int64
	err = tx.SelectContext(ctx, &chain, `
        WITH RECURSIVE chain AS (
            SELECT id, parent_id
            FROM folders
            WHERE id = $1

            UNION ALL

            SELECT f.id, f.parent_id
            FROM folders f
            INNER JOIN chain c ON f.id = c.parent_id
        )
        SELECT id FROM folders WHERE id IN (SELECT id FROM chain)
        ORDER BY id
        FOR UPDATE`,
		newParentID,
	)
	if err != nil {
		return fmt.Errorf("failed to lock folder ancestors: %w", err)
	}
	if len(chain) == 0 {
		return apperr.NotFound("folder %d not found", newParentID)
	}
	for _, ancestorID := range chain {
		if ancestorID == id {
			return apperr.InvalidMove("folder cannot be moved into its own subtree")
		}
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE folders
        SET parent_id = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`,
		newParentID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to move folder: %w", err)
	}

	return tx.Commit()
}

// HasDeletedAncestor проверяет цепочку строгих предков папки.
func (r *FolderRepository) HasDeletedAncestor(ctx context.Context, id int64) (bool, error) {
	var found bool
	query := `
        WITH RECURSIVE ancestors AS (
            SELECT f.id, f.parent_id, f.deleted_at
            FROM folders f
            WHERE f.id = (SELECT parent_id FROM folders WHERE id = $1)

            UNION ALL

            SELECT f.id, f.parent_id, f.deleted_at
            FROM folders f
            INNER JOIN ancestors a ON f.id = a.parent_id
        )
        SELECT EXISTS(SELECT 1 FROM ancestors WHERE deleted_at IS NOT NULL)`

	if err := r.db.GetContext(ctx, &found, query, id); err != nil {
		return false, fmt.Errorf("failed to check ancestors: %w", err)
	}

	return found, nil
}

// CountChildren считает прямых потомков в любом состоянии: для отказа
// Conflict при нерекурсивном окончательном удалении.
func (r *FolderRepository) CountChildren(ctx context.Context, id int64) (int, int, error) {
	var folders, files int

	err := r.db.QueryRowContext(ctx, `
        SELECT
            (SELECT COUNT(*) FROM folders WHERE parent_id = $1),
            (SELECT COUNT(*) FROM files WHERE folder_id = $1)`,
		id,
	).Scan(&folders, &files)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count folder children: %w", err)
	}

	return folders, files, nil
}

// PurgeSubtree окончательно удаляет папку со всем поддеревом в одной
// транзакции. Квота крейта и аккаунта освобождается здесь же, один раз,
// на суммарный размер удалённых файлов. Ключи объектов возвращаются
// вызывающему: хранилище объектов чистится после фиксации, чтобы сбой
// посреди операции оставил осиротевший объект, а не висячую строку.
func (r *FolderRepository) PurgeSubtree(ctx context.Context, folderID int64) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var crateID int64
	var ownerID string
	err = tx.QueryRowContext(ctx, `
        SELECT c.id, c.owner_id
        FROM folders f
        JOIN crates c ON c.id = f.crate_id
        WHERE f.id = $1`,
		folderID,
	).Scan(&crateID, &ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("folder %d not found", folderID)
		}
		return nil, fmt.Errorf("failed to resolve folder crate: %w", err)
	}

	// Блокируем счётчики до изменения
	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM crates WHERE id = $1 FOR UPDATE`, crateID); err != nil {
		return nil, fmt.Errorf("failed to lock crate: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM storage_quotas WHERE owner_id = $1 FOR UPDATE`, ownerID); err != nil {
		return nil, fmt.Errorf("failed to lock account quota: %w", err)
	}

	subtree := `
        WITH RECURSIVE subtree AS (
            SELECT id FROM folders WHERE id = $1
            UNION ALL
            SELECT f.id FROM folders f
            INNER JOIN subtree s ON f.parent_id = s.id
        )
        SELECT id FROM subtree`

	var folderIDs []int64
	if err := tx.SelectContext(ctx, &folderIDs, subtree, folderID); err != nil {
		return nil, fmt.Errorf("failed to collect subtree: %w", err)
	}

	query, args, err := sqlx.In(
		`SELECT storage_key, size_bytes FROM files WHERE folder_id IN (?)`,
		folderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build files query: %w", err)
	}
	query = tx.Rebind(query)

	var contained []struct {
		StorageKey string `db:"storage_key"`
		SizeBytes  int64  `db:"size_bytes"`
	}
	if err := tx.SelectContext(ctx, &contained, query, args...); err != nil {
		return nil, fmt.Errorf("failed to collect contained files: %w", err)
	}

	keys := make([]string, 0, len(contained))
	var freed int64
	for _, f := range contained {
		keys = append(keys, f.StorageKey)
		freed += f.SizeBytes
	}

	delFiles, args, err := sqlx.In(`DELETE FROM files WHERE folder_id IN (?)`, folderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(delFiles), args...); err != nil {
		return nil, fmt.Errorf("failed to delete contained files: %w", err)
	}

	delFolders, args, err := sqlx.In(`DELETE FROM folders WHERE id IN (?)`, folderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(delFolders), args...); err != nil {
		return nil, fmt.Errorf("failed to delete folders: %w", err)
	}

	if freed > 0 {
		_, err = tx.ExecContext(ctx, `
            UPDATE crates
            SET used_bytes = GREATEST(0, used_bytes - $1),
                updated_at = CURRENT_TIMESTAMP
            WHERE id = $2`,
			freed, crateID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to release crate quota: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE storage_quotas
            SET used_bytes = GREATEST(0, used_bytes - $1),
                updated_at = CURRENT_TIMESTAMP
            WHERE owner_id = $2`,
			freed, ownerID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to release account quota: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return keys, nil
}
