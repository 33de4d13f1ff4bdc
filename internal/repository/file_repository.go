package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"cratedrive/internal/apperr"
	"cratedrive/internal/domain"
)

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create резервирует место и записывает метаданные файла в одной
// транзакции. Оба счётчика блокируются FOR UPDATE, поэтому два
// конкурентных аплоада не могут оба пройти проверку на остатке,
// которого хватает только одному.
func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var crate struct {
		AllocatedBytes int64  `db:"allocated_bytes"`
		UsedBytes      int64  `db:"used_bytes"`
		OwnerID        string `db:"owner_id"`
	}
	err = tx.GetContext(ctx, &crate, `
        SELECT allocated_bytes, used_bytes, owner_id
        FROM crates WHERE id = $1 FOR UPDATE`,
		file.CrateID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("crate %d not found", file.CrateID)
		}
		return fmt.Errorf("failed to lock crate: %w", err)
	}

	if crate.UsedBytes+file.SizeBytes > crate.AllocatedBytes {
		return apperr.QuotaExceeded("crate quota exceeded: %d of %d bytes used, %d requested",
			crate.UsedBytes, crate.AllocatedBytes, file.SizeBytes)
	}

	var account struct {
		TotalBytesLimit int64 `db:"total_bytes_limit"`
		UsedBytes       int64 `db:"used_bytes"`
	}
	err = tx.GetContext(ctx, &account, `
        SELECT total_bytes_limit, used_bytes
        FROM storage_quotas WHERE owner_id = $1 FOR UPDATE`,
		crate.OwnerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("storage quota for owner %s not found", crate.OwnerID)
		}
		return fmt.Errorf("failed to lock account quota: %w", err)
	}

	if account.UsedBytes+file.SizeBytes > account.TotalBytesLimit {
		return apperr.QuotaExceeded("account quota exceeded: %d of %d bytes used, %d requested",
			account.UsedBytes, account.TotalBytesLimit, file.SizeBytes)
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO files (uuid, crate_id, folder_id, name, mime_type, size_bytes, storage_key, uploaded_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`,
		file.UUID, file.CrateID, file.FolderID, file.Name,
		file.MIMEType, file.SizeBytes, file.StorageKey, file.UploadedBy,
	).Scan(&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE crates
        SET used_bytes = used_bytes + $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`,
		file.SizeBytes, file.CrateID,
	)
	if err != nil {
		return fmt.Errorf("failed to consume crate quota: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE storage_quotas
        SET used_bytes = used_bytes + $1, updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`,
		file.SizeBytes, crate.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to consume account quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *FileRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	var file domain.File
	err := r.db.GetContext(ctx, &file, `SELECT * FROM files WHERE uuid = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("file %s not found", id)
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return &file, nil
}

func (r *FileRepository) ListByFolder(ctx context.Context, crateID int64, folderID *int64) ([]domain.File, error) {
	var files []domain.File
	var err error

	if folderID == nil {
		err = r.db.SelectContext(ctx, &files, `
            SELECT * FROM files
            WHERE crate_id = $1 AND folder_id IS NULL AND deleted_at IS NULL
            ORDER BY name`,
			crateID,
		)
	} else {
		err = r.db.SelectContext(ctx, &files, `
            SELECT * FROM files
            WHERE crate_id = $1 AND folder_id = $2 AND deleted_at IS NULL
            ORDER BY name`,
			crateID, *folderID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

// ListActiveByCrate возвращает видимые файлы крейта: не удалённые сами
// и не накрытые удалённой папкой выше по дереву.
func (r *FileRepository) ListActiveByCrate(ctx context.Context, crateID int64) ([]domain.File, error) {
	var files []domain.File
	err := r.db.SelectContext(ctx, &files, `
        WITH RECURSIVE buried AS (
            SELECT f.id
            FROM folders f
            WHERE f.crate_id = $1 AND f.deleted_at IS NOT NULL

            UNION

            SELECT f.id
            FROM folders f
            JOIN buried b ON f.parent_id = b.id
        )
        SELECT * FROM files
        WHERE crate_id = $1
          AND deleted_at IS NULL
          AND (folder_id IS NULL OR folder_id NOT IN (SELECT id FROM buried))
        ORDER BY name`,
		crateID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list crate files: %w", err)
	}

	return files, nil
}

func (r *FileRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	result, err := r.db.ExecContext(ctx, `
        UPDATE files
        SET name = $1, updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $2`,
		name, id,
	)
	if err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("file %s not found", id)
	}

	return nil
}

func (r *FileRepository) UpdateParent(ctx context.Context, id uuid.UUID, folderID *int64) error {
	result, err := r.db.ExecContext(ctx, `
        UPDATE files
        SET folder_id = $1, updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $2`,
		folderID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("file %s not found", id)
	}

	return nil
}

func (r *FileRepository) SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error {
	result, err := r.db.ExecContext(ctx, `
        UPDATE files
        SET deleted_at = CURRENT_TIMESTAMP,
            deleted_by = $1,
            restored_at = NULL,
            restored_by = NULL
        WHERE uuid = $2 AND deleted_at IS NULL`,
		actorID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete file: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("file %s not found or already deleted", id)
	}

	return nil
}

func (r *FileRepository) Restore(ctx context.Context, id uuid.UUID, actorID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
        UPDATE files
        SET deleted_at = NULL,
            deleted_by = NULL,
            restored_at = CURRENT_TIMESTAMP,
            restored_by = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $2 AND deleted_at IS NOT NULL`,
		actorID, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to restore file: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// DeletePermanently удаляет строку файла и освобождает квоту крейта и
// аккаунта на его размер. Это единственный путь возврата места: мягкое
// удаление квоту не трогает.
func (r *FileRepository) DeletePermanently(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var crateID int64
	var ownerID string
	err = tx.QueryRowContext(ctx, `
        SELECT c.id, c.owner_id
        FROM files f
        JOIN crates c ON c.id = f.crate_id
        WHERE f.uuid = $1`,
		id,
	).Scan(&crateID, &ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("file %s not found", id)
		}
		return fmt.Errorf("failed to resolve file crate: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM crates WHERE id = $1 FOR UPDATE`, crateID); err != nil {
		return fmt.Errorf("failed to lock crate: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM storage_quotas WHERE owner_id = $1 FOR UPDATE`, ownerID); err != nil {
		return fmt.Errorf("failed to lock account quota: %w", err)
	}

	var size int64
	err = tx.QueryRowContext(ctx,
		`DELETE FROM files WHERE uuid = $1 RETURNING size_bytes`, id,
	).Scan(&size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("file %s not found", id)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE crates
        SET used_bytes = GREATEST(0, used_bytes - $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`,
		size, crateID,
	)
	if err != nil {
		return fmt.Errorf("failed to release crate quota: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE storage_quotas
        SET used_bytes = GREATEST(0, used_bytes - $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`,
		size, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to release account quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
