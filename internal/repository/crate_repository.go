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

type CrateRepository struct {
	db *sqlx.DB
}

func NewCrateRepository(db *sqlx.DB) *CrateRepository {
	return &CrateRepository{db: db}
}

// Create сохраняет крейт вместе с корневой папкой и членством владельца.
// Выделение места проверяется против лимита аккаунта под блокировкой
// строки квоты, чтобы два конкурентных создания не раздали больше,
// чем есть.
func (r *CrateRepository) Create(ctx context.Context, crate *domain.Crate, root *domain.Folder, owner *domain.CrateMember) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Блокируем строку квоты аккаунта на время проверки и применения
	var limit int64
	err = tx.QueryRowContext(ctx,
		`SELECT total_bytes_limit FROM storage_quotas WHERE owner_id = $1 FOR UPDATE`,
		crate.OwnerID,
	).Scan(&limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("storage quota for account %s not found", crate.OwnerID)
		}
		return fmt.Errorf("failed to lock account quota: %w", err)
	}

	var allocated int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(allocated_bytes), 0) FROM crates WHERE owner_id = $1`,
		crate.OwnerID,
	).Scan(&allocated)
	if err != nil {
		return fmt.Errorf("failed to sum crate allocations: %w", err)
	}

	if allocated+crate.AllocatedBytes > limit {
		return apperr.QuotaExceeded("allocating %d bytes would exceed account limit of %d bytes",
			crate.AllocatedBytes, limit)
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO crates (name, color, owner_id, allocated_bytes)
        VALUES ($1, $2, $3, $4)
        RETURNING id, used_bytes, created_at, updated_at`,
		crate.Name, crate.Color, crate.OwnerID, crate.AllocatedBytes,
	).Scan(&crate.ID, &crate.UsedBytes, &crate.CreatedAt, &crate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create crate: %w", err)
	}

	// Корневая папка: ровно одна на крейт, без родителя
	root.CrateID = crate.ID
	err = tx.QueryRowContext(ctx, `
        INSERT INTO folders (crate_id, name, color, parent_id, is_root, created_by)
        VALUES ($1, $2, $3, NULL, TRUE, $4)
        RETURNING id, created_at, updated_at`,
		root.CrateID, root.Name, root.Color, root.CreatedBy,
	).Scan(&root.ID, &root.CreatedAt, &root.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create root folder: %w", err)
	}
	root.IsRoot = true

	_, err = tx.ExecContext(ctx,
		`UPDATE crates SET root_folder_id = $1 WHERE id = $2`,
		root.ID, crate.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to link root folder: %w", err)
	}
	crate.RootFolderID = root.ID

	owner.CrateID = crate.ID
	err = tx.QueryRowContext(ctx, `
        INSERT INTO crate_members (crate_id, user_id, role)
        VALUES ($1, $2, $3)
        RETURNING joined_at`,
		owner.CrateID, owner.UserID, owner.Role,
	).Scan(&owner.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	return tx.Commit()
}

func (r *CrateRepository) GetByID(ctx context.Context, id int64) (*domain.Crate, error) {
	var crate domain.Crate
	err := r.db.GetContext(ctx, &crate, `SELECT * FROM crates WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("crate %d not found", id)
		}
		return nil, fmt.Errorf("failed to get crate: %w", err)
	}

	return &crate, nil
}

func (r *CrateRepository) ListForUser(ctx context.Context, userID string) ([]domain.Crate, error) {
	var crates []domain.Crate
	query := `
        SELECT c.* FROM crates c
        JOIN crate_members m ON m.crate_id = c.id
        WHERE m.user_id = $1
        ORDER BY c.name`

	if err := r.db.SelectContext(ctx, &crates, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list crates: %w", err)
	}

	return crates, nil
}

func (r *CrateRepository) UpdateMeta(ctx context.Context, id int64, name, color string) error {
	result, err := r.db.ExecContext(ctx, `
        UPDATE crates
        SET name = $1, color = $2, updated_at = CURRENT_TIMESTAMP
        WHERE id = $3`,
		name, color, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update crate: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("crate %d not found", id)
	}

	return nil
}

// UpdateAllocation меняет выделение крейта. Нельзя опуститься ниже
// текущего использования и нельзя превысить остаток лимита аккаунта.
func (r *CrateRepository) UpdateAllocation(ctx context.Context, id int64, allocatedBytes int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var crate domain.Crate
	err = tx.GetContext(ctx, &crate, `SELECT * FROM crates WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("crate %d not found", id)
		}
		return fmt.Errorf("failed to lock crate: %w", err)
	}

	if allocatedBytes < crate.UsedBytes {
		return apperr.Conflict("allocation %d bytes is below current usage %d bytes",
			allocatedBytes, crate.UsedBytes)
	}

	var limit int64
	err = tx.QueryRowContext(ctx,
		`SELECT total_bytes_limit FROM storage_quotas WHERE owner_id = $1 FOR UPDATE`,
		crate.OwnerID,
	).Scan(&limit)
	if err != nil {
		return fmt.Errorf("failed to lock account quota: %w", err)
	}

	var others int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(allocated_bytes), 0) FROM crates WHERE owner_id = $1 AND id != $2`,
		crate.OwnerID, id,
	).Scan(&others)
	if err != nil {
		return fmt.Errorf("failed to sum crate allocations: %w", err)
	}

	if others+allocatedBytes > limit {
		return apperr.QuotaExceeded("allocating %d bytes would exceed account limit of %d bytes",
			allocatedBytes, limit)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE crates
        SET allocated_bytes = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`,
		allocatedBytes, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update allocation: %w", err)
	}

	return tx.Commit()
}
