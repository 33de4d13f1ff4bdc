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

type StorageQuotaRepository struct {
	db *sqlx.DB
}

func NewStorageQuotaRepository(db *sqlx.DB) *StorageQuotaRepository {
	return &StorageQuotaRepository{db: db}
}

// GetOrCreate возвращает квоту аккаунта, создавая строку с лимитом
// тарифа при первом обращении. ON CONFLICT защищает от гонки двух
// первых запросов одного пользователя.
func (r *StorageQuotaRepository) GetOrCreate(ctx context.Context, ownerID, plan string, limitBytes int64) (*domain.StorageQuota, error) {
	var quota domain.StorageQuota
	err := r.db.GetContext(ctx, &quota, `
        INSERT INTO storage_quotas (owner_id, plan, total_bytes_limit)
        VALUES ($1, $2, $3)
        ON CONFLICT (owner_id) DO UPDATE SET plan = EXCLUDED.plan
        RETURNING *`,
		ownerID, plan, limitBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create storage quota: %w", err)
	}

	return &quota, nil
}

func (r *StorageQuotaRepository) Get(ctx context.Context, ownerID string) (*domain.StorageQuota, error) {
	var quota domain.StorageQuota
	err := r.db.GetContext(ctx, &quota,
		`SELECT * FROM storage_quotas WHERE owner_id = $1`, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("storage quota for owner %s not found", ownerID)
		}
		return nil, fmt.Errorf("failed to get storage quota: %w", err)
	}

	return &quota, nil
}

// UpdateLimit меняет лимит аккаунта. Сужать лимит ниже текущего
// использования нельзя.
func (r *StorageQuotaRepository) UpdateLimit(ctx context.Context, ownerID string, limitBytes int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var used int64
	err = tx.GetContext(ctx, &used,
		`SELECT used_bytes FROM storage_quotas WHERE owner_id = $1 FOR UPDATE`, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("storage quota for owner %s not found", ownerID)
		}
		return fmt.Errorf("failed to lock storage quota: %w", err)
	}

	if limitBytes < used {
		return apperr.Conflict("cannot shrink quota below current usage: %d used, %d requested", used, limitBytes)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE storage_quotas
        SET total_bytes_limit = $1, updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`,
		limitBytes, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update storage quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AllocatedToCrates — суммарный объём, уже выделенный крейтам
// пользователя. Нужен при создании крейта и изменении его выделения.
func (r *StorageQuotaRepository) AllocatedToCrates(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(allocated_bytes), 0) FROM crates WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum crate allocations: %w", err)
	}

	return total, nil
}
