package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"cratedrive/internal/domain"
)

type TrashRepository struct {
	db *sqlx.DB
}

func NewTrashRepository(db *sqlx.DB) *TrashRepository {
	return &TrashRepository{db: db}
}

// deletedUnderCTE вычисляет множество папок, лежащих строго ниже
// какой-либо удалённой папки крейта. Такие элементы (и файлы внутри
// них) в корзине отдельной строкой не показываются: их накрывает
// корневой элемент удаления.
const deletedUnderCTE = `
    WITH RECURSIVE deleted_under AS (
        SELECT f.id
        FROM folders f
        JOIN folders p ON p.id = f.parent_id
        WHERE f.crate_id = $1 AND p.deleted_at IS NOT NULL

        UNION

        SELECT f.id
        FROM folders f
        JOIN deleted_under d ON f.parent_id = d.id
    )`

// ListDeleted возвращает объединённый список корневых элементов
// корзины крейта, новые удаления первыми. Непустой onlyUserID сужает
// выборку до элементов, которые пользователь удалил или создал сам.
func (r *TrashRepository) ListDeleted(ctx context.Context, crateID int64, onlyUserID string) ([]domain.TrashItem, error) {
	query := deletedUnderCTE + `
        SELECT f.id::text AS id,
               'folder' AS type,
               f.name,
               0::bigint AS size_bytes,
               NULL::text AS mime_type,
               f.deleted_at,
               f.deleted_by,
               f.created_by AS owner_id
        FROM folders f
        WHERE f.crate_id = $1
          AND f.deleted_at IS NOT NULL
          AND f.id NOT IN (SELECT id FROM deleted_under)

        UNION ALL

        SELECT fl.uuid::text AS id,
               'file' AS type,
               fl.name,
               fl.size_bytes,
               fl.mime_type,
               fl.deleted_at,
               fl.deleted_by,
               fl.uploaded_by AS owner_id
        FROM files fl
        LEFT JOIN folders pf ON pf.id = fl.folder_id
        WHERE fl.crate_id = $1
          AND fl.deleted_at IS NOT NULL
          AND (fl.folder_id IS NULL
               OR (pf.deleted_at IS NULL AND pf.id NOT IN (SELECT id FROM deleted_under)))

        ORDER BY deleted_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, crateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trash items: %w", err)
	}
	defer rows.Close()

	var items []domain.TrashItem
	for rows.Next() {
		var item domain.TrashItem
		var ownerID string
		err := rows.Scan(&item.ID, &item.Type, &item.Name, &item.SizeBytes,
			&item.MIMEType, &item.DeletedAt, &item.DeletedBy, &ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trash item: %w", err)
		}
		if onlyUserID != "" && item.DeletedBy != onlyUserID && ownerID != onlyUserID {
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trash items: %w", err)
	}

	return items, nil
}

// Expired возвращает ссылки на корневые элементы корзины, удалённые
// раньше cutoff. Поддеревья папок отдельно не перечисляются: их
// окончательно удаляет PurgeSubtree.
func (r *TrashRepository) Expired(ctx context.Context, cutoff time.Time) ([]domain.ExpiredRef, error) {
	query := `
        WITH RECURSIVE deleted_under AS (
            SELECT f.id
            FROM folders f
            JOIN folders p ON p.id = f.parent_id
            WHERE p.deleted_at IS NOT NULL

            UNION

            SELECT f.id
            FROM folders f
            JOIN deleted_under d ON f.parent_id = d.id
        )
        SELECT f.crate_id,
               'folder' AS type,
               '00000000-0000-0000-0000-000000000000'::uuid AS file_uuid,
               f.id AS folder_id
        FROM folders f
        WHERE f.deleted_at IS NOT NULL
          AND f.deleted_at < $1
          AND f.id NOT IN (SELECT id FROM deleted_under)

        UNION ALL

        SELECT fl.crate_id,
               'file' AS type,
               fl.uuid AS file_uuid,
               0::bigint AS folder_id
        FROM files fl
        LEFT JOIN folders pf ON pf.id = fl.folder_id
        WHERE fl.deleted_at IS NOT NULL
          AND fl.deleted_at < $1
          AND (fl.folder_id IS NULL
               OR (pf.deleted_at IS NULL AND pf.id NOT IN (SELECT id FROM deleted_under)))`

	var refs []domain.ExpiredRef
	if err := r.db.SelectContext(ctx, &refs, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to query expired trash items: %w", err)
	}

	return refs, nil
}
