package service

import (
	"context"
	"fmt"

	"cratedrive/internal/apperr"
	"cratedrive/internal/auth"
	"cratedrive/internal/domain"
)

// PlanResolver отдаёт тариф и лимит аккаунта. Сервис квот спрашивает
// источник аккаунтов, а не владеет цифрами тарифов.
type PlanResolver func(ctx context.Context, userID string) (plan string, limitBytes int64, err error)

// StorageQuotaService ведёт учёт места на уровне аккаунта.
// Проверка и применение при загрузке выполняются атомарно в
// FileStore.Create; здесь живут справочные и административные операции.
type StorageQuotaService struct {
	quotas      QuotaStore
	resolvePlan PlanResolver
}

func NewStorageQuotaService(quotas QuotaStore, resolvePlan PlanResolver) *StorageQuotaService {
	if resolvePlan == nil {
		resolvePlan = accountPlan
	}
	return &StorageQuotaService{quotas: quotas, resolvePlan: resolvePlan}
}

func accountPlan(ctx context.Context, userID string) (string, int64, error) {
	users, err := auth.GetUsersByIds(ctx, []string{userID})
	if err != nil {
		return "", 0, fmt.Errorf("failed to resolve account plan: %w", err)
	}
	if len(users) == 0 {
		return "", 0, apperr.NotFound("user %s not found in account service", userID)
	}

	return users[0].Plan, auth.PlanLimit(users[0].Plan), nil
}

// Ensure возвращает квоту аккаунта, создавая её по тарифу при первом
// обращении.
func (s *StorageQuotaService) Ensure(ctx context.Context, ownerID string) (*domain.StorageQuota, error) {
	plan, limit, err := s.resolvePlan(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	return s.quotas.GetOrCreate(ctx, ownerID, plan, limit)
}

// GetQuotaInfo — сводка для клиента: лимит, занято, остаток, процент.
func (s *StorageQuotaService) GetQuotaInfo(ctx context.Context, ownerID string) (*domain.QuotaInfo, error) {
	quota, err := s.Ensure(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	info := &domain.QuotaInfo{
		Plan:           quota.Plan,
		TotalSpace:     quota.TotalBytesLimit,
		UsedSpace:      quota.UsedBytes,
		AvailableSpace: quota.TotalBytesLimit - quota.UsedBytes,
	}
	if quota.TotalBytesLimit > 0 {
		info.UsagePercent = float64(quota.UsedBytes) / float64(quota.TotalBytesLimit) * 100
	}

	return info, nil
}

// CanConsume — быстрая предварительная проверка перед дорогой
// загрузкой. Решающая проверка всё равно происходит под блокировкой
// в транзакции вставки файла, здесь только ранний отказ.
func (s *StorageQuotaService) CanConsume(ctx context.Context, ownerID string, n int64) error {
	quota, err := s.Ensure(ctx, ownerID)
	if err != nil {
		return err
	}
	if quota.UsedBytes+n > quota.TotalBytesLimit {
		return apperr.QuotaExceeded("account quota exceeded: %d of %d bytes used, %d requested",
			quota.UsedBytes, quota.TotalBytesLimit, n)
	}

	return nil
}

// SyncLimit пересчитывает лимит аккаунта по актуальному тарифу.
func (s *StorageQuotaService) SyncLimit(ctx context.Context, ownerID string) error {
	_, limit, err := s.resolvePlan(ctx, ownerID)
	if err != nil {
		return err
	}

	return s.quotas.UpdateLimit(ctx, ownerID, limit)
}

// Unallocated — сколько байт лимита ещё не роздано крейтам владельца.
func (s *StorageQuotaService) Unallocated(ctx context.Context, ownerID string) (int64, error) {
	quota, err := s.Ensure(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	allocated, err := s.quotas.AllocatedToCrates(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	return quota.TotalBytesLimit - allocated, nil
}
