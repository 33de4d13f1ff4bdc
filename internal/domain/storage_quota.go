package domain

import "time"

// Тарифные планы аккаунта. Лимит аккаунта выводится из плана,
// сервис квот обращается к источнику аккаунтов, а не владеет цифрой.
const (
	PlanFree    = "free"
	PlanPro     = "pro"
	PlanUnknown = ""
)

// StorageQuota — строка учёта на уровне аккаунта.
// used_bytes ≤ total_bytes_limit; проверка и применение происходят
// в одной транзакции с записью метаданных.
type StorageQuota struct {
	ID              int64     `json:"id" db:"id"`
	OwnerID         string    `json:"owner_id" db:"owner_id"`
	Plan            string    `json:"plan" db:"plan"`
	TotalBytesLimit int64     `json:"total_bytes_limit" db:"total_bytes_limit"`
	UsedBytes       int64     `json:"used_bytes" db:"used_bytes"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type QuotaInfo struct {
	Plan           string  `json:"plan"`
	TotalSpace     int64   `json:"total_space"`
	UsedSpace      int64   `json:"used_space"`
	AvailableSpace int64   `json:"available_space"`
	UsagePercent   float64 `json:"usage_percent"`
}
