package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Crate представляет корневой контейнер пользовательских данных.
// used_bytes никогда не превышает allocated_bytes, инвариант
// поддерживается на уровне репозитория (блокировка строки).
type Crate struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Color          string    `json:"color" db:"color"`
	OwnerID        string    `json:"owner_id" db:"owner_id"`
	AllocatedBytes int64     `json:"allocated_bytes" db:"allocated_bytes"`
	UsedBytes      int64     `json:"used_bytes" db:"used_bytes"`
	RootFolderID   int64     `json:"root_folder_id" db:"root_folder_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Role — упорядоченная лестница ролей участника крейта.
// Каждая роль включает все возможности ролей ниже, поэтому проверки
// возможностей сводятся к сравнению рангов, а не к switch по операциям.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleUploader
	RoleManager
	RoleOwner
)

var roleNames = map[Role]string{
	RoleViewer:   "viewer",
	RoleUploader: "uploader",
	RoleManager:  "manager",
	RoleOwner:    "owner",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "none"
}

// AtLeast отвечает, достаточен ли ранг роли для операции.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleNone, fmt.Errorf("unknown role: %q", s)
}

// Value реализует driver.Valuer, в базе роль хранится текстом.
func (r Role) Value() (driver.Value, error) {
	if _, ok := roleNames[r]; !ok {
		return nil, fmt.Errorf("invalid role: %d", r)
	}
	return r.String(), nil
}

// Scan реализует sql.Scanner.
func (r *Role) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan role from %T", src)
	}

	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// CrateMember связывает пользователя с крейтом. Пара (crate_id, user_id)
// уникальна; в каждом крейте ровно один owner.
type CrateMember struct {
	CrateID  int64     `json:"crate_id" db:"crate_id"`
	UserID   string    `json:"user_id" db:"user_id"`
	Role     Role      `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
