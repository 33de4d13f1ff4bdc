package service

import (
	"context"

	"cratedrive/internal/apperr"
	"cratedrive/internal/domain"
)

// PermissionService отвечает на вопрос "кто что может" в крейте.
// Роли образуют лестницу, поэтому любая проверка — сравнение рангов.
type PermissionService struct {
	members MemberStore
}

func NewPermissionService(members MemberStore) *PermissionService {
	return &PermissionService{members: members}
}

// RoleOf возвращает роль пользователя в крейте. Не-участник получает
// RoleNone, это не ошибка.
func (s *PermissionService) RoleOf(ctx context.Context, crateID int64, userID string) (domain.Role, error) {
	member, err := s.members.Get(ctx, crateID, userID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return domain.RoleNone, nil
		}
		return domain.RoleNone, err
	}

	return member.Role, nil
}

// Require проверяет, что роль пользователя не ниже min.
func (s *PermissionService) Require(ctx context.Context, crateID int64, userID string, min domain.Role) (domain.Role, error) {
	role, err := s.RoleOf(ctx, crateID, userID)
	if err != nil {
		return domain.RoleNone, err
	}
	if !role.AtLeast(min) {
		return role, apperr.Forbidden("operation requires role %s or above, user has %s", min, role)
	}

	return role, nil
}

func (s *PermissionService) CanDownload(role domain.Role) bool {
	return role.AtLeast(domain.RoleViewer)
}

func (s *PermissionService) CanUpload(role domain.Role) bool {
	return role.AtLeast(domain.RoleUploader)
}

// CanDeleteItem: менеджер и выше удаляют любые элементы крейта,
// загрузивший или создавший — свои собственные.
func (s *PermissionService) CanDeleteItem(role domain.Role, userID, itemOwnerID string) bool {
	if role.AtLeast(domain.RoleManager) {
		return true
	}
	return role.AtLeast(domain.RoleUploader) && userID == itemOwnerID
}

func (s *PermissionService) CanManageMembers(role domain.Role) bool {
	return role.AtLeast(domain.RoleOwner)
}

func (s *PermissionService) CanManageSettings(role domain.Role) bool {
	return role.AtLeast(domain.RoleOwner)
}

// SeesFullTrash: корзина целиком видна менеджеру и выше, остальные
// видят только собственные удаления и свои элементы.
func (s *PermissionService) SeesFullTrash(role domain.Role) bool {
	return role.AtLeast(domain.RoleManager)
}
