package service

import (
	"context"

	"cratedrive/internal/apperr"
	"cratedrive/internal/auth"
	"cratedrive/internal/domain"
)

// UserLookup резолвит имена пользователей по их ID. Сетевой клиент
// подменяется в тестах.
type UserLookup func(ctx context.Context, ids []string) ([]auth.UserInfo, error)

// MemberView — участник крейта с именем из сервиса аккаунтов.
type MemberView struct {
	domain.CrateMember
	Name string `json:"name"`
}

// CrateService управляет жизненным циклом крейтов и их участниками.
type CrateService struct {
	crates      CrateStore
	members     MemberStore
	perms       *PermissionService
	quotaSvc    *StorageQuotaService
	lookupUsers UserLookup
}

func NewCrateService(crates CrateStore, members MemberStore, perms *PermissionService, quotaSvc *StorageQuotaService, lookupUsers UserLookup) *CrateService {
	if lookupUsers == nil {
		lookupUsers = auth.GetUsersByIds
	}
	return &CrateService{
		crates:      crates,
		members:     members,
		perms:       perms,
		quotaSvc:    quotaSvc,
		lookupUsers: lookupUsers,
	}
}

// Create создаёт крейт с корневой папкой и членством владельца одной
// транзакцией. Выделение места проверяется против лимита аккаунта
// там же: сумма выделений всех крейтов владельца не превышает лимит.
func (s *CrateService) Create(ctx context.Context, ownerID, name, color string, allocatedBytes int64) (*domain.Crate, error) {
	if name == "" {
		return nil, apperr.Validation("crate name is required")
	}
	if allocatedBytes <= 0 {
		return nil, apperr.Validation("crate allocation must be positive")
	}

	// Строка квоты должна существовать до проверки выделения
	if _, err := s.quotaSvc.Ensure(ctx, ownerID); err != nil {
		return nil, err
	}

	crate := &domain.Crate{
		Name:           name,
		Color:          color,
		OwnerID:        ownerID,
		AllocatedBytes: allocatedBytes,
	}
	root := &domain.Folder{
		Name:      name,
		IsRoot:    true,
		CreatedBy: ownerID,
	}
	owner := &domain.CrateMember{
		UserID: ownerID,
		Role:   domain.RoleOwner,
	}

	if err := s.crates.Create(ctx, crate, root, owner); err != nil {
		return nil, err
	}

	return crate, nil
}

func (s *CrateService) Get(ctx context.Context, crateID int64, userID string) (*domain.Crate, error) {
	if _, err := s.perms.Require(ctx, crateID, userID, domain.RoleViewer); err != nil {
		return nil, err
	}

	return s.crates.GetByID(ctx, crateID)
}

func (s *CrateService) ListForUser(ctx context.Context, userID string) ([]domain.Crate, error) {
	return s.crates.ListForUser(ctx, userID)
}

func (s *CrateService) UpdateMeta(ctx context.Context, crateID int64, userID, name, color string) error {
	if _, err := s.perms.Require(ctx, crateID, userID, domain.RoleOwner); err != nil {
		return err
	}
	if name == "" {
		return apperr.Validation("crate name is required")
	}

	return s.crates.UpdateMeta(ctx, crateID, name, color)
}

// UpdateAllocation меняет выделение крейта. Репозиторий отказывает,
// если новое значение ниже текущего использования или выводит сумму
// выделений за лимит аккаунта.
func (s *CrateService) UpdateAllocation(ctx context.Context, crateID int64, userID string, allocatedBytes int64) error {
	if _, err := s.perms.Require(ctx, crateID, userID, domain.RoleOwner); err != nil {
		return err
	}
	if allocatedBytes <= 0 {
		return apperr.Validation("crate allocation must be positive")
	}

	return s.crates.UpdateAllocation(ctx, crateID, allocatedBytes)
}

func (s *CrateService) ListMembers(ctx context.Context, crateID int64, userID string) ([]MemberView, error) {
	if _, err := s.perms.Require(ctx, crateID, userID, domain.RoleViewer); err != nil {
		return nil, err
	}

	members, err := s.members.ListByCrate(ctx, crateID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}

	names := map[string]string{}
	if users, err := s.lookupUsers(ctx, ids); err == nil {
		for _, u := range users {
			names[u.ID] = u.Name + " " + u.Lastname
		}
	}

	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, MemberView{CrateMember: m, Name: names[m.UserID]})
	}

	return views, nil
}

// AddMember добавляет участника. Владелец ровно один, поэтому роль
// owner через приглашение не выдаётся.
func (s *CrateService) AddMember(ctx context.Context, crateID int64, actorID, userID string, role domain.Role) error {
	if _, err := s.perms.Require(ctx, crateID, actorID, domain.RoleOwner); err != nil {
		return err
	}
	if role == domain.RoleOwner {
		return apperr.Validation("crate already has an owner")
	}
	if !role.AtLeast(domain.RoleViewer) {
		return apperr.Validation("invalid member role")
	}

	return s.members.Add(ctx, &domain.CrateMember{
		CrateID: crateID,
		UserID:  userID,
		Role:    role,
	})
}

func (s *CrateService) UpdateMemberRole(ctx context.Context, crateID int64, actorID, userID string, role domain.Role) error {
	if _, err := s.perms.Require(ctx, crateID, actorID, domain.RoleOwner); err != nil {
		return err
	}
	if actorID == userID {
		return apperr.Conflict("owner cannot change own role")
	}
	if role == domain.RoleOwner {
		return apperr.Validation("crate already has an owner")
	}
	if !role.AtLeast(domain.RoleViewer) {
		return apperr.Validation("invalid member role")
	}

	return s.members.UpdateRole(ctx, crateID, userID, role)
}

func (s *CrateService) RemoveMember(ctx context.Context, crateID int64, actorID, userID string) error {
	if _, err := s.perms.Require(ctx, crateID, actorID, domain.RoleOwner); err != nil {
		return err
	}
	if actorID == userID {
		return apperr.Conflict("owner cannot leave own crate")
	}

	return s.members.Remove(ctx, crateID, userID)
}
