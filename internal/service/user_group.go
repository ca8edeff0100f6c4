package service

import (
	"context"
	"regexp"

	"sage/internal/apierr"
	"sage/internal/auth"
	"sage/internal/policy"
	"sage/internal/store"
)

var groupNameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,30}$`)

type UserGroupService interface {
	Create(ctx context.Context, name string) (*store.UserGroup, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]store.UserGroup, error)
	Memberships(ctx context.Context, groupID int64) ([]store.UserGroupMembership, error)
	// UpsertMembership 要求站点管理员或组管理员。
	UpsertMembership(ctx context.Context, principal auth.Principal, groupID, userID int64, isGroupAdmin bool) error
	DeleteMembership(ctx context.Context, principal auth.Principal, groupID, userID int64) error
	GrantSourceAccess(ctx context.Context, sourceID string, groupID int64) error
	RevokeSourceAccess(ctx context.Context, sourceID string, groupID int64) error
	SourceAccessGroups(ctx context.Context, sourceID string) ([]int64, error)
}

type userGroupService struct {
	store  *store.Store
	policy *policy.AccessPolicy
}

func newUserGroupService(st *store.Store, pol *policy.AccessPolicy) *userGroupService {
	return &userGroupService{store: st, policy: pol}
}

func (s *userGroupService) Create(ctx context.Context, name string) (*store.UserGroup, error) {
	if !groupNameRe.MatchString(name) {
		return nil, apierr.InvalidInput(apierr.FieldError{Path: "name", Message: "组名须为小写字母开头的 2-31 位标识符"})
	}
	id, err := s.store.CreateUserGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.store.GetUserGroup(ctx, id)
}

func (s *userGroupService) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteUserGroup(ctx, id)
}

func (s *userGroupService) List(ctx context.Context) ([]store.UserGroup, error) {
	return s.store.ListUserGroups(ctx)
}

func (s *userGroupService) Memberships(ctx context.Context, groupID int64) ([]store.UserGroupMembership, error) {
	if _, err := s.store.GetUserGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListUserGroupMemberships(ctx, groupID)
}

func (s *userGroupService) UpsertMembership(ctx context.Context, principal auth.Principal, groupID, userID int64, isGroupAdmin bool) error {
	if _, err := s.store.GetUserGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.policy.CheckUpsertUserGroupMembership(ctx, principal, groupID); err != nil {
		return err
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return s.store.UpsertUserGroupMembership(ctx, groupID, userID, isGroupAdmin)
}

func (s *userGroupService) DeleteMembership(ctx context.Context, principal auth.Principal, groupID, userID int64) error {
	if _, err := s.store.GetUserGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.policy.CheckUpsertUserGroupMembership(ctx, principal, groupID); err != nil {
		return err
	}
	return s.store.DeleteUserGroupMembership(ctx, groupID, userID)
}

func (s *userGroupService) GrantSourceAccess(ctx context.Context, sourceID string, groupID int64) error {
	if _, err := s.store.GetUserGroup(ctx, groupID); err != nil {
		return err
	}
	return s.store.GrantSourceIDReadAccess(ctx, sourceID, groupID)
}

func (s *userGroupService) RevokeSourceAccess(ctx context.Context, sourceID string, groupID int64) error {
	return s.store.RevokeSourceIDReadAccess(ctx, sourceID, groupID)
}

func (s *userGroupService) SourceAccessGroups(ctx context.Context, sourceID string) ([]int64, error) {
	return s.store.ListSourceIDAccessGroups(ctx, sourceID)
}
