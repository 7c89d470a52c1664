package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

type UserUsecase struct {
	users     repo.UserRepository
	rtRepo    repo.RefreshTokenRepository
	auditRepo repo.AuditLogRepository
}

func NewUserUsecase(
	users repo.UserRepository,
	rtRepo repo.RefreshTokenRepository,
	auditRepo repo.AuditLogRepository,
) *UserUsecase {
	return &UserUsecase{users: users, rtRepo: rtRepo, auditRepo: auditRepo}
}

func (u *UserUsecase) GetProfile(ctx context.Context, userID int64) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if user == nil {
		return UserDTO{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	return toUserDTO(user), nil
}

type UpdateProfileInput struct {
	Name     string
	Email    string
	Password string // 空なら変更しない
}

func (u *UserUsecase) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if user == nil {
		return UserDTO{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		user.Name = name
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		user.Email = email
	}
	if in.Password != "" {
		if len(in.Password) < 8 {
			return UserDTO{}, NewHTTPError(http.StatusBadRequest, "invalid password")
		}
		pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		user.PasswordHash = string(pwHash)
	}

	if err := u.users.Update(ctx, user); err != nil {
		return UserDTO{}, NewHTTPError(http.StatusConflict, "email already used")
	}

	return toUserDTO(user), nil
}

type UserListOutput struct {
	Items []UserDTO `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

func (u *UserUsecase) ListUsers(ctx context.Context, page int, limit int) (UserListOutput, error) {
	if page < 1 {
		return UserListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return UserListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	users, total, err := u.users.List(ctx, page, limit)
	if err != nil {
		return UserListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	items := make([]UserDTO, 0, len(users))
	for i := range users {
		items = append(items, toUserDTO(&users[i]))
	}

	return UserListOutput{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (u *UserUsecase) GetUser(ctx context.Context, userID int64) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if user == nil {
		return UserDTO{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	return toUserDTO(user), nil
}

type AdminUpdateUserInput struct {
	Name     string
	Email    string
	Role     string
	IsActive *bool
}

// 管理者によるユーザー更新。
// ロール変更・停止時はtoken_versionを上げて発行済みaccess tokenを無効化する。
func (u *UserUsecase) UpdateUser(ctx context.Context, actorAdminUserID int64, userID int64, in AdminUpdateUserInput) (UserDTO, error) {
	if actorAdminUserID <= 0 {
		return UserDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if userID <= 0 {
		return UserDTO{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if user == nil {
		return UserDTO{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	before := *user
	invalidateTokens := false

	if name := strings.TrimSpace(in.Name); name != "" {
		user.Name = name
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		user.Email = email
	}
	if in.Role != "" {
		switch model.Role(in.Role) {
		case model.RoleUser, model.RoleAdmin:
			if user.Role != model.Role(in.Role) {
				invalidateTokens = true
			}
			user.Role = model.Role(in.Role)
		default:
			return UserDTO{}, NewHTTPError(http.StatusBadRequest, "invalid role")
		}
	}
	if in.IsActive != nil {
		if user.IsActive && !*in.IsActive {
			invalidateTokens = true
		}
		user.IsActive = *in.IsActive
	}

	if err := u.users.Update(ctx, user); err != nil {
		return UserDTO{}, NewHTTPError(http.StatusConflict, "email already used")
	}

	//失効に失敗したまま成功を返すと、停止したはずのユーザーが
	//トークン有効期限まで使い続けられる。ここは握りつぶさない。
	if invalidateTokens {
		if err := u.users.IncrementTokenVersion(ctx, userID); err != nil {
			return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := u.rtRepo.DeleteAllByUserID(ctx, userID); err != nil {
			return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
	}

	if err := u.auditUser(ctx, actorAdminUserID, model.AuditActionUpdateUser, userID, before, *user); err != nil {
		return UserDTO{}, err
	}

	return toUserDTO(user), nil
}

func (u *UserUsecase) DeleteUser(ctx context.Context, actorAdminUserID int64, userID int64) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if userID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	//自分自身は消せない
	if actorAdminUserID == userID {
		return NewHTTPError(http.StatusBadRequest, "cannot delete yourself")
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if user == nil {
		return NewHTTPError(http.StatusNotFound, "not found")
	}

	if err := u.users.Delete(ctx, userID); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	_ = u.rtRepo.DeleteAllByUserID(ctx, userID)

	return u.auditUser(ctx, actorAdminUserID, model.AuditActionDeleteUser, userID, *user, nil)
}

func (u *UserUsecase) auditUser(ctx context.Context, actorID int64, action model.AuditAction, resourceID int64, before any, after any) error {
	type redacted struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Role     string `json:"role"`
		IsActive bool   `json:"is_active"`
	}

	redact := func(v any) string {
		usr, ok := v.(model.User)
		if !ok {
			b, _ := json.Marshal(v)
			return string(b)
		}
		b, _ := json.Marshal(redacted{
			ID: usr.ID, Name: usr.Name, Email: usr.Email,
			Role: string(usr.Role), IsActive: usr.IsActive,
		})
		return string(b)
	}

	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: model.AuditResourceUser,
		ResourceID:   resourceID,
		BeforeJSON:   redact(before),
		AfterJSON:    redact(after),
		CreatedAt:    time.Now(),
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}
