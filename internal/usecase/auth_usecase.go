package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/validator"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// refreshtokenの有効期限
const refreshTokenTTL = 14 * 24 * time.Hour

// アクセストークンの発行。実装はmain側（JWT/HS256）。
type TokenIssuer interface {
	Issue(userID int64, name string, role model.Role, tokenVersion int, now time.Time) (token string, expiresAt time.Time, err error)
}

type UserDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type AuthUsecase struct {
	users     repository.UserRepository
	rtRepo    repository.RefreshTokenRepository
	issuer    TokenIssuer
	validator *validator.AuthValidator
}

func NewAuthUsecase(
	users repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
	issuer TokenIssuer,
	v *validator.AuthValidator,
) *AuthUsecase {
	return &AuthUsecase{
		users:     users,
		rtRepo:    rtRepo,
		issuer:    issuer,
		validator: v,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (UserDTO, error) {
	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, in.Name, in.Email, in.Password); err != nil {
		if errors.Is(err, validator.ErrEmailAlreadyUsed) {
			return UserDTO{}, NewHTTPError(http.StatusConflict, "email already used")
		}
		return UserDTO{}, NewHTTPError(http.StatusBadRequest, "invalid input")
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(pwHash),
		Role:         model.RoleUser,
		TokenVersion: 0,
		IsActive:     true,
	}

	//保存（email重複の競合はunique制約で弾かれる）
	if err := u.users.Create(ctx, user); err != nil {
		return UserDTO{}, NewHTTPError(http.StatusConflict, "email already used")
	}

	return toUserDTO(user), nil
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	User              UserDTO
	AccessToken       string
	AccessExpiresAt   time.Time
	RefreshTokenPlain string
	RefreshExpiresAt  time.Time
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if err := u.validator.ValidateLogin(ctx, in.Email, in.Password); err != nil {
		return LoginResult{}, NewHTTPError(http.StatusBadRequest, "invalid input")
	}

	//ユーザー取得
	user, err := u.users.FindByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil || user == nil {
		return LoginResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return LoginResult{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return LoginResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//last_login更新
	now := time.Now()
	user.LastLoginAt = &now
	_ = u.users.Update(ctx, user)

	//access token発行
	accessToken, accessExp, err := u.issuer.Issue(user.ID, user.Name, user.Role, user.TokenVersion, now)
	if err != nil {
		return LoginResult{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	//refresh token発行（DBにはhashだけ保存）
	refreshPlain, refreshHash, err := newRandomTokenAndHash()
	if err != nil {
		return LoginResult{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	refreshExp := now.Add(refreshTokenTTL)
	if err := u.rtRepo.Create(ctx, &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: refreshHash,
		ExpiresAt: refreshExp,
	}); err != nil {
		return LoginResult{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return LoginResult{
		User:              toUserDTO(user),
		AccessToken:       accessToken,
		AccessExpiresAt:   accessExp,
		RefreshTokenPlain: refreshPlain,
		RefreshExpiresAt:  refreshExp,
	}, nil
}

type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
}

// refresh tokenからaccess tokenを再発行する
func (u *AuthUsecase) Refresh(ctx context.Context, refreshPlain string) (RefreshResult, error) {
	if refreshPlain == "" {
		return RefreshResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshPlain))
	if err != nil || rt == nil {
		return RefreshResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	now := time.Now()
	if rt.RevokedAt != nil || now.After(rt.ExpiresAt) {
		return RefreshResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, rt.UserID)
	if err != nil || user == nil || !user.IsActive {
		return RefreshResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	accessToken, accessExp, err := u.issuer.Issue(user.ID, user.Name, user.Role, user.TokenVersion, now)
	if err != nil {
		return RefreshResult{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return RefreshResult{AccessToken: accessToken, AccessExpiresAt: accessExp}, nil
}

// ログアウト。refresh tokenを失効させる。
// トークンが見つからなくても成功で返す（既に消えていれば目的は達成済み）。
func (u *AuthUsecase) Logout(ctx context.Context, refreshPlain string) error {
	if refreshPlain == "" {
		return nil
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshPlain))
	if err != nil || rt == nil {
		return nil
	}

	_ = u.rtRepo.Revoke(ctx, rt.ID, time.Now())
	return nil
}

func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  string(u.Role),
	}
}

// ランダムなrefresh tokenと、その保存用ハッシュを作る
func newRandomTokenAndHash() (plain string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plain = base64.RawURLEncoding.EncodeToString(buf)
	return plain, hashToken(plain), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
