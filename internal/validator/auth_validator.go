package validator

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"storefront/internal/repository"
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")

	// emailが既に使用済み
	ErrEmailAlreadyUsed = errors.New("email already used")
)

type AuthValidator struct {
	users repository.UserRepository
}

func NewAuthValidator(users repository.UserRepository) *AuthValidator {
	return &AuthValidator{users: users}
}

// サインアップの入力を検証
func (v *AuthValidator) ValidateRegister(ctx context.Context, name string, email string, password string) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	// 必須チェック
	if name == "" || email == "" || password == "" {
		return ErrInvalidInput
	}
	if len(name) > 255 {
		return ErrInvalidInput
	}

	// email形式
	if !isEmailLike(email) {
		return ErrInvalidInput
	}

	// パスワード最低文字数（MVP: 8）
	if len(password) < 8 {
		return ErrInvalidInput
	}

	// email重複チェック（DBが必要）
	u, err := v.users.FindByEmail(ctx, email)
	if err == nil && u != nil {
		return ErrEmailAlreadyUsed
	}

	return nil
}

// ログインの入力を検証
func (v *AuthValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrInvalidInput
	}
	if !isEmailLike(email) {
		return ErrInvalidInput
	}
	return nil
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func isEmailLike(email string) bool {
	return emailRe.MatchString(email)
}
