package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"storefront/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func activeUser(id int64) *model.User {
	return &model.User{
		ID:       id,
		Name:     "taro",
		Email:    "taro@example.com",
		Role:     model.RoleUser,
		IsActive: true,
	}
}

func TestAdminUpdateUser_DeactivationInvalidatesTokens(t *testing.T) {
	users := &userRepoMock{}
	rt := &refreshTokenRepoMock{}
	audit := &auditLogRepoMock{}

	users.On("FindByID", mock.Anything, int64(2)).Return(activeUser(2), nil)
	users.On("Update", mock.Anything, mock.Anything).Return(nil)
	users.On("IncrementTokenVersion", mock.Anything, int64(2)).Return(nil)
	rt.On("DeleteAllByUserID", mock.Anything, int64(2)).Return(nil)
	audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	uc := NewUserUsecase(users, rt, audit)

	inactive := false
	_, err := uc.UpdateUser(context.Background(), 1, 2, AdminUpdateUserInput{IsActive: &inactive})
	assert.NoError(t, err)
	users.AssertCalled(t, "IncrementTokenVersion", mock.Anything, int64(2))
	rt.AssertCalled(t, "DeleteAllByUserID", mock.Anything, int64(2))
}

// 失効が失敗したのに200を返すと停止したユーザーがトークンを使い続けられる
func TestAdminUpdateUser_FailedInvalidationSurfaces(t *testing.T) {
	users := &userRepoMock{}
	rt := &refreshTokenRepoMock{}
	audit := &auditLogRepoMock{}

	users.On("FindByID", mock.Anything, int64(2)).Return(activeUser(2), nil)
	users.On("Update", mock.Anything, mock.Anything).Return(nil)
	users.On("IncrementTokenVersion", mock.Anything, int64(2)).Return(errors.New("connection refused"))

	uc := NewUserUsecase(users, rt, audit)

	inactive := false
	_, err := uc.UpdateUser(context.Background(), 1, 2, AdminUpdateUserInput{IsActive: &inactive})
	assertHTTPStatus(t, err, http.StatusInternalServerError)
	rt.AssertNotCalled(t, "DeleteAllByUserID", mock.Anything, mock.Anything)
	audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminUpdateUser_NameChangeKeepsTokens(t *testing.T) {
	users := &userRepoMock{}
	rt := &refreshTokenRepoMock{}
	audit := &auditLogRepoMock{}

	users.On("FindByID", mock.Anything, int64(2)).Return(activeUser(2), nil)
	users.On("Update", mock.Anything, mock.Anything).Return(nil)
	audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	uc := NewUserUsecase(users, rt, audit)

	_, err := uc.UpdateUser(context.Background(), 1, 2, AdminUpdateUserInput{Name: "jiro"})
	assert.NoError(t, err)
	users.AssertNotCalled(t, "IncrementTokenVersion", mock.Anything, mock.Anything)
	rt.AssertNotCalled(t, "DeleteAllByUserID", mock.Anything, mock.Anything)
}

func TestAdminDeleteUser_SelfDeleteRejected(t *testing.T) {
	uc := NewUserUsecase(&userRepoMock{}, &refreshTokenRepoMock{}, &auditLogRepoMock{})

	err := uc.DeleteUser(context.Background(), 1, 1)
	assertHTTPStatus(t, err, http.StatusBadRequest)
}
