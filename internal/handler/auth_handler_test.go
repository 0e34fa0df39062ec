package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

type fakeAuthSvc struct {
	lastLogin  models.LoginRequest
	loggedOut  []string
	changedFor string
	loginErr   error
}

func (f *fakeAuthSvc) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastLogin = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeAuthSvc) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeAuthSvc) Logout(ctx context.Context, refreshToken string, userID string, meta models.LoginRequest) error {
	f.loggedOut = append(f.loggedOut, userID+":"+refreshToken)
	return nil
}

func (f *fakeAuthSvc) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	f.changedFor = userID
	return nil
}

func TestAuthHandlerLoginCapturesClientMeta(t *testing.T) {
	svc := &fakeAuthSvc{}
	h := NewAuthHandler(svc)

	c, w := newGinContext(http.MethodPost, "/auth/login", mustJSON(t, map[string]string{"email": "door@campamento.org", "password": "secret"}))
	c.Request.Header.Set("User-Agent", "scanner/1.0")
	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "door@campamento.org", svc.lastLogin.Email)
	assert.Equal(t, "scanner/1.0", svc.lastLogin.UserAgent)
	var res models.LoginResponse
	decodeData(t, w, &res)
	assert.Equal(t, "access", res.AccessToken)
}

func TestAuthHandlerLoginFailure(t *testing.T) {
	h := NewAuthHandler(&fakeAuthSvc{loginErr: appErrors.ErrInvalidCredentials})

	c, w := newGinContext(http.MethodPost, "/auth/login", mustJSON(t, map[string]string{"email": "door@campamento.org", "password": "bad"}))
	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogoutRequiresSession(t *testing.T) {
	svc := &fakeAuthSvc{}
	h := NewAuthHandler(svc)

	c, w := newGinContext(http.MethodPost, "/auth/logout", mustJSON(t, map[string]string{"refresh_token": "r1"}))
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, _ = newGinContext(http.MethodPost, "/auth/logout", mustJSON(t, map[string]string{"refresh_token": "r1"}))
	withClaims(c, committeeClaims)
	h.Logout(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, []string{"door-1:r1"}, svc.loggedOut)
}

func TestAuthHandlerChangePasswordAndMe(t *testing.T) {
	svc := &fakeAuthSvc{}
	h := NewAuthHandler(svc)

	c, _ := newGinContext(http.MethodPost, "/auth/change-password", mustJSON(t, models.ChangePasswordRequest{OldPassword: "a", NewPassword: "bbbbbb"}))
	withClaims(c, cashierClaims)
	h.ChangePassword(c)
	assert.Equal(t, "cashier-1", svc.changedFor)

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	withClaims(c, adminClaims)
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	var info models.UserInfo
	decodeData(t, w, &info)
	assert.Equal(t, "admin@campamento.org", info.Email)
	assert.Equal(t, models.RoleAdmin, info.Role)
}
