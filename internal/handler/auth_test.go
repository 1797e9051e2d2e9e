package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gareci/bus-reservation/internal/config"
	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/repository"
	"github.com/gareci/bus-reservation/internal/utils"
)

type fakeUsers struct {
	byEmail map[string]*model.User
	created []string
	err     error
}

func (f *fakeUsers) Create(_ context.Context, email, _, role string, _ int) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if _, ok := f.byEmail[email]; ok {
		return 0, repository.ErrEmailExists
	}
	f.created = append(f.created, role)
	return uint64(100 + len(f.created)), nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newAuth(t *testing.T, users *fakeUsers) *AuthHandler {
	t.Helper()
	cfg := config.Config{
		JWT:             config.JWTConfig{Secret: testSecret, AccessTTL: 15 * time.Minute},
		BcryptCost:      4,
		StaffInviteCode: "depot-2026",
	}
	return NewAuthHandler(cfg, users, nullLogger())
}

func TestRegister(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*model.User{"taken@example.ci": {ID: 1}}}
	h := newAuth(t, users)
	post := func(body string) (int, map[string]any) {
		w := do(t, http.MethodPost, "/v1/auth/register", "/v1/auth/register", h.Register, 0, "", body)
		var got map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &got)
		return w.Code, got
	}

	code, body := post(`{"email":" Awa@Example.CI ","password":"long-enough"}`)
	require.Equal(t, http.StatusCreated, code)
	user := body["user"].(map[string]any)
	assert.Equal(t, "awa@example.ci", user["email"])
	assert.Equal(t, model.RoleCustomer, user["role"])
	access := body["access"].(map[string]any)
	claims, err := utils.ParseAccessToken(testSecret, access["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, model.RoleCustomer, claims.Role)

	code, _ = post(`{"email":"ops@gareci.ci","password":"long-enough","role":"staff","staff_code":"depot-2026"}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, []string{model.RoleCustomer, model.RoleStaff}, users.created)

	code, _ = post(`{"email":"mallory@example.ci","password":"long-enough","role":"STAFF","staff_code":"guess"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = post(`{"email":"taken@example.ci","password":"long-enough"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = post(`{"email":"short@example.ci","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = post(`{"email":"root@example.ci","password":"long-enough","role":"ADMIN"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	users.err = errors.New("db down")
	code, _ = post(`{"email":"later@example.ci","password":"long-enough"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestRegister_StaffDisabledWithoutInviteCode(t *testing.T) {
	h := newAuth(t, &fakeUsers{byEmail: map[string]*model.User{}})
	h.Cfg.StaffInviteCode = ""

	w := do(t, http.MethodPost, "/v1/auth/register", "/v1/auth/register", h.Register, 0, "",
		`{"email":"ops@gareci.ci","password":"long-enough","role":"STAFF","staff_code":""}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginAndMe(t *testing.T) {
	hash, err := utils.HashPassword("long-enough", 4)
	require.NoError(t, err)
	users := &fakeUsers{byEmail: map[string]*model.User{
		"awa@example.ci":    {ID: 7, Email: "awa@example.ci", PasswordHash: hash, Role: model.RoleCustomer, IsActive: true},
		"retired@gareci.ci": {ID: 8, Email: "retired@gareci.ci", PasswordHash: hash, Role: model.RoleStaff},
	}}
	h := newAuth(t, users)
	login := func(body string) int {
		return do(t, http.MethodPost, "/v1/auth/login", "/v1/auth/login", h.Login, 0, "", body).Code
	}

	assert.Equal(t, http.StatusOK, login(`{"email":"awa@example.ci","password":"long-enough"}`))
	assert.Equal(t, http.StatusUnauthorized, login(`{"email":"awa@example.ci","password":"wrong-one"}`))
	assert.Equal(t, http.StatusUnauthorized, login(`{"email":"nobody@example.ci","password":"long-enough"}`))
	assert.Equal(t, http.StatusUnauthorized, login(`{"email":"retired@gareci.ci","password":"long-enough"}`), "inactive account")

	w := do(t, http.MethodGet, "/v1/me", "/v1/me", h.Me, 7, model.RoleCustomer, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7,"email":"awa@example.ci","role":"CUSTOMER"}`, w.Body.String())

	w = do(t, http.MethodGet, "/v1/me", "/v1/me", h.Me, 99, model.RoleCustomer, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	w := do(t, http.MethodGet, "/healthz", "/healthz", Health(pinger{}), 7, model.RoleCustomer, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, http.MethodGet, "/healthz", "/healthz", Health(pinger{err: errors.New("gone")}), 7, model.RoleCustomer, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }
