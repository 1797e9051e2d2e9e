package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/config"
	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/repository"
	"github.com/gareci/bus-reservation/internal/utils"
)

// Users is the account store used by AuthHandler.
type Users interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg   config.Config
	Users Users
	Log   *logrus.Logger
}

func NewAuthHandler(cfg config.Config, u Users, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Log: log}
}

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`       // CUSTOMER | STAFF
	Invite   string `json:"staff_code"` // required for STAFF
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User   userPart  `json:"user"`
	Access tokenPart `json:"access"`
}

// Register creates an account and returns an access token for it.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = model.RoleCustomer
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") || len(req.Password) < 8 || len(req.Password) > 72 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email and password (8 to 72 chars) required"})
	}
	if role != model.RoleCustomer && role != model.RoleStaff {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be CUSTOMER or STAFF"})
	}
	if role == model.RoleStaff && !h.validInvite(req.Invite) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "staff accounts need a valid staff_code"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Users.Create(ctx, req.Email, req.Password, role, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		h.Log.WithError(err).Error("register failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return h.issue(c, http.StatusCreated, userPart{ID: id, Email: req.Email, Role: role})
}

// Login checks credentials and returns an access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		h.Log.WithError(err).Error("login lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.issue(c, http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	u, err := h.Users.GetByID(c.Request().Context(), who.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
}

// validInvite compares code with the configured staff invite code.  An
// empty configuration disables staff sign-up.
func (h *AuthHandler) validInvite(code string) bool {
	want := h.Cfg.StaffInviteCode
	return want != "" && subtle.ConstantTimeCompare([]byte(code), []byte(want)) == 1
}

func (h *AuthHandler) issue(c echo.Context, status int, u userPart) error {
	at, err := utils.NewAccessToken(h.Cfg.JWT.Secret, u.ID, u.Role, h.Cfg.JWT.AccessTTL)
	if err != nil {
		h.Log.WithError(err).Error("token issue failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token issue failed"})
	}
	return c.JSON(status, authResp{User: u, Access: tokenPart{Token: at.Token, Expires: at.Exp}})
}
