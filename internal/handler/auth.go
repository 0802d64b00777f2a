package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/config"
	"github.com/iliyamo/disable-customer/internal/disablement"
	"github.com/iliyamo/disable-customer/internal/middleware"
	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository"
	"github.com/iliyamo/disable-customer/internal/session"
	"github.com/iliyamo/disable-customer/internal/utils"
)

// AuthHandler bundles dependencies for the public account endpoints.
// Every entry point that can let a disabled account in goes through Gate.
type AuthHandler struct {
	Cfg           config.Config
	Accounts      Accounts
	Tokens        Tokens
	Resets        ResetTokens
	Sessions      Sessions
	Impersonation ImpersonationEnder
	Gate          *disablement.Gate
	Visibility    *disablement.Visibility
	Log           *zap.Logger
}

// ImpersonationEnder closes a login-as-customer registration.
type ImpersonationEnder interface {
	End(ctx context.Context, accountID, adminID uint64) error
}

func NewAuthHandler(cfg config.Config, a Accounts, t Tokens, r ResetTokens, s Sessions, imp ImpersonationEnder, g *disablement.Gate, v *disablement.Visibility, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Accounts: a, Tokens: t, Resets: r, Sessions: s, Impersonation: imp, Gate: g, Visibility: v, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email            string           `json:"email"`
	Password         string           `json:"password"`
	CustomAttributes []attributeInput `json:"custom_attributes"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type activateReq struct {
	Email string `json:"email"`
	Key   string `json:"key"`
}
type emailReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	AccountID uint64 `json:"account_id"`
	Token     string `json:"token"`
	Password  string `json:"password"`
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
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register creates an unconfirmed customer. Backend-only attributes in
// the payload are reset to their defaults.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = normEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	attrs, err := h.Visibility.ProtectWrite(ctx, false, 0, toAttributes(req.CustomAttributes))
	if handled, err := fail(c, h.Log, err, "create account failed"); handled {
		return err
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed"})
	}
	key, err := utils.NewConfirmationKey()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue confirmation failed"})
	}

	a := model.Account{Email: req.Email, PasswordHash: hash, Role: model.RoleCustomer, Confirmation: key, Attributes: attrs}
	id, err := h.Accounts.Create(ctx, a)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	}
	if handled, err := fail(c, h.Log, err, "create account failed"); handled {
		return err
	}
	a.ID = id
	h.Log.Debug("confirmation key issued", zap.Uint64("account_id", id), zap.String("key", key))
	return respond(c, http.StatusCreated, echo.Map{"account": toView(a)})
}

// Login verifies credentials, runs the disablement gate and opens a
// session bound to the issued access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = normEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	a, err := h.Accounts.Get(ctx, model.RefEmail(req.Email))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if handled, err := fail(c, h.Log, err, "query failed"); handled {
		return err
	}
	if !utils.VerifyPassword(a.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !a.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account not confirmed"})
	}
	if handled, err := fail(c, h.Log, h.Gate.Authenticate(ctx, a), "login failed"); handled {
		return err
	}
	return h.issue(ctx, c, a, http.StatusOK)
}

// Refresh rotates a refresh token. A disabled account cannot refresh.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashToken(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	accountID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if handled, err := fail(c, h.Log, h.Gate.Check(ctx, disablement.OpAuthenticate, model.RefID(accountID)), "refresh failed"); handled {
		return err
	}
	_ = h.Tokens.RevokeByHash(ctx, hash)

	a, err := h.Accounts.GetByID(ctx, accountID)
	if handled, err := fail(c, h.Log, err, "load account failed"); handled {
		return err
	}
	return h.issue(ctx, c, a, http.StatusOK)
}

// Logout ends the current session and, when given, revokes one refresh
// token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if sid, _ := c.Get(middleware.KeySessionID).(string); sid != "" {
		h.endImpersonation(ctx, sid)
		if err := h.Sessions.Destroy(ctx, sid); err != nil {
			h.Log.Error("session destroy failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	}
	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		if err := h.Tokens.RevokeByHash(ctx, utils.HashToken(raw)); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// endImpersonation drops the registry entry of a login-as-customer
// session so the disablement bypass ends with it.
func (h *AuthHandler) endImpersonation(ctx context.Context, sid string) {
	sess, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			h.Log.Warn("logout: session load failed", zap.Error(err))
		}
		return
	}
	adminID := sess.ImpersonatingAdminID()
	if adminID == 0 || h.Impersonation == nil {
		return
	}
	if err := h.Impersonation.End(ctx, sess.AccountID(), adminID); err != nil {
		h.Log.Warn("impersonation end failed", zap.Uint64("account_id", sess.AccountID()), zap.Uint64("admin_id", adminID), zap.Error(err))
		return
	}
	h.Log.Info("impersonation ended", zap.Uint64("account_id", sess.AccountID()), zap.Uint64("admin_id", adminID))
}

// Activate confirms an account by email and confirmation key.
func (h *AuthHandler) Activate(c echo.Context) error {
	var req activateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = normEmail(req.Email)
	if req.Email == "" || req.Key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/key required"})
	}
	return h.activate(c, disablement.OpActivate, model.RefEmail(req.Email), req.Key)
}

// ActivateByID confirms an account by id and confirmation key.
func (h *AuthHandler) ActivateByID(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req activateReq
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "key required"})
	}
	return h.activate(c, disablement.OpActivateByID, model.RefID(id), req.Key)
}

func (h *AuthHandler) activate(c echo.Context, op disablement.Operation, ref model.Ref, key string) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if handled, err := fail(c, h.Log, h.Gate.Check(ctx, op, ref), "activation failed"); handled {
		return err
	}
	a, err := h.Accounts.Get(ctx, ref)
	if handled, err := fail(c, h.Log, err, "activation failed"); handled {
		return err
	}
	if a.IsActive {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "account already active"})
	}
	if a.Confirmation != key {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid confirmation key"})
	}
	if err := h.Accounts.Activate(ctx, a.ID); err != nil {
		h.Log.Error("activate failed", zap.Uint64("account_id", a.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "activation failed"})
	}
	return respond(c, http.StatusOK, echo.Map{"status": "activated"})
}

// ResendConfirmation issues a new confirmation key for an unconfirmed
// account.
func (h *AuthHandler) ResendConfirmation(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || normEmail(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	ref := model.RefEmail(req.Email)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if handled, err := fail(c, h.Log, h.Gate.Check(ctx, disablement.OpResendConfirmation, ref), "resend failed"); handled {
		return err
	}
	a, err := h.Accounts.Get(ctx, ref)
	if handled, err := fail(c, h.Log, err, "resend failed"); handled {
		return err
	}
	if a.IsActive {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "account already active"})
	}
	key, err := utils.NewConfirmationKey()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue confirmation failed"})
	}
	if err := h.Accounts.SetConfirmation(ctx, a.ID, key); err != nil {
		h.Log.Error("store confirmation failed", zap.Uint64("account_id", a.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "resend failed"})
	}
	h.Log.Debug("confirmation key issued", zap.Uint64("account_id", a.ID), zap.String("key", key))
	return respond(c, http.StatusOK, echo.Map{"status": "confirmation sent"})
}

// ForgotPassword starts a password reset. Unknown emails get the same
// answer as known ones.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || normEmail(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	ref := model.RefEmail(req.Email)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if handled, err := fail(c, h.Log, h.Gate.Check(ctx, disablement.OpInitiatePasswordReset, ref), "reset failed"); handled {
		return err
	}
	a, err := h.Accounts.Get(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return respond(c, http.StatusOK, echo.Map{"status": "reset link sent"})
	}
	if handled, err := fail(c, h.Log, err, "reset failed"); handled {
		return err
	}
	raw, err := utils.RandomHex(32)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue reset token failed"})
	}
	exp := time.Now().UTC().Add(time.Duration(h.Cfg.ResetTTLMin) * time.Minute)
	if err := h.Resets.Store(ctx, a.ID, utils.HashToken(raw), exp); err != nil {
		h.Log.Error("store reset token failed", zap.Uint64("account_id", a.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	h.Log.Debug("reset token issued", zap.Uint64("account_id", a.ID), zap.String("token", raw))
	return respond(c, http.StatusOK, echo.Map{"status": "reset link sent"})
}

// ValidateResetToken checks a reset link before the new password form is
// shown.
func (h *AuthHandler) ValidateResetToken(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	token := strings.TrimSpace(c.QueryParam("token"))
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if handled, err := fail(c, h.Log, h.Gate.Check(ctx, disablement.OpValidateResetToken, model.RefID(id)), "validate failed"); handled {
		return err
	}
	if err := h.Resets.Validate(ctx, id, utils.HashToken(token)); err != nil {
		return h.resetTokenError(c, err)
	}
	return respond(c, http.StatusOK, echo.Map{"valid": true})
}

// ResetPassword sets a new password from a reset link and revokes every
// refresh token of the account.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.AccountID == 0 || req.Token == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "account_id/token/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if handled, err := fail(c, h.Log, h.Gate.Check(ctx, disablement.OpResetPassword, model.RefID(req.AccountID)), "reset failed"); handled {
		return err
	}
	if err := h.Resets.Validate(ctx, req.AccountID, utils.HashToken(req.Token)); err != nil {
		return h.resetTokenError(c, err)
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed"})
	}
	if handled, err := fail(c, h.Log, h.Accounts.SetPassword(ctx, req.AccountID, hash), "reset failed"); handled {
		return err
	}
	if err := h.Resets.Consume(ctx, req.AccountID); err != nil {
		h.Log.Warn("consume reset token failed", zap.Uint64("account_id", req.AccountID), zap.Error(err))
	}
	if err := h.Tokens.RevokeAll(ctx, req.AccountID); err != nil {
		h.Log.Warn("revoke refresh tokens failed", zap.Uint64("account_id", req.AccountID), zap.Error(err))
	}
	return respond(c, http.StatusOK, echo.Map{"status": "password updated"})
}

func (h *AuthHandler) resetTokenError(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset token"})
	}
	h.Log.Error("validate reset token failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validate failed"})
}

// issue opens a session and returns a fresh token pair for a.
func (h *AuthHandler) issue(ctx context.Context, c echo.Context, a model.Account, status int) error {
	sess, err := h.Sessions.Create(ctx, a.ID)
	if err != nil {
		h.Log.Error("open session failed", zap.Uint64("account_id", a.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "open session failed"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, a.ID, a.Role, sess.ID, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	if err := h.Tokens.StoreRefresh(ctx, a.ID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}
	return c.JSON(status, authResp{
		User:    userPart{ID: a.ID, Email: a.Email, Role: a.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}
