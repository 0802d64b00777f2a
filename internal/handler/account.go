package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/config"
	"github.com/iliyamo/disable-customer/internal/disablement"
	"github.com/iliyamo/disable-customer/internal/middleware"
	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository"
	"github.com/iliyamo/disable-customer/internal/utils"
)

// Impersonator starts admin login-as-customer sessions.
type Impersonator interface {
	IsEnabledForAccount(ctx context.Context, accountID uint64) (bool, error)
	Start(ctx context.Context, accountID, adminID uint64) error
}

// AccountHandler serves the account read/write endpoints of customers
// and administrators. Every save is followed by a disablement Record.
type AccountHandler struct {
	Cfg           config.Config
	Accounts      Accounts
	Sessions      Sessions
	Recorder      *disablement.Recorder
	Visibility    *disablement.Visibility
	Impersonation Impersonator
	Messages      disablement.Messenger
	Log           *zap.Logger
}

func NewAccountHandler(cfg config.Config, a Accounts, s Sessions, r *disablement.Recorder, v *disablement.Visibility, imp Impersonator, m disablement.Messenger, log *zap.Logger) *AccountHandler {
	return &AccountHandler{Cfg: cfg, Accounts: a, Sessions: s, Recorder: r, Visibility: v, Impersonation: imp, Messages: m, Log: log}
}

// maxMassDisable caps the ids of one mass-disable request.
const maxMassDisable = 500

type updateReq struct {
	Email            string           `json:"email"`
	CustomAttributes []attributeInput `json:"custom_attributes"`
}

type massDisableReq struct {
	IDs     []uint64 `json:"ids"`
	Message string   `json:"message"`
}

// Me returns the caller's own account.
func (h *AccountHandler) Me(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	a, err := h.Accounts.GetByID(ctx, middleware.AccountID(c))
	if handled, err := fail(c, h.Log, err, "load account failed"); handled {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"account": toView(a)})
}

// UpdateMe saves the caller's own account. Backend-only attributes sent
// by a customer keep their stored values.
func (h *AccountHandler) UpdateMe(c echo.Context) error {
	return h.update(c, middleware.AccountID(c))
}

// List returns a page of accounts. Query: limit (default 50, max 200),
// offset.
func (h *AccountHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	list, err := h.Accounts.List(ctx, limit, offset)
	if handled, err := fail(c, h.Log, err, "list accounts failed"); handled {
		return err
	}
	items := make([]accountView, 0, len(list))
	for _, a := range list {
		items = append(items, toView(a))
	}
	return respond(c, http.StatusOK, echo.Map{"items": items, "limit": limit, "offset": offset})
}

// Get returns one account by id or email.
func (h *AccountHandler) Get(c echo.Context) error {
	a, err := h.resolve(c)
	if handled, err := fail(c, h.Log, err, "load account failed"); handled {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"account": toView(a)})
}

// Update saves an account on behalf of an administrator or integration.
func (h *AccountHandler) Update(c echo.Context) error {
	a, err := h.resolve(c)
	if handled, err := fail(c, h.Log, err, "load account failed"); handled {
		return err
	}
	return h.update(c, a.ID)
}

// resolve loads the account named by the :ref path parameter. Short
// numeric refs are ids, anything else an email.
func (h *AccountHandler) resolve(c echo.Context) (model.Account, error) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	return h.Accounts.Get(ctx, model.ParseRef(c.Param("ref")))
}

func (h *AccountHandler) update(c echo.Context, id uint64) error {
	var req updateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	attrs, err := h.Visibility.ProtectWrite(ctx, middleware.IsPrivileged(c), id, toAttributes(req.CustomAttributes))
	if handled, err := fail(c, h.Log, err, "save account failed"); handled {
		return err
	}
	a, err := h.save(ctx, id, normEmail(req.Email), attrs)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	}
	if handled, err := fail(c, h.Log, err, "save account failed"); handled {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"account": toView(a)})
}

// MassDisable disables every listed account. Per-account token notices
// are suppressed; one summary message is reported instead. Each account
// gets its own timeout.
func (h *AccountHandler) MassDisable(c echo.Context) error {
	var req massDisableReq
	if err := c.Bind(&req); err != nil || len(req.IDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ids required"})
	}
	if len(req.IDs) > maxMassDisable {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": fmt.Sprintf("at most %d ids per request", maxMassDisable)})
	}

	ctx := c.Request().Context()
	batch := disablement.WithBatch(ctx)

	attrs := []model.CustomAttribute{{Code: disablement.AttrIsDisabled, Value: disablement.FlagValue(true)}}
	if msg := strings.TrimSpace(req.Message); msg != "" {
		attrs = append(attrs, model.CustomAttribute{Code: disablement.AttrDisabledMessage, Value: &msg})
	}

	disabled := []uint64{}
	failed := map[string]string{}
	for _, id := range req.IDs {
		if err := h.disableOne(batch, id, attrs); err != nil {
			h.Log.Warn("mass disable: account skipped", zap.Uint64("account_id", id), zap.Error(err))
			failed[strconv.FormatUint(id, 10)] = err.Error()
			continue
		}
		disabled = append(disabled, id)
	}
	if len(disabled) > 0 {
		h.Messages.AddSuccess(ctx, fmt.Sprintf("A total of %d record(s) were disabled.", len(disabled)))
	}
	return respond(c, http.StatusOK, echo.Map{"disabled": disabled, "failed": failed})
}

func (h *AccountHandler) disableOne(ctx context.Context, id uint64, attrs []model.CustomAttribute) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	_, err := h.save(ctx, id, "", attrs)
	return err
}

// Impersonate opens a login-as-customer session for the calling
// administrator. The customer must allow remote assistance.
func (h *AccountHandler) Impersonate(c echo.Context) error {
	a, err := h.resolve(c)
	if handled, err := fail(c, h.Log, err, "load account failed"); handled {
		return err
	}
	id, adminID := a.ID, middleware.AccountID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	allowed, err := h.Impersonation.IsEnabledForAccount(ctx, id)
	if handled, err := fail(c, h.Log, err, "impersonation failed"); handled {
		return err
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "remote assistance not allowed"})
	}

	sess, err := h.Sessions.CreateImpersonation(ctx, id, adminID)
	if handled, err := fail(c, h.Log, err, "open session failed"); handled {
		return err
	}
	if err := h.Impersonation.Start(ctx, id, adminID); err != nil {
		_ = h.Sessions.Destroy(ctx, sess.ID)
		h.Log.Error("impersonation start failed", zap.Uint64("account_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "impersonation failed"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, a.ID, a.Role, sess.ID, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	h.Log.Info("impersonation started", zap.Uint64("account_id", id), zap.Uint64("admin_id", adminID))
	return respond(c, http.StatusOK, echo.Map{
		"user":   userPart{ID: a.ID, Email: a.Email, Role: a.Role},
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// save merges email and attrs into the stored account, commits it and
// records the disablement transition.
func (h *AccountHandler) save(ctx context.Context, id uint64, email string, attrs []model.CustomAttribute) (model.Account, error) {
	before, err := h.Accounts.GetByID(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	after := before
	after.Attributes = append([]model.CustomAttribute(nil), before.Attributes...)
	if email != "" {
		after.Email = email
	}
	for _, attr := range attrs {
		after.SetAttribute(attr.Code, attr.Value)
	}
	if err := h.Accounts.Save(ctx, after); err != nil {
		return model.Account{}, err
	}
	if err := h.Recorder.Record(ctx, disablement.TransitionOf(before, after)); err != nil {
		return model.Account{}, err
	}
	return h.Accounts.GetByID(ctx, id)
}
