package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/disablement"
	"github.com/iliyamo/disable-customer/internal/flash"
	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository"
	"github.com/iliyamo/disable-customer/internal/session"
)

// Accounts is the account persistence used by handlers.
type Accounts interface {
	Get(ctx context.Context, ref model.Ref) (model.Account, error)
	GetByID(ctx context.Context, id uint64) (model.Account, error)
	List(ctx context.Context, limit, offset int) ([]model.Account, error)
	Create(ctx context.Context, a model.Account) (uint64, error)
	Save(ctx context.Context, a model.Account) error
	Activate(ctx context.Context, id uint64) error
	SetConfirmation(ctx context.Context, id uint64, key string) error
	SetPassword(ctx context.Context, id uint64, hash string) error
}

// Tokens persists API refresh tokens.
type Tokens interface {
	StoreRefresh(ctx context.Context, accountID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAll(ctx context.Context, accountID uint64) error
}

// ResetTokens persists password-reset link tokens.
type ResetTokens interface {
	Store(ctx context.Context, accountID uint64, tokenHash string, exp time.Time) error
	Validate(ctx context.Context, accountID uint64, tokenHash string) error
	Consume(ctx context.Context, accountID uint64) error
}

// Sessions opens and closes server-side sessions.
type Sessions interface {
	Create(ctx context.Context, accountID uint64) (*session.Session, error)
	CreateImpersonation(ctx context.Context, accountID, adminID uint64) (*session.Session, error)
	Load(ctx context.Context, id string) (*session.Session, error)
	Destroy(ctx context.Context, id string) error
}

const dbTimeout = 5 * time.Second

type attributeView struct {
	Code  string `json:"attribute_code"`
	Value any    `json:"value"`
}

type accountView struct {
	ID               uint64          `json:"id"`
	Email            string          `json:"email"`
	Role             string          `json:"role"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	CustomAttributes []attributeView `json:"custom_attributes"`
}

func toView(a model.Account) accountView {
	v := accountView{
		ID:               a.ID,
		Email:            a.Email,
		Role:             a.Role,
		IsActive:         a.IsActive,
		CreatedAt:        a.CreatedAt,
		CustomAttributes: make([]attributeView, 0, len(a.Attributes)),
	}
	for _, attr := range a.Attributes {
		v.CustomAttributes = append(v.CustomAttributes, attributeView{
			Code:  attr.Code,
			Value: disablement.TypedValue(attr.Code, attr.Value),
		})
	}
	return v
}

// attributeInput accepts string, number, boolean or null values.
type attributeInput struct {
	Code  string `json:"attribute_code"`
	Value any    `json:"value"`
}

// toAttributes converts request attributes. disabled_at is owned by the
// recorder and never accepted from a caller, privileged or not.
func toAttributes(in []attributeInput) []model.CustomAttribute {
	out := make([]model.CustomAttribute, 0, len(in))
	for _, a := range in {
		if a.Code == "" || a.Code == disablement.AttrDisabledAt {
			continue
		}
		out = append(out, model.CustomAttribute{Code: a.Code, Value: stringValue(a.Value)})
	}
	return out
}

func stringValue(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case bool:
		return disablement.FlagValue(t)
	case float64:
		return model.StrPtr(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return nil
	}
}

// respond writes body plus any collected flash messages.
func respond(c echo.Context, status int, body echo.Map) error {
	if bag := flash.FromContext(c.Request().Context()); bag != nil {
		if msgs := bag.Messages(); len(msgs) > 0 {
			body["messages"] = msgs
		}
	}
	return c.JSON(status, body)
}

// rejectionStatus maps a gate rejection kind to an HTTP status.
func rejectionStatus(k disablement.Kind) int {
	switch k {
	case disablement.KindInput:
		return http.StatusBadRequest
	case disablement.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

// fail translates core and repository errors. It returns false when err
// is nil.
func fail(c echo.Context, log *zap.Logger, err error, fallback string) (bool, error) {
	if err == nil {
		return false, nil
	}
	var rej *disablement.RejectedError
	switch {
	case errors.As(err, &rej):
		return true, respond(c, rejectionStatus(rej.Kind), echo.Map{"error": rej.Message})
	case errors.Is(err, disablement.ErrInvariant):
		log.Error("disablement invariant violated", zap.Error(err))
		return true, respond(c, http.StatusInternalServerError, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return true, c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	default:
		log.Error(fallback, zap.Error(err))
		return true, c.JSON(http.StatusInternalServerError, echo.Map{"error": fallback})
	}
}

// paramID parses a numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
