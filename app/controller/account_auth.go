package controller

import (
	"errors"
	"net/http"
	"strconv"

	httpdto "github.com/vibast-solutions/ms-go-menu-auth/app/dto/http"
	"github.com/vibast-solutions/ms-go-menu-auth/app/entity"
	"github.com/vibast-solutions/ms-go-menu-auth/app/middleware"
	"github.com/vibast-solutions/ms-go-menu-auth/app/service"
	"github.com/vibast-solutions/ms-go-menu-auth/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	msgForgotPassword     = "if the email is registered, a password reset link has been sent"
	msgResendVerification = "if the email is registered, a verification link has been sent"
)

type AccountAuthController struct {
	credentials service.CredentialService
}

func NewAccountAuthController(credentials service.CredentialService) *AccountAuthController {
	return &AccountAuthController{credentials: credentials}
}

func (c *AccountAuthController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Register validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithFields(logrus.Fields{
		"email": req.Email,
		"role":  req.Role,
	}).Info("Register request received")
	view, err := c.credentials.Register(ctx.Request().Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateEmail):
			logrus.WithField("email", req.Email).Warn("Register failed: email already in use")
			return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "email already in use"})
		case errors.Is(err, service.ErrInvalidRole):
			logrus.WithField("role", req.Role).Warn("Register failed: invalid role")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid role"})
		case errors.Is(err, service.ErrWeakPassword):
			logrus.WithField("email", req.Email).Warn("Register failed: weak password")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Register failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"account_id": view.ID,
		"kind":       view.Kind,
	}).Info("Account registered")

	return ctx.JSON(http.StatusCreated, httpdto.RegisterResponse{
		Account: view,
		Message: "account created, check your email to verify it",
	})
}

func (c *AccountAuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.credentials.Authenticate(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			logrus.WithField("email", req.Email).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid credentials"})
		}
		if errors.Is(err, service.ErrEmailNotVerified) {
			logrus.WithField("email", req.Email).Warn("Login failed: email not verified")
			return ctx.JSON(http.StatusForbidden, httpdto.ErrorResponse{Error: "email not verified"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"account_id": result.Account.ID,
		"kind":       result.Account.Kind,
	}).Info("Login successful")
	return ctx.JSON(http.StatusOK, result)
}

func (c *AccountAuthController) VerifyEmail(ctx echo.Context) error {
	req, err := types.NewVerifyEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind verify email request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	ok, err := c.credentials.VerifyEmail(ctx.Request().Context(), req.Token)
	if err != nil {
		logrus.WithError(err).Error("Verify email failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}
	if !ok {
		logrus.Debug("Verify email failed: unknown token")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid or expired token"})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "email verified"})
}

func (c *AccountAuthController) ForgotPassword(ctx echo.Context) error {
	req, err := types.NewForgotPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind forgot password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	ok, err := c.credentials.ForgotPassword(ctx.Request().Context(), req.Email)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("Forgot password failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	// Same response either way so callers cannot probe for accounts.
	logrus.WithFields(logrus.Fields{
		"email":   req.Email,
		"matched": ok,
	}).Info("Forgot password request handled")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: msgForgotPassword})
}

func (c *AccountAuthController) ResetPassword(ctx echo.Context) error {
	req, err := types.NewResetPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind reset password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	ok, err := c.credentials.ResetPassword(ctx.Request().Context(), req.Token, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrWeakPassword) {
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).Error("Reset password failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}
	if !ok {
		logrus.Debug("Reset password failed: invalid or expired token")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid or expired token"})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password has been reset"})
}

func (c *AccountAuthController) ResendVerification(ctx echo.Context) error {
	req, err := types.NewResendVerificationRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind resend verification request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	if _, err = c.credentials.ResendVerification(ctx.Request().Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrAlreadyVerified) {
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "account is already verified"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Resend verification failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: msgResendVerification})
}

// Me returns the account behind the bearer token.
func (c *AccountAuthController) Me(ctx echo.Context) error {
	accountID, ok := ctx.Get(middleware.ContextAccountID).(uint64)
	if !ok {
		logrus.Warn("Me failed: missing account_id in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}
	kind, _ := ctx.Get(middleware.ContextKind).(entity.AccountKind)

	return c.writeAccount(ctx, kind, accountID)
}

func (c *AccountAuthController) GetAccount(ctx echo.Context) error {
	kind := entity.AccountKind(ctx.Param("kind"))
	if kind != entity.KindUser && kind != entity.KindCustomer {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "kind must be user or customer"})
	}

	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid id"})
	}

	return c.writeAccount(ctx, kind, id)
}

func (c *AccountAuthController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, httpdto.HealthResponse{Status: "ok"})
}

func (c *AccountAuthController) writeAccount(ctx echo.Context, kind entity.AccountKind, id uint64) error {
	view, err := c.credentials.GetAccount(ctx.Request().Context(), kind, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "account not found"})
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"account_id": id,
			"kind":       kind,
		}).Error("Get account failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.AccountResponse{Account: view})
}
