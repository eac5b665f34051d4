package handler

import (
	"context"
	"net/http"

	"github.com/LazarusTes/auth-portal-express/internal/cqrs"
	"github.com/LazarusTes/auth-portal-express/internal/middleware"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/gin-gonic/gin"
)

// SignUpCommander is the write side of self-service registration.
type SignUpCommander interface {
	SignUp(context.Context, cqrs.SignUpCommand) (*models.ProfileView, error)
}

// AuthQuerier signs sessions in and out.
type AuthQuerier interface {
	Login(context.Context, cqrs.LoginCommand) (*models.SessionView, error)
	Logout(context.Context, cqrs.LogoutCommand) error
}

type AuthHandler struct {
	commands         SignUpCommander
	queries          AuthQuerier
	maxDocumentBytes int64
}

func NewAuthHandler(commands SignUpCommander, queries AuthQuerier, maxDocumentBytes int64) *AuthHandler {
	return &AuthHandler{commands: commands, queries: queries, maxDocumentBytes: maxDocumentBytes}
}

// SignUp registers a pending account. The body is JSON, or multipart when an
// identity document is attached as "document".
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if !bindForm(c, &req) {
		return
	}
	doc, err := readDocument(c, h.maxDocumentBytes)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	view, err := h.commands.SignUp(c.Request.Context(), cqrs.SignUpCommand{
		Details:  req.toModel(),
		Email:    req.Email,
		Password: req.Password,
		Document: doc,
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.queries.Login(c.Request.Context(), cqrs.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Logout revokes the bearer token the request was authenticated with.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.queries.Logout(c.Request.Context(), cqrs.LogoutCommand{Token: middleware.GetToken(c)}); err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
