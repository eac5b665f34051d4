package handler

import (
	"net/http"

	"github.com/LazarusTes/auth-portal-express/internal/cqrs"
	"github.com/LazarusTes/auth-portal-express/internal/middleware"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AdminHandler serves /v1/admin. The services check the admin role; the
// handler only shapes requests.
type AdminHandler struct {
	commands         AccountCommander
	queries          AccountQuerier
	maxDocumentBytes int64
}

func NewAdminHandler(commands AccountCommander, queries AccountQuerier, maxDocumentBytes int64) *AdminHandler {
	return &AdminHandler{commands: commands, queries: queries, maxDocumentBytes: maxDocumentBytes}
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req AdminCreateUserRequest
	if !bindForm(c, &req) {
		return
	}
	doc, err := readDocument(c, h.maxDocumentBytes)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	view, err := h.commands.AdminCreateUser(c.Request.Context(), cqrs.AdminCreateUserCommand{
		ActorID:  actorID,
		Details:  req.toModel(),
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
		Document: doc,
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *AdminHandler) ListProfiles(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	views, err := h.queries.ListProfiles(c.Request.Context(), cqrs.ListProfilesQuery{ActorID: actorID})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListProfilesResponse{Profiles: views})
}

func (h *AdminHandler) Decide(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req DecisionRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.commands.Decide(c.Request.Context(), cqrs.DecideCommand{
		ActorID:   actorID,
		AccountID: c.Param("id"),
		Decision:  models.Decision(req.Decision),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// AdjustBalance credits or debits any approved account without limits.
func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req AdjustBalanceRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.commands.AdjustBalance(c.Request.Context(), cqrs.AdjustBalanceCommand{
		ActorID:        actorID,
		AccountID:      c.Param("id"),
		Amount:         decimal.RequireFromString(req.Amount),
		Direction:      models.Direction(req.Direction),
		Actor:          models.ActorAdmin,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	respondWithEntry(c, res)
}

func (h *AdminHandler) SetLimits(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req SetLimitsRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.commands.SetLimits(c.Request.Context(), cqrs.SetLimitsCommand{
		ActorID:   actorID,
		AccountID: c.Param("id"),
		Limits:    req.toModel(),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AdminHandler) AssignRole(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req AssignRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.commands.AssignRole(c.Request.Context(), cqrs.AssignRoleCommand{
		ActorID:   actorID,
		AccountID: c.Param("id"),
		Role:      models.Role(req.Role),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
