package handler

import (
	"context"
	"net/http"

	"github.com/LazarusTes/auth-portal-express/internal/cqrs"
	"github.com/LazarusTes/auth-portal-express/internal/ledger"
	"github.com/LazarusTes/auth-portal-express/internal/middleware"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AccountCommander defines the write-side operations used by the account and
// admin handlers.
type AccountCommander interface {
	AdminCreateUser(context.Context, cqrs.AdminCreateUserCommand) (*models.ProfileView, error)
	Decide(context.Context, cqrs.DecideCommand) (*models.ProfileView, error)
	AdjustBalance(context.Context, cqrs.AdjustBalanceCommand) (*ledger.Result, error)
	SetLimits(context.Context, cqrs.SetLimitsCommand) (*models.ProfileView, error)
	AssignRole(context.Context, cqrs.AssignRoleCommand) (*models.ProfileView, error)
	UpdateProfile(context.Context, cqrs.UpdateProfileCommand) (*models.ProfileView, error)
	UploadDocument(context.Context, cqrs.UploadDocumentCommand) (*models.ProfileView, error)
}

// AccountQuerier defines the read-side operations used by the account and
// admin handlers.
type AccountQuerier interface {
	ListProfiles(context.Context, cqrs.ListProfilesQuery) ([]models.ProfileView, error)
	GetProfile(context.Context, cqrs.GetProfileQuery) (*models.ProfileView, error)
	ListLedgerEntries(context.Context, cqrs.ListLedgerEntriesQuery) ([]models.LedgerEntry, error)
	GetLimitUsage(context.Context, cqrs.GetLimitUsageQuery) (*models.LimitUsageView, error)
}

// AccountHandler serves the signed-in user's own account under /v1/me. The
// read and edit endpoints are shared with AdminHandler through targetID.
type AccountHandler struct {
	commands         AccountCommander
	queries          AccountQuerier
	maxDocumentBytes int64
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier, maxDocumentBytes int64) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries, maxDocumentBytes: maxDocumentBytes}
}

func (h *AccountHandler) GetProfile(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	view, err := h.queries.GetProfile(c.Request.Context(), cqrs.GetProfileQuery{
		ActorID:   actorID,
		AccountID: targetID(c),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.commands.UpdateProfile(c.Request.Context(), cqrs.UpdateProfileCommand{
		ActorID:   actorID,
		AccountID: targetID(c),
		Update:    req.toModel(),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Transfer is a self-initiated debit, governed by the account's limits.
// Repeating a request with the same Idempotency-Key returns the original
// entry with 200 instead of 201.
func (h *AccountHandler) Transfer(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req TransferRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.commands.AdjustBalance(c.Request.Context(), cqrs.AdjustBalanceCommand{
		ActorID:        actorID,
		AccountID:      actorID,
		Amount:         decimal.RequireFromString(req.Amount),
		Direction:      models.DirectionDebit,
		Actor:          models.ActorSelf,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	respondWithEntry(c, res)
}

func respondWithEntry(c *gin.Context, res *ledger.Result) {
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, TransferResponse{Entry: res.Entry, Replayed: res.Replayed})
}

// UploadDocument replaces the identity document with the multipart
// "document" file.
func (h *AccountHandler) UploadDocument(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	doc, err := readDocument(c, h.maxDocumentBytes)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	if doc == nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "A multipart document file is required")
		return
	}

	view, err := h.commands.UploadDocument(c.Request.Context(), cqrs.UploadDocumentCommand{
		ActorID:   actorID,
		AccountID: targetID(c),
		Document:  *doc,
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) ListLedgerEntries(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	entries, err := h.queries.ListLedgerEntries(c.Request.Context(), cqrs.ListLedgerEntriesQuery{
		ActorID:   actorID,
		AccountID: targetID(c),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListLedgerEntriesResponse{Entries: entries})
}

func (h *AccountHandler) GetLimitUsage(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	usage, err := h.queries.GetLimitUsage(c.Request.Context(), cqrs.GetLimitUsageQuery{
		ActorID:   actorID,
		AccountID: targetID(c),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, usage)
}
