package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/cqrs"
	"github.com/LazarusTes/auth-portal-express/internal/middleware"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// PersonalDetailsRequest is shared by sign-up and admin create. It binds from
// JSON or from multipart form fields.
type PersonalDetailsRequest struct {
	FirstName      string `json:"firstName" form:"firstName" validate:"required"`
	LastName       string `json:"lastName" form:"lastName" validate:"required"`
	Username       string `json:"username" form:"username" validate:"required"`
	DateOfBirth    string `json:"dateOfBirth" form:"dateOfBirth" validate:"required,datetime=2006-01-02"`
	PlaceOfBirth   string `json:"placeOfBirth" form:"placeOfBirth"`
	CountryOfBirth string `json:"countryOfBirth" form:"countryOfBirth"`
	Residence      string `json:"residence" form:"residence"`
	Nationality    string `json:"nationality" form:"nationality"`
}

func (r PersonalDetailsRequest) toModel() models.PersonalDetails {
	dob, _ := time.Parse(dateLayout, r.DateOfBirth)
	return models.PersonalDetails{
		FirstName:      strings.TrimSpace(r.FirstName),
		LastName:       strings.TrimSpace(r.LastName),
		Username:       strings.TrimSpace(r.Username),
		DateOfBirth:    dob,
		PlaceOfBirth:   r.PlaceOfBirth,
		CountryOfBirth: r.CountryOfBirth,
		Residence:      r.Residence,
		Nationality:    r.Nationality,
	}
}

type SignUpRequest struct {
	PersonalDetailsRequest
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required,min=8"`
}

type AdminCreateUserRequest struct {
	SignUpRequest
	Role string `json:"role" form:"role" validate:"omitempty,oneof=user admin"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	Username       *string `json:"username"`
	DateOfBirth    *string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	PlaceOfBirth   *string `json:"placeOfBirth"`
	CountryOfBirth *string `json:"countryOfBirth"`
	Residence      *string `json:"residence"`
	Nationality    *string `json:"nationality"`
}

func (r UpdateProfileRequest) toModel() models.ProfileUpdate {
	upd := models.ProfileUpdate{
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Username:       r.Username,
		PlaceOfBirth:   r.PlaceOfBirth,
		CountryOfBirth: r.CountryOfBirth,
		Residence:      r.Residence,
		Nationality:    r.Nationality,
	}
	if r.DateOfBirth != nil {
		dob, _ := time.Parse(dateLayout, *r.DateOfBirth)
		upd.DateOfBirth = &dob
	}
	return upd
}

type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

type TransferRequest struct {
	Amount string `json:"amount" validate:"required,positive_decimal"`
}

type AdjustBalanceRequest struct {
	Amount    string `json:"amount" validate:"required,positive_decimal"`
	Direction string `json:"direction" validate:"required,oneof=credit debit"`
}

// SetLimitsRequest replaces all three caps; an omitted or null cap removes it.
type SetLimitsRequest struct {
	Daily   *string `json:"daily" validate:"omitempty,decimal"`
	Weekly  *string `json:"weekly" validate:"omitempty,decimal"`
	Monthly *string `json:"monthly" validate:"omitempty,decimal"`
}

func (r SetLimitsRequest) toModel() models.Limits {
	parse := func(s *string) *decimal.Decimal {
		if s == nil {
			return nil
		}
		d, err := decimal.NewFromString(*s)
		if err != nil {
			return nil
		}
		return &d
	}
	return models.Limits{Daily: parse(r.Daily), Weekly: parse(r.Weekly), Monthly: parse(r.Monthly)}
}

type AssignRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type TransferResponse struct {
	Entry    *models.LedgerEntry `json:"entry"`
	Replayed bool                `json:"replayed"`
}

type ListProfilesResponse struct {
	Profiles []models.ProfileView `json:"profiles"`
}

type ListLedgerEntriesResponse struct {
	Entries []models.LedgerEntry `json:"entries"`
}

// bindJSON decodes and validates the body, answering 400 itself on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

// bindForm accepts either a JSON body or a multipart form, so sign-up can
// carry an identity document.
func bindForm(c *gin.Context, req any) bool {
	if !isMultipart(c) {
		return bindJSON(c, req)
	}
	if err := c.ShouldBind(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid form data")
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// readDocument returns the optional "document" file of a multipart request.
// At most maxBytes+1 bytes are read so the blob store can reject oversize
// uploads without buffering them whole.
func readDocument(c *gin.Context, maxBytes int64) (*cqrs.DocumentUpload, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	fh, err := c.FormFile("document")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable document", models.ErrValidation)
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, models.ErrDocumentTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable document", models.ErrValidation)
	}
	defer f.Close()

	r := io.Reader(f)
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable document", models.ErrValidation)
	}
	return &cqrs.DocumentUpload{FileName: fh.Filename, Content: content}, nil
}

// targetID is the account a request acts on: the :id path parameter on
// admin routes, the caller's own account otherwise.
func targetID(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	id, _ := middleware.GetUserID(c)
	return id
}
