// Pledge HTTP handlers.
//
// This file exposes REST endpoints for pledge records:
//   - POST   /pledges          (create)
//   - GET    /pledges          (list, paginated, search, ETag support)
//   - GET    /pledges/{id}     (fetch one)
//   - PUT    /pledges/{id}     (update)
//   - DELETE /pledges/{id}     (delete)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses (including conditional
// responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/domain"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/services"
	"github.com/jkimaro/pledges-backend/internal/upload"
	"github.com/jkimaro/pledges-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// PledgeService defines pledge record lifecycle operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type PledgeService interface {
	Create(ctx context.Context, in services.PledgeInput) (*domain.PledgeRecord, error)
	Update(ctx context.Context, id string, in services.PledgeInput) (*domain.PledgeRecord, error)
	Get(ctx context.Context, id string) (*domain.PledgeRecord, error)
	Delete(ctx context.Context, id string) error
	ListPage(ctx context.Context, search string, page, pageSize int) ([]domain.PledgeRecord, int64, error)
}

// UploadService processes a parsed spreadsheet into the pledge registry.
type UploadService interface {
	Process(ctx context.Context, filename string, tab *upload.Table) (*services.UploadReport, error)
}

// SMSService defines outbound SMS operations consumed by HTTP handlers.
type SMSService interface {
	Send(ctx context.Context, recordID, customTemplate string) (*domain.Message, error)
	Forward(ctx context.Context, recordID, recipientName, recipientNumber, customTemplate string) (*domain.Message, error)
	SendBulk(ctx context.Context, recordIDs []string, customTemplate string) []services.SendResult
	SendAllUnsent(ctx context.Context) (int, error)
}

// WhatsAppService defines outbound WhatsApp operations consumed by handlers.
type WhatsAppService interface {
	SendInvitation(ctx context.Context, recordID string) (*domain.Message, error)
	SendBulk(ctx context.Context, recordIDs []string) []services.SendResult
	SendAllUnsent(ctx context.Context) (int, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for pledges, uploads, and notifications.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	pledgeSvc PledgeService
	uploadSvc UploadService
	smsSvc    SMSService
	waSvc     WhatsAppService
}

// New constructs a Handlers instance bound to the given services.
func New(pledgeSvc PledgeService, uploadSvc UploadService, smsSvc SMSService, waSvc WhatsAppService) *Handlers {
	return &Handlers{pledgeSvc: pledgeSvc, uploadSvc: uploadSvc, smsSvc: smsSvc, waSvc: waSvc}
}

// db surfaces the underlying *gorm.DB when the pledge service is the concrete
// implementation. Used for best-effort concerns (ETags, idempotency replay)
// that would otherwise widen the service interfaces.
func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.pledgeSvc.(*services.PledgeService); ok {
		return svc.DB
	}
	return nil
}

//
// DTOs
//

// PledgeRequest is the JSON payload for creating or updating a pledge record.
type PledgeRequest struct {
	// Name is the pledge-holder's full name.
	Name string `json:"name" binding:"required,min=1,max=255"`
	// MobileNumber accepts local or international form; it is canonicalized
	// before storage.
	MobileNumber string `json:"mobile_number" binding:"required"`
	// Pledge and Paid accept JSON numbers or numeric strings.
	Pledge decimal.Decimal `json:"pledge"`
	Paid   decimal.Decimal `json:"paid"`
	// CardCapacity above 2 is kept as a manual override; omit to derive it
	// from the paid amount.
	CardCapacity *int `json:"card_capacity,omitempty"`
	// AttendedCount records check-ins against the card; omit to leave the
	// stored value unchanged.
	AttendedCount *int `json:"attended_count,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListPledgesResponse wraps a page of pledge records and pagination info.
type ListPledgesResponse struct {
	Pledges    []domain.PledgeRecord `json:"pledges"`
	Pagination Pagination            `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	return utils.ClampPage(page, pageSize, defaultPageSize, maxPageSize)
}

// toInput converts the request DTO to the service-layer input.
func (r PledgeRequest) toInput() services.PledgeInput {
	return services.PledgeInput{
		Name:          strings.TrimSpace(r.Name),
		MobileNumber:  r.MobileNumber,
		Pledge:        r.Pledge,
		Paid:          r.Paid,
		CardCapacity:  r.CardCapacity,
		AttendedCount: r.AttendedCount,
	}
}

// failSave maps save-pipeline errors to HTTP responses.
func failSave(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPledgeNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "pledge record not found")
	case errors.Is(err, services.ErrDuplicateMobile):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrDuplicateCardCode):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrNameRequired),
		errors.Is(err, services.ErrNegativeAmount),
		errors.Is(err, services.ErrNegativeAttended),
		errors.Is(err, domain.ErrPhoneRequired),
		errors.Is(err, domain.ErrPhoneInvalid),
		errors.Is(err, domain.ErrPhoneInternational):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeSaveFailed, err.Error())
	}
}

//
// Handlers
//

// CreatePledge creates a pledge record and returns the stored resource,
// including the derived remaining amount, capacity tier and card code.
func (h *Handlers) CreatePledge(c *gin.Context) {
	var req PledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.pledgeSvc.Create(c.Request.Context(), req.toInput())
	if err != nil {
		failSave(c, err)
		return
	}
	ok(c, http.StatusCreated, rec)
}

// ListPledges returns a page of pledge records. An optional ?search= filters
// by name or mobile number. Supports weak ETag via If-None-Match and may
// return 304.
func (h *Handlers) ListPledges(c *gin.Context) {
	ctx := c.Request.Context()
	search := strings.TrimSpace(c.Query("search"))
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.db(); db != nil {
		count, maxTS, err := repo.PledgeStats(ctx, db, search)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"pledges:%s:%d:%d"`, search, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.pledgeSvc.ListPage(ctx, search, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListPledgesResponse{
		Pledges: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetPledge returns a single pledge record by id.
func (h *Handlers) GetPledge(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pledge id must be a UUID")
		return
	}

	rec, err := h.pledgeSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrPledgeNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "pledge record not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rec)
}

// UpdatePledge overwrites a record's editable fields and re-runs the save
// pipeline. The card code assigned at creation is preserved.
func (h *Handlers) UpdatePledge(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pledge id must be a UUID")
		return
	}

	var req PledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.pledgeSvc.Update(c.Request.Context(), id, req.toInput())
	if err != nil {
		failSave(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// DeletePledge removes a record and its message history.
func (h *Handlers) DeletePledge(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pledge id must be a UUID")
		return
	}

	if err := h.pledgeSvc.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrPledgeNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "pledge record not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ListRecordMessages returns the send-attempt history for one record,
// newest first.
func (h *Handlers) ListRecordMessages(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pledge id must be a UUID")
		return
	}

	db := h.db()
	if db == nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "storage unavailable")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.pledgeSvc.Get(ctx, id); err != nil {
		if errors.Is(err, services.ErrPledgeNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "pledge record not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	msgs, err := repo.ListMessagesForRecord(ctx, db, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"messages": msgs})
}
