// Notification HTTP handlers.
//
// This file exposes endpoints for outbound invitations:
//   - POST /pledges/{id}/sms          (send the default or a custom SMS)
//   - POST /pledges/{id}/sms/forward  (forward the invitation to a third party)
//   - POST /pledges/{id}/whatsapp     (send the WhatsApp template invitation)
//   - POST /sms/bulk, /whatsapp/bulk  (synchronous multi-record send)
//   - POST /sms/send-all, /whatsapp/send-all (queue every unsent record)
//
// Idempotency: when a client supplies an Idempotency-Key header on the
// single-record send endpoints and a previous successful result exists for
// (user, record, key), the handler returns that recorded message and sets
// `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jkimaro/pledges-backend/internal/domain"
	"github.com/jkimaro/pledges-backend/internal/http/middleware"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/services"
)

//
// DTOs
//

// SendSMSRequest is the JSON payload for a single-record SMS send. A blank
// Message sends the configured default invitation template.
type SendSMSRequest struct {
	Message string `json:"message"`
}

// ForwardSMSRequest is the JSON payload for forwarding an invitation.
type ForwardSMSRequest struct {
	RecipientName   string `json:"recipient_name"`
	RecipientNumber string `json:"recipient_number" binding:"required"`
	Message         string `json:"message"`
}

// BulkSendRequest is the JSON payload for synchronous multi-record sends.
type BulkSendRequest struct {
	RecordIDs []string `json:"record_ids" binding:"required,min=1"`
	Message   string   `json:"message"`
}

// SendMessageResponse wraps the persisted attempt for single sends.
type SendMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// BulkSendResponse carries the per-record outcomes of a bulk send.
type BulkSendResponse struct {
	Results []services.SendResult `json:"results"`
}

// SendAllResponse reports how many background sends were queued.
type SendAllResponse struct {
	Queued  int    `json:"queued"`
	Message string `json:"message,omitempty"`
}

//
// Helpers
//

// replaySend serves a previously recorded result for (user, record, key) when
// one exists. Returns true when the response has been written.
func (h *Handlers) replaySend(c *gin.Context, recordID string) bool {
	idemKey, okKey := middleware.GetIdempotencyKey(c)
	if !okKey {
		return false
	}
	db := h.db()
	if db == nil {
		return false
	}
	ctx := c.Request.Context()
	rec, err := repo.GetIdempotency(ctx, db, userID(c), recordID, idemKey, time.Now().UTC())
	if err != nil || rec == nil {
		return false
	}
	prev, err := repo.GetMessage(ctx, db, rec.MessageID)
	if err != nil {
		return false
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, http.StatusOK, SendMessageResponse{Message: prev})
	return true
}

// storeIdempotency records a successful send against the supplied key.
// Best effort: failures never surface to the client.
func (h *Handlers) storeIdempotency(c *gin.Context, recordID, messageID string) {
	idemKey, okKey := middleware.GetIdempotencyKey(c)
	if !okKey {
		return
	}
	if db := h.db(); db != nil {
		_, _ = repo.CreateIdempotency(c.Request.Context(), db, userID(c), recordID, idemKey, messageID, http.StatusOK, 24*time.Hour)
	}
}

// userID extracts the operator identity from the Gin context (set by upstream
// middleware), falling back to the X-User-ID header and finally "admin".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if hv := strings.TrimSpace(c.GetHeader("X-User-ID")); hv != "" {
			return hv
		}
	}
	return "admin"
}

// failSend maps dispatcher errors to HTTP responses. The persisted failed
// attempt, when available, is included so clients can inspect the provider
// error without another round trip.
func failSend(c *gin.Context, m *domain.Message, err error) {
	switch {
	case errors.Is(err, services.ErrPledgeNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "pledge record not found")
	case errors.Is(err, services.ErrForwardRecipientRequired),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, domain.ErrPhoneRequired),
		errors.Is(err, domain.ErrPhoneInvalid),
		errors.Is(err, domain.ErrPhoneInternational):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		if m != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       ErrCodeSendFailed,
				"message":    err.Error(),
				"attempt":    m,
			})
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeSendFailed, err.Error())
	}
}

// sendAllResponse translates a SendAllUnsent outcome into a response.
func sendAllResponse(c *gin.Context, channel string, queued int, err error) {
	switch {
	case err == nil:
		middleware.CountNotification(channel, "queued")
		ok(c, http.StatusAccepted, SendAllResponse{Queued: queued})
	case errors.Is(err, services.ErrNothingToSend):
		ok(c, http.StatusOK, SendAllResponse{Queued: 0, Message: "no unsent records"})
	case errors.Is(err, services.ErrQueueFull):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       ErrCodeQueueFull,
			"message":    err.Error(),
			"queued":     queued,
		})
	default:
		fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
	}
}

//
// SMS handlers
//

// SendSMS sends the invitation SMS (or a custom message) to one record.
// Success marks the record's normal_message_sent flag.
func (h *Handlers) SendSMS(c *gin.Context) {
	recordID := c.Param("id")
	if _, err := uuid.Parse(recordID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pledge id must be a UUID")
		return
	}

	var req SendSMSRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	if h.replaySend(c, recordID) {
		return
	}

	m, err := h.smsSvc.Send(c.Request.Context(), recordID, req.Message)
	if err != nil {
		middleware.CountNotification("sms", "failed")
		failSend(c, m, err)
		return
	}
	middleware.CountNotification("sms", "sent")
	h.storeIdempotency(c, recordID, m.ID)
	ok(c, http.StatusOK, SendMessageResponse{Message: m})
}

// ForwardSMS sends the invitation text to a third-party number. The attempt
// is logged against the original record, which itself stays untouched.
func (h *Handlers) ForwardSMS(c *gin.Context) {
	recordID := c.Param("id")
	if _, err := uuid.Parse(recordID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pledge id must be a UUID")
		return
	}

	var req ForwardSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recipient_number required")
		return
	}

	m, err := h.smsSvc.Forward(c.Request.Context(), recordID, req.RecipientName, req.RecipientNumber, req.Message)
	if err != nil {
		middleware.CountNotification("sms", "failed")
		failSend(c, m, err)
		return
	}
	middleware.CountNotification("sms", "sent")
	ok(c, http.StatusOK, SendMessageResponse{Message: m})
}

// SendSMSBulk sends to the given records sequentially and returns per-record
// outcomes. Unknown ids become failed results, not request errors.
func (h *Handlers) SendSMSBulk(c *gin.Context) {
	var req BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record_ids required")
		return
	}

	results := h.smsSvc.SendBulk(c.Request.Context(), req.RecordIDs, req.Message)
	for _, r := range results {
		if r.Success {
			middleware.CountNotification("sms", "sent")
		} else {
			middleware.CountNotification("sms", "failed")
		}
	}
	ok(c, http.StatusOK, BulkSendResponse{Results: results})
}

// SendAllSMS queues a background invitation send for every record that has
// not received its SMS yet and returns immediately.
func (h *Handlers) SendAllSMS(c *gin.Context) {
	queued, err := h.smsSvc.SendAllUnsent(c.Request.Context())
	sendAllResponse(c, "sms", queued, err)
}

//
// WhatsApp handlers
//

// SendWhatsApp renders (or reuses) the record's invitation image and sends
// the WhatsApp template message. Success marks the whatsapp_sent flag.
func (h *Handlers) SendWhatsApp(c *gin.Context) {
	recordID := c.Param("id")
	if _, err := uuid.Parse(recordID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pledge id must be a UUID")
		return
	}

	if h.replaySend(c, recordID) {
		return
	}

	m, err := h.waSvc.SendInvitation(c.Request.Context(), recordID)
	if err != nil {
		middleware.CountNotification("whatsapp", "failed")
		failSend(c, m, err)
		return
	}
	middleware.CountNotification("whatsapp", "sent")
	h.storeIdempotency(c, recordID, m.ID)
	ok(c, http.StatusOK, SendMessageResponse{Message: m})
}

// SendWhatsAppBulk sends to the given records sequentially, skipping records
// whose whatsapp_sent flag is already set.
func (h *Handlers) SendWhatsAppBulk(c *gin.Context) {
	var req BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record_ids required")
		return
	}

	results := h.waSvc.SendBulk(c.Request.Context(), req.RecordIDs)
	for _, r := range results {
		if r.Success {
			middleware.CountNotification("whatsapp", "sent")
		} else {
			middleware.CountNotification("whatsapp", "failed")
		}
	}
	ok(c, http.StatusOK, BulkSendResponse{Results: results})
}

// SendAllWhatsApp queues a background WhatsApp invitation for every record
// whose whatsapp_sent flag is unset and returns immediately.
func (h *Handlers) SendAllWhatsApp(c *gin.Context) {
	queued, err := h.waSvc.SendAllUnsent(c.Request.Context())
	sendAllResponse(c, "whatsapp", queued, err)
}
