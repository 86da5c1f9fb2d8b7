// Package services – SMSService
//
// This file implements the SMS dispatcher. Every attempt writes a Message row
// in pending state before the provider call and updates it in place after, so
// the attempt log survives provider failures and process crashes. Invitation
// and custom sends mark the record's SMS flag on confirmed success; forwarded
// sends never touch the original record.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/domain"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/worker"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultForwardName labels forwarded sends when the caller gives no name.
const defaultForwardName = "Forwarded Guest"

// SMSSender is the provider contract required by SMSService.
type SMSSender interface {
	// Send delivers one message and returns the provider message id.
	Send(ctx context.Context, phoneNumber, message string) (string, error)
}

// SendResult reports one attempted send within a bulk operation.
type SendResult struct {
	RecordID     string `json:"record_id"`
	Name         string `json:"name"`
	MobileNumber string `json:"mobile_number"`
	Success      bool   `json:"success"`
	MessageID    string `json:"message_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SMSService dispatches text messages for pledge records.
type SMSService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Sender is the SMS provider client.
	Sender SMSSender
	// DefaultTemplate is the invitation body with placeholders (see Render).
	DefaultTemplate string
	// Queue runs send-all batches in the background.
	Queue *worker.Queue
}

// NewSMSService constructs an SMSService.
func NewSMSService(db *gorm.DB, sender SMSSender, defaultTemplate string, queue *worker.Queue) *SMSService {
	return &SMSService{
		DB:              db,
		Sender:          sender,
		DefaultTemplate: defaultTemplate,
		Queue:           queue,
	}
}

// Send delivers the invitation (or a custom body) to the record's own number
// and marks the record's SMS flag on success. customTemplate may be empty to
// use the default template; both forms support the same placeholders.
func (s *SMSService) Send(ctx context.Context, recordID, customTemplate string) (*domain.Message, error) {
	tr := otel.Tracer("services/SMSService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(attribute.String("pledge.id", recordID)),
	)
	defer span.End()

	rec, err := repo.GetPledge(ctx, s.DB, recordID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPledgeNotFound
		}
		return nil, err
	}

	kind := domain.MessageKindInvitation
	tmpl := s.DefaultTemplate
	if strings.TrimSpace(customTemplate) != "" {
		kind = domain.MessageKindCustom
		tmpl = customTemplate
	}
	body := RenderSMS(tmpl, rec)

	return s.deliver(ctx, rec, kind, rec.Name, rec.MobileNumber, body, true)
}

// Forward delivers the record's message to a third-party number. The original
// record's contact fields and sent flag are left untouched; the attempt is
// still logged against the record for audit continuity.
func (s *SMSService) Forward(ctx context.Context, recordID, recipientName, recipientNumber, customTemplate string) (*domain.Message, error) {
	tr := otel.Tracer("services/SMSService")
	ctx, span := tr.Start(ctx, "Forward",
		trace.WithAttributes(attribute.String("pledge.id", recordID)),
	)
	defer span.End()

	recipientNumber = strings.TrimSpace(recipientNumber)
	if recipientNumber == "" {
		return nil, ErrForwardRecipientRequired
	}
	recipientNumber = domain.NormalizePhone(recipientNumber)
	if err := domain.ValidatePhone(recipientNumber); err != nil {
		return nil, err
	}
	if strings.TrimSpace(recipientName) == "" {
		recipientName = defaultForwardName
	}

	rec, err := repo.GetPledge(ctx, s.DB, recordID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPledgeNotFound
		}
		return nil, err
	}

	tmpl := s.DefaultTemplate
	if strings.TrimSpace(customTemplate) != "" {
		tmpl = customTemplate
	}
	body := RenderSMS(tmpl, rec)

	return s.deliver(ctx, rec, domain.MessageKindForwarded, recipientName, recipientNumber, body, false)
}

// SendBulk delivers to the selected records sequentially and returns one
// result per record. Unknown ids produce a failed result, not an error, so a
// stale selection does not abort the rest.
func (s *SMSService) SendBulk(ctx context.Context, recordIDs []string, customTemplate string) []SendResult {
	tr := otel.Tracer("services/SMSService")
	ctx, span := tr.Start(ctx, "SendBulk",
		trace.WithAttributes(attribute.Int("count", len(recordIDs))),
	)
	defer span.End()

	results := make([]SendResult, 0, len(recordIDs))
	for _, id := range recordIDs {
		m, err := s.Send(ctx, id, customTemplate)
		r := SendResult{RecordID: id, Success: err == nil}
		if m != nil {
			r.Name = m.RecipientName
			r.MobileNumber = m.RecipientMobile
			r.MessageID = m.ProviderMessageID
		}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// SendAllUnsent enqueues one background send per record whose SMS flag is
// still false and returns how many were queued. The caller is not blocked for
// the batch; the queue's inter-job delay paces the provider calls.
func (s *SMSService) SendAllUnsent(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/SMSService")
	ctx, span := tr.Start(ctx, "SendAllUnsent")
	defer span.End()

	unsent, err := repo.ListUnsent(ctx, s.DB, domain.ChannelSMS)
	if err != nil {
		return 0, err
	}
	if len(unsent) == 0 {
		return 0, ErrNothingToSend
	}

	queued := 0
	for _, rec := range unsent {
		id := rec.ID
		ok := s.Queue.Enqueue(worker.Job{
			Name: "sms-invitation",
			Run: func(jobCtx context.Context) {
				// Errors are already recorded on the Message row.
				_, _ = s.Send(jobCtx, id, "")
			},
		})
		if !ok {
			if queued == 0 {
				return 0, ErrQueueFull
			}
			return queued, ErrQueueFull
		}
		queued++
	}
	return queued, nil
}

// deliver writes the pending attempt row, calls the provider, and settles the
// row. markSent also flips the record's SMS flag after a confirmed success.
func (s *SMSService) deliver(ctx context.Context, rec *domain.PledgeRecord, kind, recipientName, recipientMobile, body string, markSent bool) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}

	m, err := repo.CreatePendingMessage(ctx, s.DB, rec.ID, domain.ChannelSMS, kind, recipientName, recipientMobile, body)
	if err != nil {
		return nil, err
	}

	providerID, sendErr := s.Sender.Send(ctx, recipientMobile, body)
	if sendErr != nil {
		if uerr := repo.MarkMessageFailed(ctx, s.DB, m.ID, sendErr.Error()); uerr == nil {
			m.Status = domain.MessageStatusFailed
			m.ErrorMessage = sendErr.Error()
		}
		return m, sendErr
	}

	if err := repo.MarkMessageSent(ctx, s.DB, m.ID, providerID); err != nil {
		return m, err
	}
	m.Status = domain.MessageStatusSent
	m.ProviderMessageID = providerID

	if markSent {
		if err := repo.MarkNormalMessageSent(ctx, s.DB, rec.ID); err != nil {
			return m, err
		}
	}
	return m, nil
}

// RenderSMS substitutes the template placeholders with record fields. The
// capacity placeholder renders as DOUBLE/SINGLE for the standard tiers and as
// the raw number for manual overrides.
func RenderSMS(template string, rec *domain.PledgeRecord) string {
	r := strings.NewReplacer(
		"{name}", rec.Name,
		"{pledge}", rec.Pledge.String(),
		"{paid}", rec.Paid.String(),
		"{remaining}", rec.Remaining.String(),
		"{mobile_number}", rec.MobileNumber,
		"{card_code}", rec.CardCode,
		"{card_capacity}", CapacityDisplay(rec.CardCapacity),
	)
	return r.Replace(template)
}

// CapacityDisplay renders a capacity tier for message bodies.
func CapacityDisplay(capacity int) string {
	switch capacity {
	case 2:
		return "DOUBLE"
	case 1:
		return "SINGLE"
	default:
		return strconv.Itoa(capacity)
	}
}
