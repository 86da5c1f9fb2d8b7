// Package services – WhatsAppService
//
// This file implements the WhatsApp dispatcher. Each invitation send makes
// sure the personalized card image exists (rendering it on first use and
// persisting its URL), converts the phone number to the international digits
// form the Graph API expects, and sends the approved template with the card
// as header image. Attempt logging mirrors the SMS dispatcher.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/domain"
	"github.com/jkimaro/pledges-backend/internal/invite"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/worker"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WhatsAppSender is the provider contract required by WhatsAppService.
type WhatsAppSender interface {
	// SendTemplate sends the approved template with an image header and body
	// text to an international-digits number and returns the provider id.
	SendTemplate(ctx context.Context, to, imageURL, messageText string) (string, error)
}

// WhatsAppService dispatches invitation cards over WhatsApp.
type WhatsAppService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Sender is the WhatsApp provider client.
	Sender WhatsAppSender
	// Invites renders card images on first send.
	Invites *invite.Generator
	// Queue runs send-all batches in the background.
	Queue *worker.Queue
}

// NewWhatsAppService constructs a WhatsAppService.
func NewWhatsAppService(db *gorm.DB, sender WhatsAppSender, invites *invite.Generator, queue *worker.Queue) *WhatsAppService {
	return &WhatsAppService{
		DB:      db,
		Sender:  sender,
		Invites: invites,
		Queue:   queue,
	}
}

// SendInvitation delivers the card invitation to one record and marks its
// WhatsApp flag on confirmed success.
func (s *WhatsAppService) SendInvitation(ctx context.Context, recordID string) (*domain.Message, error) {
	tr := otel.Tracer("services/WhatsAppService")
	ctx, span := tr.Start(ctx, "SendInvitation",
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

	to, err := domain.FormatPhoneForWhatsApp(rec.MobileNumber)
	if err != nil {
		return nil, err
	}

	imageURL, err := s.ensureInvitationImage(ctx, rec)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Dear %s, you are cordially invited to the wedding celebration!", rec.Name)

	m, err := repo.CreatePendingMessage(ctx, s.DB, rec.ID, domain.ChannelWhatsApp, domain.MessageKindInvitation, rec.Name, to, body)
	if err != nil {
		return nil, err
	}

	providerID, sendErr := s.Sender.SendTemplate(ctx, to, imageURL, body)
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

	if err := repo.MarkWhatsappSent(ctx, s.DB, rec.ID); err != nil {
		return m, err
	}
	return m, nil
}

// SendBulk delivers invitations to the selected records sequentially,
// skipping records already marked sent, and returns one result per attempted
// record.
func (s *WhatsAppService) SendBulk(ctx context.Context, recordIDs []string) []SendResult {
	tr := otel.Tracer("services/WhatsAppService")
	ctx, span := tr.Start(ctx, "SendBulk",
		trace.WithAttributes(attribute.Int("count", len(recordIDs))),
	)
	defer span.End()

	results := make([]SendResult, 0, len(recordIDs))
	for _, id := range recordIDs {
		if rec, err := repo.GetPledge(ctx, s.DB, id); err == nil && rec.WhatsappSent {
			continue
		}
		m, err := s.SendInvitation(ctx, id)
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

// SendAllUnsent enqueues one background invitation per record whose WhatsApp
// flag is still false and returns how many were queued.
func (s *WhatsAppService) SendAllUnsent(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/WhatsAppService")
	ctx, span := tr.Start(ctx, "SendAllUnsent")
	defer span.End()

	unsent, err := repo.ListUnsent(ctx, s.DB, domain.ChannelWhatsApp)
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
			Name: "whatsapp-invitation",
			Run: func(jobCtx context.Context) {
				// Errors are already recorded on the Message row.
				_, _ = s.SendInvitation(jobCtx, id)
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

// ensureInvitationImage returns the record's card image URL, rendering and
// persisting it on first use. Existing URLs are reused so repeated sends do
// not re-render.
func (s *WhatsAppService) ensureInvitationImage(ctx context.Context, rec *domain.PledgeRecord) (string, error) {
	if rec.InvitationImageURL != nil && *rec.InvitationImageURL != "" {
		return *rec.InvitationImageURL, nil
	}

	url, err := s.Invites.Generate(rec.Name, rec.CardCode, rec.CardCapacity)
	if err != nil {
		return "", fmt.Errorf("generate invitation image: %w", err)
	}
	if err := repo.SetInvitationImageURL(ctx, s.DB, rec.ID, url); err != nil {
		return "", err
	}
	rec.InvitationImageURL = &url
	return url, nil
}
