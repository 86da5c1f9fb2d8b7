// Package domain defines the persistence models for pledge records, upload
// logs, and outbound messages. These types are mapped with GORM and form the
// core data layer of the pledges application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardCodeAlphabet is the character pool used for card identification codes.
// O, I, S and Z are excluded because they are visually confusable with the
// digits 0, 1, 5 and 2 on a printed card.
const CardCodeAlphabet = "ABCDEFGHJKLMNPQRTUVWXY"

// CardCodeLength is the fixed length of a generated card code.
const CardCodeLength = 3

// Message channels.
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// Message delivery statuses.
const (
	MessageStatusPending = "pending"
	MessageStatusSent    = "sent"
	MessageStatusFailed  = "failed"
)

// Message kinds. Invitation is the default templated send, custom carries a
// caller-supplied body, forwarded is a send to a third-party number logged
// against the original record.
const (
	MessageKindInvitation = "invitation"
	MessageKindCustom     = "custom"
	MessageKindForwarded  = "forwarded"
)

// PledgeRecord is the aggregate root: one row per pledge-holder.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), assigned at creation.
//   - MobileNumber: canonical phone string (see NormalizePhone); unique.
//   - Name: pledge-holder's full name.
//   - Pledge / Paid / Remaining: fixed-point amounts with 2 fractional digits.
//     Remaining is derived (pledge - paid) and recomputed on every save.
//   - CardCapacity: entitlement tier derived from Paid (0/1/2); values above 2
//     are manual overrides and are never recomputed.
//   - CardCode: unique 3-character code, assigned once and kept thereafter.
//   - InvitationImageURL: set once the invitation image has been rendered.
//   - NormalMessageSent / WhatsappSent: true only after a confirmed provider
//     success on the respective channel.
//   - AttendedCount: number of people who attended against this card.
type PledgeRecord struct {
	ID                 string          `json:"id"                   gorm:"type:char(36);primaryKey"`
	MobileNumber       string          `json:"mobile_number"        gorm:"type:varchar(16);not null;uniqueIndex:ux_pledges_mobile"`
	Name               string          `json:"name"                 gorm:"type:varchar(255);not null"`
	Pledge             decimal.Decimal `json:"pledge"               gorm:"type:decimal(12,2);not null"`
	Paid               decimal.Decimal `json:"paid"                 gorm:"type:decimal(12,2);not null"`
	Remaining          decimal.Decimal `json:"remaining"            gorm:"type:decimal(12,2);not null"`
	CardCapacity       int             `json:"card_capacity"        gorm:"not null;default:0"`
	CardCode           string          `json:"card_code"            gorm:"type:varchar(10);uniqueIndex:ux_pledges_card_code"`
	InvitationImageURL *string         `json:"invitation_image_url,omitempty" gorm:"type:varchar(512)"`
	NormalMessageSent  bool            `json:"normal_message_sent"  gorm:"not null;default:false"`
	WhatsappSent       bool            `json:"whatsapp_sent"        gorm:"not null;default:false"`
	AttendedCount      int             `json:"attended_count"       gorm:"not null;default:0"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName returns the database table name for PledgeRecord.
func (PledgeRecord) TableName() string { return "pledge_records" }

// UploadLog records one processed upload file with aggregate counts and the
// joined per-row error text. It is written in the same transaction as the row
// upserts of the batch it describes, and is append-only.
type UploadLog struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	Filename       string    `json:"filename"        gorm:"type:varchar(255);not null"`
	TotalRecords   int       `json:"total_records"   gorm:"not null;default:0"`
	NewRecords     int       `json:"new_records"     gorm:"not null;default:0"`
	UpdatedRecords int       `json:"updated_records" gorm:"not null;default:0"`
	Errors         string    `json:"errors"          gorm:"type:text"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// TableName returns the database table name for UploadLog.
func (UploadLog) TableName() string { return "upload_logs" }

// Message is one outbound send attempt on either channel. A row is created in
// pending state before the provider call and updated in place afterwards, so
// the table is a durable attempt log independent of the record's booleans.
//
// RecipientName and RecipientMobile may differ from the linked record's own
// fields: forwarded sends go to a third party but stay attached to the
// original record for audit continuity.
type Message struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	PledgeRecordID    string    `json:"pledge_record_id"    gorm:"type:char(36);not null;index:idx_record_msgs,priority:1"`
	Channel           string    `json:"channel"             gorm:"type:varchar(16);not null;check:channel IN ('sms','whatsapp')"`
	Kind              string    `json:"kind"                gorm:"type:varchar(16);not null;default:'invitation'"`
	RecipientName     string    `json:"recipient_name"      gorm:"type:varchar(255);not null"`
	RecipientMobile   string    `json:"recipient_mobile"    gorm:"type:varchar(16);not null"`
	Body              string    `json:"body"                gorm:"type:text;not null"`
	Status            string    `json:"status"              gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','sent','failed')"`
	ProviderMessageID string    `json:"provider_message_id" gorm:"type:varchar(255)"`
	ErrorMessage      string    `json:"error_message"       gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at"          gorm:"index:idx_record_msgs,priority:2"`
	UpdatedAt         time.Time `json:"updated_at"`

	// PledgeRecord is the record this attempt belongs to. Messages are
	// cascade-deleted when the record is removed.
	PledgeRecord PledgeRecord `json:"-" gorm:"foreignKey:PledgeRecordID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
