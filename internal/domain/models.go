// Package domain defines the persistence models for tenants, channels,
// conversations, messages, and daily usage counters. These types are mapped
// with GORM and form the core data layer of the message pipeline.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message direction and lifecycle status values. Status records the terminal
// pipeline outcome for inbound messages so billing and support tooling can
// distinguish replied traffic from throttled or quota-blocked traffic.
const (
	DirectionIn  = "in"
	DirectionOut = "out"

	RoleUser      = "user"
	RoleAssistant = "assistant"

	// Inbound message outcomes.
	StatusReceived      = "received"
	StatusReplied       = "replied"
	StatusRateLimited   = "rate_limited"
	StatusQuotaExceeded = "quota_exceeded"
	StatusFailed        = "failed"

	// Outbound message delivery states.
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Tenant represents one customer of the platform. Every fast-store key and
// every durable row below is scoped by TenantID; tenants never share state.
//
// DailyMessageLimit is the number of AI-generated replies the tenant may
// consume per UTC day (see DailyUsage). Locale selects the language of
// user-facing fallback notices.
type Tenant struct {
	ID                string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Name              string         `json:"name"       gorm:"type:varchar(255);not null"`
	DailyMessageLimit int            `json:"daily_message_limit" gorm:"not null;default:1000"`
	Locale            string         `json:"locale"     gorm:"type:varchar(16);not null;default:'en'"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Tenant.
func (Tenant) TableName() string { return "tenants" }

// Channel is a messaging-provider endpoint owned by a tenant (e.g. one
// WhatsApp number or one Telegram bot). Inbound jobs reference the channel
// they arrived on; outbound replies are delivered to its Destination.
type Channel struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	TenantID    string         `json:"tenant_id"   gorm:"type:char(36);not null;index:idx_tenant_channels"`
	Provider    string         `json:"provider"    gorm:"type:varchar(32);not null"`
	Destination string         `json:"destination" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Channel.
func (Channel) TableName() string { return "channels" }

// QuotaState is the conversation-level cache of a tenant quota decision.
// Once a tenant exhausts its daily budget, the pipeline marks the affected
// conversation blocked so later messages short-circuit without touching the
// authoritative counter.
//
// The flag is day-scoped: BlockedAt records when the blocking episode
// started, and ActiveAt reports false once the UTC day has rolled over, which
// forces one authoritative re-check per conversation per day.
type QuotaState struct {
	Blocked   bool       `json:"blocked"              gorm:"column:quota_blocked;not null;default:false"`
	BlockedAt *time.Time `json:"blocked_at,omitempty" gorm:"column:quota_blocked_at"`
}

// ActiveAt reports whether the cached block still applies at the given time.
// A block recorded on an earlier UTC day is stale: the daily counter has a
// fresh row, so the conversation must re-check the authoritative quota.
func (q QuotaState) ActiveAt(now time.Time) bool {
	if !q.Blocked || q.BlockedAt == nil {
		return false
	}
	y1, m1, d1 := q.BlockedAt.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Conversation represents an ongoing exchange between one external peer and
// one tenant channel. PeerID is the provider-side sender identifier.
type Conversation struct {
	ID            string         `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID      string         `json:"tenant_id"  gorm:"type:char(36);not null;index:idx_tenant_convs"`
	ChannelID     string         `json:"channel_id" gorm:"type:char(36);not null;index"`
	PeerID        string         `json:"peer_id"    gorm:"type:varchar(128);not null"`
	Quota         QuotaState     `json:"quota"      gorm:"embedded"`
	MessageCount  int64          `json:"message_count" gorm:"not null;default:0"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single inbound or outbound utterance within a conversation.
//
// ProviderMessageID is the external identifier assigned by the messaging
// provider; for inbound rows it is the dedup key, for outbound rows it is
// filled in after successful delivery.
type Message struct {
	ID                string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID    string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Direction         string         `json:"direction"       gorm:"type:varchar(8);not null;check:direction IN ('in','out')"`
	Role              string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content           string         `json:"content"         gorm:"type:text;not null"`
	ProviderMessageID string         `json:"provider_message_id" gorm:"type:varchar(128);index"`
	Status            string         `json:"status"          gorm:"type:varchar(24);not null;default:'received'"`
	CreatedAt         time.Time      `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-"               gorm:"index"`

	// Conversation is the parent exchange. Messages are cascade-deleted if
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// DailyUsage is the authoritative per-tenant generation counter for one UTC
// day. Count only moves forward via a conditional single-statement increment
// (count + 1 <= limit), never via read-modify-write, so concurrent workers
// cannot overshoot the limit. A new day means a new row starting at zero.
type DailyUsage struct {
	TenantID  string    `json:"tenant_id" gorm:"type:char(36);primaryKey"`
	Day       string    `json:"day"       gorm:"type:char(10);primaryKey"` // YYYY-MM-DD (UTC)
	Count     int       `json:"count"     gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for DailyUsage.
func (DailyUsage) TableName() string { return "daily_usages" }

// UsageDay formats a timestamp as the UTC day key used by DailyUsage rows.
func UsageDay(t time.Time) string { return t.UTC().Format("2006-01-02") }
