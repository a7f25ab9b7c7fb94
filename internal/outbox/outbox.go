// Package outbox records change events in the same transaction as the
// mutation that produced them. The replication collaborator drains them.
package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/observability/metrics"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicEntityCreated   = "entity.created"
	TopicEntityUpdated   = "entity.updated"
	TopicEntityDeleted   = "entity.deleted"
	TopicUserRegistered  = "user.registered"
	TopicVendorOnboarded = "vendor.onboarded"
)

type Event struct {
	ID          string         `gorm:"primaryKey;type:char(26)" json:"id"`
	Topic       string         `gorm:"type:text;not null;index" json:"topic"`
	RealmID     string         `gorm:"column:realm_id;type:text;not null;index" json:"realm_id"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	Published   bool           `gorm:"not null;default:false;index" json:"published"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "outbox_events" }

type Publisher interface {
	WithTx(tx *gorm.DB) Publisher
	Publish(ctx context.Context, topic, realmID string, payload any) (*Event, error)
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids ...string) error
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type publisher struct {
	db      *gorm.DB
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewPublisher(p Params) Publisher {
	return &publisher{db: p.DB, clock: p.Clock, metrics: p.Metrics}
}

func (p *publisher) WithTx(tx *gorm.DB) Publisher {
	clone := *p
	clone.db = tx
	return &clone
}

func (p *publisher) Publish(ctx context.Context, topic, realmID string, payload any) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	event := &Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Topic:     strings.TrimSpace(topic),
		RealmID:   strings.TrimSpace(realmID),
		Payload:   datatypes.JSON(body),
		CreatedAt: now,
	}
	if err := p.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	p.metrics.RecordOutboxEvent(ctx, event.Topic)
	return event, nil
}

// Pending returns unpublished events oldest first. ULIDs sort by time.
func (p *publisher) Pending(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []Event
	err := p.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (p *publisher) MarkPublished(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	now := p.clock.Now()
	return p.db.WithContext(ctx).
		Model(&Event{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"published": true, "published_at": now}).Error
}

