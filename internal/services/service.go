// Package services holds the business rules of the catalog. Every mutation
// runs in one database transaction; audit rows are written inside it, while
// cache invalidation and event publishing happen after commit.
package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/events"
	"github.com/diewo77/go-catalog/internal/metrics"
	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/validation"
)

// Options carries the collaborators shared by every service. Zero values
// are usable: no cache, no events, no metrics, a no-op logger.
type Options struct {
	Logger  *zap.Logger
	Cache   *cache.Catalog
	Events  events.Publisher
	Metrics *metrics.Metrics
	// Grants is the permission cache to drop when role assignments change.
	Grants GrantsCache
	Now    func() time.Time
	Rand   io.Reader
	// PasswordCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	PasswordCost int
}

// GrantsCache drops cached permission sets.
type GrantsCache interface {
	Invalidate(user uint)
	InvalidateAll()
}

type core struct {
	db      *gorm.DB
	log     *zap.Logger
	cache   *cache.Catalog
	events  events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
	rand    io.Reader
}

func newCore(db *gorm.DB, opts Options) core {
	c := core{
		db:      db,
		log:     opts.Logger,
		cache:   opts.Cache,
		events:  opts.Events,
		metrics: opts.Metrics,
		now:     opts.Now,
		rand:    opts.Rand,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.events == nil {
		c.events = events.Nop{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.rand == nil {
		c.rand = rand.Reader
	}
	return c
}

// change collects the side effects of one mutation while its transaction is
// open.
type change struct {
	tx     *gorm.DB
	actor  uint
	now    time.Time
	events []events.Event
	caches []cache.Entity
	audits []models.AuditLog
	after  []func()
}

func (ch *change) actorID() *uint {
	if ch.actor == 0 {
		return nil
	}
	id := ch.actor
	return &id
}

// audit writes an audit row. For updates only the changed attributes of old
// and new are kept; nil means the side does not exist.
func (ch *change) audit(entity string, id uint, action string, old, new any) error {
	before, after := snapshot(old), snapshot(new)
	if before != nil && after != nil {
		before, after = diff(before, after)
	}
	row := models.AuditLog{
		ActorID:    ch.actorID(),
		EntityType: entity,
		EntityID:   id,
		Action:     action,
		OldValues:  encode(before),
		NewValues:  encode(after),
	}
	if err := ch.tx.Create(&row).Error; err != nil {
		return err
	}
	ch.audits = append(ch.audits, row)
	return nil
}

// publish queues an event for delivery after commit.
func (ch *change) publish(typ, entity string, id uint, data any) {
	ch.events = append(ch.events, events.Event{
		Type:       typ,
		Entity:     entity,
		EntityID:   id,
		ActorID:    ch.actorID(),
		OccurredAt: ch.now,
		Data:       data,
	})
}

// touch marks cached entities for invalidation after commit.
func (ch *change) touch(entities ...cache.Entity) {
	ch.caches = append(ch.caches, entities...)
}

// afterCommit defers f until the transaction has committed.
func (ch *change) afterCommit(f func()) {
	ch.after = append(ch.after, f)
}

// mutate runs fn in a transaction. On commit it invalidates caches, publishes
// events and logs the audit trail; on failure it logs op, input and actor and
// returns the error unchanged.
func (c *core) mutate(ctx context.Context, actor uint, entity, op string, input any, fn func(ch *change) error) error {
	ch := &change{actor: actor, now: c.now()}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ch.tx = tx
		return fn(ch)
	})
	c.metrics.Mutation(entity, op, err)

	log := c.log.With(zap.String("operation", entity+"."+op), zap.Uint("actor_id", actor))
	if err != nil {
		var verr *validation.Error
		switch {
		case errors.As(err, &verr), Classified(err):
			log.Info("mutation rejected", zap.Error(err))
		default:
			log.Error("mutation failed", zap.Any("input", input), zap.Error(err))
		}
		return err
	}

	for _, f := range ch.after {
		f()
	}
	if err := c.cache.Invalidate(ctx, ch.caches...); err != nil {
		log.Warn("cache invalidation failed", zap.Error(err))
	}
	for _, e := range ch.events {
		if err := c.events.Publish(ctx, e); err != nil {
			log.Warn("event publish failed", zap.String("event", e.Type), zap.Error(err))
		}
	}
	for _, a := range ch.audits {
		log.Info("audit",
			zap.String("entity", a.EntityType),
			zap.Uint("entity_id", a.EntityID),
			zap.String("action", a.Action),
			zap.ByteString("old", a.OldValues),
			zap.ByteString("new", a.NewValues),
		)
	}
	return nil
}

// ignoredAttrs are left out of audit snapshots.
var ignoredAttrs = []string{"created_at", "updated_at", "category", "brand", "roles", "permissions", "products_count", "users_count"}

func snapshot(v any) map[string]any {
	if v == nil || (reflect.ValueOf(v).Kind() == reflect.Pointer && reflect.ValueOf(v).IsNil()) {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	for _, k := range ignoredAttrs {
		delete(m, k)
	}
	return m
}

func diff(before, after map[string]any) (map[string]any, map[string]any) {
	old, cur := map[string]any{}, map[string]any{}
	for k, v := range after {
		if !reflect.DeepEqual(before[k], v) {
			old[k] = before[k]
			cur[k] = v
		}
	}
	return old, cur
}

func encode(m map[string]any) datatypes.JSON {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
