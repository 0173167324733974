package credential

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// durable is the relational half of the store. It exists as an interface
// so the cache-side logic can be tested without a live Postgres.
type durable interface {
	// ActiveByCounterparty returns the counterparty's Active credential,
	// or nil when none exists.
	ActiveByCounterparty(ctx context.Context, counterparty string) (*AccessCredential, error)
	Create(ctx context.Context, cred *AccessCredential) error
	ByID(ctx context.Context, id string) (*AccessCredential, error)
	// MarkRevoked flips the credential's status; the usage counters and
	// token value are untouched.
	MarkRevoked(ctx context.Context, id string, at time.Time) error
	// RecordUsage inserts the usage row and bumps the credential's
	// counters in a single transaction.
	RecordUsage(ctx context.Context, token string, rec *UsageRecord) error
}

type gormDurable struct {
	db *gorm.DB
}

func (g *gormDurable) ActiveByCounterparty(ctx context.Context, counterparty string) (*AccessCredential, error) {
	var cred AccessCredential
	err := g.db.WithContext(ctx).
		Where("counterparty_id = ? AND status = ?", counterparty, StatusActive).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (g *gormDurable) Create(ctx context.Context, cred *AccessCredential) error {
	return g.db.WithContext(ctx).Create(cred).Error
}

func (g *gormDurable) ByID(ctx context.Context, id string) (*AccessCredential, error) {
	var cred AccessCredential
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (g *gormDurable) MarkRevoked(ctx context.Context, id string, at time.Time) error {
	return g.db.WithContext(ctx).Model(&AccessCredential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusRevoked,
			"revoked_at": at,
		}).Error
}

func (g *gormDurable) RecordUsage(ctx context.Context, token string, rec *UsageRecord) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cred AccessCredential
		if err := tx.Where("token = ?", token).First(&cred).Error; err != nil {
			return err
		}

		rec.CredentialID = cred.ID
		if err := tx.Create(rec).Error; err != nil {
			return err
		}

		return tx.Model(&cred).Updates(map[string]interface{}{
			"total_requests":        gorm.Expr("total_requests + 1"),
			"total_units_processed": gorm.Expr("total_units_processed + ?", rec.UnitsProcessed),
		}).Error
	})
}
