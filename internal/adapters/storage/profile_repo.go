package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var _ ports.ProfileStore = (*SQLiteAdapter)(nil)

func (a *SQLiteAdapter) Get(ctx context.Context, userID string) (*domain.BehaviorProfile, error) {
	var model ProfileModel
	if err := a.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return profileToDomain(model)
}

func (a *SQLiteAdapter) Save(ctx context.Context, profile *domain.BehaviorProfile) error {
	model, err := profileToModel(profile)
	if err != nil {
		return err
	}
	return a.db.WithContext(ctx).Save(&model).Error
}

// AddKnownNetwork inserts prefix into the promoted set. Idempotent; a
// missing profile is an error because promotion presumes prior learning.
func (a *SQLiteAdapter) AddKnownNetwork(ctx context.Context, userID, prefix string) error {
	return a.mutateProfile(ctx, userID, func(p *domain.BehaviorProfile) bool {
		if p.KnowsNetwork(prefix) {
			return false
		}
		p.KnownNetworks = append(p.KnownNetworks, prefix)
		return true
	})
}

func (a *SQLiteAdapter) RemoveKnownNetworks(ctx context.Context, userID string, prefixes []string) error {
	drop := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		drop[p] = struct{}{}
	}
	return a.mutateProfile(ctx, userID, func(p *domain.BehaviorProfile) bool {
		kept := p.KnownNetworks[:0]
		for _, kn := range p.KnownNetworks {
			if _, gone := drop[kn]; !gone {
				kept = append(kept, kn)
			}
		}
		if len(kept) == len(p.KnownNetworks) {
			return false
		}
		p.KnownNetworks = kept
		return true
	})
}

func (a *SQLiteAdapter) SetDriftFlag(ctx context.Context, userID string, flagged bool) error {
	return a.mutateProfile(ctx, userID, func(p *domain.BehaviorProfile) bool {
		if p.DriftFlagged == flagged {
			return false
		}
		p.DriftFlagged = flagged
		return true
	})
}

// mutateProfile applies fn to the stored profile inside a transaction,
// persisting only when fn reports a change.
func (a *SQLiteAdapter) mutateProfile(ctx context.Context, userID string, fn func(*domain.BehaviorProfile) bool) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ProfileModel
		if err := tx.First(&model, "user_id = ?", userID).Error; err != nil {
			return err
		}
		profile, err := profileToDomain(model)
		if err != nil {
			return err
		}
		if !fn(profile) {
			return nil
		}
		updated, err := profileToModel(profile)
		if err != nil {
			return err
		}
		return tx.Save(&updated).Error
	})
}
