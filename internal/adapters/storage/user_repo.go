package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var _ ports.UserRepository = (*SQLiteAdapter)(nil)

func (a *SQLiteAdapter) Create(ctx context.Context, user *domain.User) error {
	model := userToModel(user)
	return a.db.WithContext(ctx).Create(&model).Error
}

func (a *SQLiteAdapter) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var model UserModel
	if err := a.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return userToDomain(model), nil
}

// GetByIdentifier resolves a user by email, phone, or name, in that order
// of preference.
func (a *SQLiteAdapter) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	var model UserModel
	err := a.db.WithContext(ctx).
		Where("email = ? OR phone = ? OR name = ?", identifier, identifier, identifier).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return userToDomain(model), nil
}

// FindConflict returns an existing user sharing the email or phone, if any.
func (a *SQLiteAdapter) FindConflict(ctx context.Context, email, phone string) (*domain.User, error) {
	query := a.db.WithContext(ctx)
	switch {
	case email != "" && phone != "":
		query = query.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		query = query.Where("email = ?", email)
	case phone != "":
		query = query.Where("phone = ?", phone)
	default:
		return nil, nil
	}
	var model UserModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return userToDomain(model), nil
}

func (a *SQLiteAdapter) Update(ctx context.Context, user *domain.User) error {
	model := userToModel(user)
	return a.db.WithContext(ctx).Save(&model).Error
}

// AllUserIDs lists every user id; consumed by the background sweeps.
func (a *SQLiteAdapter) AllUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := a.db.WithContext(ctx).Model(&UserModel{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
