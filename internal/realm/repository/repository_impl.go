package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/realm/domain"
	"github.com/smallbiznis/bazaar/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, realm domain.Realm) error {
	err := r.db.WithContext(ctx).Create(&realm).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateRealm
	}
	return err
}

func (r *repository) FindByID(ctx context.Context, realmID string) (*domain.Realm, error) {
	var realm domain.Realm
	err := r.db.WithContext(ctx).
		Where("realm_id = ?", realmID).
		First(&realm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &realm, nil
}

func (r *repository) FindByIDs(ctx context.Context, realmIDs []string) ([]domain.Realm, error) {
	if len(realmIDs) == 0 {
		return []domain.Realm{}, nil
	}
	var realms []domain.Realm
	err := r.db.WithContext(ctx).
		Where("realm_id IN ?", realmIDs).
		Order("realm_id ASC").
		Find(&realms).Error
	return realms, err
}

func (r *repository) ListByOwner(ctx context.Context, ownerUserID snowflake.ID) ([]domain.Realm, error) {
	var realms []domain.Realm
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at ASC, realm_id ASC").
		Find(&realms).Error
	return realms, err
}

func (r *repository) Delete(ctx context.Context, realmID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("realm_id = ?", realmID).
		Delete(&domain.Realm{})
	return res.RowsAffected > 0, res.Error
}
