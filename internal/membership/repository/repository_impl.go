package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/membership/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

func (r *repository) InsertIgnore(ctx context.Context, m *domain.Member) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "realm_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(m).Error
}

func (r *repository) Find(ctx context.Context, realmID string, userID snowflake.ID) (*domain.Member, error) {
	var m domain.Member
	err := r.db.WithContext(ctx).
		Where("realm_id = ? AND user_id = ?", realmID, userID).
		First(&m).Error
	return found(&m, err)
}

func (r *repository) FindForUpdate(ctx context.Context, realmID string, userID snowflake.ID) (*domain.Member, error) {
	var m domain.Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("realm_id = ? AND user_id = ?", realmID, userID).
		First(&m).Error
	return found(&m, err)
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Member, error) {
	var m domain.Member
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	return found(&m, err)
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.Member, error) {
	var members []domain.Member
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("realm_id ASC").
		Find(&members).Error
	return members, err
}

func (r *repository) ListByRealm(ctx context.Context, realmID string) ([]domain.Member, error) {
	var members []domain.Member
	err := r.db.WithContext(ctx).
		Where("realm_id = ?", realmID).
		Order("id ASC").
		Find(&members).Error
	return members, err
}

func (r *repository) Update(ctx context.Context, m *domain.Member) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *repository) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Member{}).Error
}

func found(m *domain.Member, err error) (*domain.Member, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}
