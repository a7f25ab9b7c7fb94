// Package repository provides the generic table primitives (insert, get,
// update, delete, index scan) that typed collections are built on.
package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/bazaar/pkg/db/option"
	"gorm.io/gorm"
)

type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	DB() *gorm.DB
	FindByID(ctx context.Context, id int64) (*T, error)
	Find(ctx context.Context, opts ...option.QueryOption) ([]T, error)
	Count(ctx context.Context, opts ...option.QueryOption) (int64, error)
	Create(ctx context.Context, resource *T) error
	Save(ctx context.Context, resource *T) error
	Delete(ctx context.Context, resource *T) error
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) DB() *gorm.DB {
	return r.db
}

// FindByID returns nil without error when no row matches.
func (r *store[T]) FindByID(ctx context.Context, id int64) (*T, error) {
	var result T
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Find(ctx context.Context, opts ...option.QueryOption) ([]T, error) {
	var result []T
	err := r.buildQuery(ctx, opts...).Find(&result).Error
	return result, err
}

func (r *store[T]) Count(ctx context.Context, opts ...option.QueryOption) (int64, error) {
	var count int64
	err := r.buildQuery(ctx, opts...).Count(&count).Error
	return count, err
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Save(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Save(resource).Error
}

func (r *store[T]) Delete(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Delete(resource).Error
}

func (r *store[T]) buildQuery(ctx context.Context, opts ...option.QueryOption) *gorm.DB {
	db := r.db.WithContext(ctx).Model(new(T))

	for _, opt := range opts {
		db = opt.Apply(db)
	}

	return db
}
