package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/clearstack/internal/model"
)

// DomainRepository loads the business records that event producers turn into payloads.
type DomainRepository interface {
	GetReview(ctx context.Context, id string) (*model.Review, error)
	GetPurchaseRequest(ctx context.Context, id string) (*model.PurchaseRequest, error)
	GetSoftwareUsage(ctx context.Context, id string) (*model.SoftwareUsage, error)
	GetContract(ctx context.Context, id string) (*model.Contract, error)
	ListReviewsSince(ctx context.Context, companyID string, since time.Time, limit int) ([]*model.Review, error)
	ListRequestsSince(ctx context.Context, companyID string, since time.Time, limit int) ([]*model.PurchaseRequest, error)
	ListActiveContracts(ctx context.Context, companyID string, limit int) ([]*model.Contract, error)
}

type domainRepository struct{ db *gorm.DB }

func NewDomainRepository(db *gorm.DB) DomainRepository { return &domainRepository{db: db} }

func (r *domainRepository) GetReview(ctx context.Context, id string) (*model.Review, error) {
	var v model.Review
	if err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *domainRepository) GetPurchaseRequest(ctx context.Context, id string) (*model.PurchaseRequest, error) {
	var v model.PurchaseRequest
	if err := r.db.WithContext(ctx).Preload("Requester").Where("id = ?", id).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *domainRepository) GetSoftwareUsage(ctx context.Context, id string) (*model.SoftwareUsage, error) {
	var v model.SoftwareUsage
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Software").
		Where("id = ?", id).
		First(&v).Error
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *domainRepository) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	var v model.Contract
	if err := r.db.WithContext(ctx).Preload("Software").Where("id = ?", id).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *domainRepository) ListReviewsSince(ctx context.Context, companyID string, since time.Time, limit int) ([]*model.Review, error) {
	var res []*model.Review
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("company_id = ? AND created_at >= ?", companyID, since.UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *domainRepository) ListRequestsSince(ctx context.Context, companyID string, since time.Time, limit int) ([]*model.PurchaseRequest, error) {
	var res []*model.PurchaseRequest
	err := r.db.WithContext(ctx).
		Preload("Requester").
		Where("company_id = ? AND created_at >= ?", companyID, since.UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *domainRepository) ListActiveContracts(ctx context.Context, companyID string, limit int) ([]*model.Contract, error) {
	var res []*model.Contract
	err := r.db.WithContext(ctx).
		Preload("Software").
		Where("company_id = ? AND status = ?", companyID, "active").
		Order("end_date ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}
