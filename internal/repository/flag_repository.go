package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/clearstack/internal/model"
)

type FlagRepository interface {
	// Find returns the row for key in the given scope; a nil companyID selects the global row.
	Find(ctx context.Context, key string, companyID *string) (*model.FeatureFlag, error)
	ListGlobal(ctx context.Context) ([]*model.FeatureFlag, error)
	ListByCompany(ctx context.Context, companyID string) ([]*model.FeatureFlag, error)
	// CreateIfMissing inserts flag unless a row already exists for its scope.
	CreateIfMissing(ctx context.Context, flag *model.FeatureFlag) (bool, error)
	Upsert(ctx context.Context, key string, companyID *string, enabled bool) (*model.FeatureFlag, error)
}

type flagRepository struct{ db *gorm.DB }

func NewFlagRepository(db *gorm.DB) FlagRepository { return &flagRepository{db: db} }

func scoped(db *gorm.DB, key string, companyID *string) *gorm.DB {
	db = db.Where("key = ?", key)
	if companyID == nil {
		return db.Where("company_id IS NULL")
	}
	return db.Where("company_id = ?", *companyID)
}

func (r *flagRepository) Find(ctx context.Context, key string, companyID *string) (*model.FeatureFlag, error) {
	var f model.FeatureFlag
	if err := scoped(r.db.WithContext(ctx), key, companyID).First(&f).Error; err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (r *flagRepository) ListGlobal(ctx context.Context) ([]*model.FeatureFlag, error) {
	var res []*model.FeatureFlag
	err := r.db.WithContext(ctx).Where("company_id IS NULL").Order("key").Find(&res).Error
	return res, err
}

func (r *flagRepository) ListByCompany(ctx context.Context, companyID string) ([]*model.FeatureFlag, error) {
	var res []*model.FeatureFlag
	err := r.db.WithContext(ctx).Where("company_id = ?", companyID).Order("key").Find(&res).Error
	return res, err
}

func (r *flagRepository) CreateIfMissing(ctx context.Context, flag *model.FeatureFlag) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := scoped(tx.Model(&model.FeatureFlag{}), flag.Key, flag.CompanyID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return nil
		}
		if flag.ID == "" {
			flag.ID = uuid.New().String()
		}
		// 并发初始化时唯一键冲突视为已存在
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(flag)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})
	return created, err
}

func (r *flagRepository) Upsert(ctx context.Context, key string, companyID *string, enabled bool) (*model.FeatureFlag, error) {
	var out *model.FeatureFlag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f model.FeatureFlag
		err := scoped(tx, key, companyID).First(&f).Error
		switch {
		case err == nil:
			if err := tx.Model(&f).Update("enabled", enabled).Error; err != nil {
				return err
			}
			f.Enabled = enabled
		case translate(err) == ErrNotFound:
			f = model.FeatureFlag{ID: uuid.New().String(), Key: key, CompanyID: companyID, Enabled: enabled}
			if err := tx.Create(&f).Error; err != nil {
				return err
			}
		default:
			return err
		}
		out = &f
		return nil
	})
	return out, err
}
