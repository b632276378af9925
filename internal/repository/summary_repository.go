package repository

import (
	"alpha_edu_backend/internal/model"

	"gorm.io/gorm"
)

type SummaryRepository struct {
	DB *gorm.DB
}

func NewSummaryRepository(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{DB: db}
}

func (r *SummaryRepository) Create(s *model.Summary) error {
	return r.DB.Create(s).Error
}

func (r *SummaryRepository) ListByUser(userID uint, page, limit int) ([]model.Summary, int64, error) {
	var total int64
	q := r.DB.Model(&model.Summary{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var summaries []model.Summary
	offset := (page - 1) * limit
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&summaries).Error
	return summaries, total, err
}

func (r *SummaryRepository) CountByUser(userID uint) (int64, error) {
	var n int64
	err := r.DB.Model(&model.Summary{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
