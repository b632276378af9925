package repository

import (
	"alpha_edu_backend/internal/model"
	"errors"

	"gorm.io/gorm"
)

type GeneratedExamRepository struct {
	DB *gorm.DB
}

func NewGeneratedExamRepository(db *gorm.DB) *GeneratedExamRepository {
	return &GeneratedExamRepository{DB: db}
}

func (r *GeneratedExamRepository) Create(ge *model.GeneratedExam) error {
	return r.DB.Create(ge).Error
}

func (r *GeneratedExamRepository) FindByID(id, userID uint) (*model.GeneratedExam, error) {
	var ge model.GeneratedExam
	err := r.DB.Where("id = ? AND user_id = ?", id, userID).First(&ge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ge, nil
}

func (r *GeneratedExamRepository) ListByUser(userID uint, page, limit int) ([]model.GeneratedExam, int64, error) {
	var total int64
	q := r.DB.Model(&model.GeneratedExam{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var exams []model.GeneratedExam
	offset := (page - 1) * limit
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&exams).Error
	return exams, total, err
}

func (r *GeneratedExamRepository) CountByUser(userID uint) (int64, error) {
	var n int64
	err := r.DB.Model(&model.GeneratedExam{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
