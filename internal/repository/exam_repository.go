package repository

import (
	"alpha_edu_backend/internal/model"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExamStore is the slice of the repository the exam session state
// machine and the analyzer depend on. Transact runs the callback with a
// store whose operations share one transaction, so row locks taken by
// GetLatestAttempt(forUpdate=true) hold until the callback returns.
type ExamStore interface {
	GetExam(id uint) (*model.Exam, error)
	GetLatestAttempt(userID, examID uint, forUpdate bool) (*model.ExamAttempt, error)
	GetAttempt(id uint) (*model.ExamAttempt, error)
	InsertAttempt(attempt *model.ExamAttempt) error
	UpdateUnsubmitted(id uint, fields map[string]interface{}) (int64, error)
	SaveAnalysis(id uint, raw string) error
	Transact(fn func(store ExamStore) error) error
}

// ExamRepository persists exam definitions and attempt rows. Attempt
// mutations are conditional updates qualified by the pre-transition
// state (submitted = 0); the caller decides what zero affected rows
// means. Transact hands out a tx-scoped repository so a read-modify-write
// sequence shares one transaction and its row locks.
type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) GetExam(id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.First(&exam, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) ListExamsByGrade(grade int) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.Where("grade = ?", grade).Order("created_at desc").Find(&exams).Error
	return exams, err
}

func (r *ExamRepository) CreateExam(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) DeleteExam(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", id).Delete(&model.ExamAttempt{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Exam{}, id).Error
	})
}

func (r *ExamRepository) ListExams(page, limit int) ([]model.Exam, int64, error) {
	var total int64
	if err := r.DB.Model(&model.Exam{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var exams []model.Exam
	offset := (page - 1) * limit
	err := r.DB.Order("created_at desc").Offset(offset).Limit(limit).Find(&exams).Error
	return exams, total, err
}

// GetLatestAttempt returns the newest attempt row for (user, exam), or
// nil when none exists. With forUpdate set the row is locked for the
// rest of the surrounding transaction.
func (r *ExamRepository) GetLatestAttempt(userID, examID uint, forUpdate bool) (*model.ExamAttempt, error) {
	q := r.DB.Where("user_id = ? AND exam_id = ?", userID, examID).Order("id desc")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var attempt model.ExamAttempt
	err := q.First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *ExamRepository) GetAttempt(id uint) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.First(&attempt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *ExamRepository) InsertAttempt(attempt *model.ExamAttempt) error {
	return r.DB.Create(attempt).Error
}

// UpdateUnsubmitted applies fields to an attempt only while it is still
// open. The WHERE clause is the correctness mechanism against a
// check-then-write race; zero affected rows means the attempt was
// submitted concurrently.
func (r *ExamRepository) UpdateUnsubmitted(id uint, fields map[string]interface{}) (int64, error) {
	res := r.DB.Model(&model.ExamAttempt{}).
		Where("id = ? AND submitted = ?", id, false).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// SaveAnalysis caches the structured AI report on a submitted attempt.
func (r *ExamRepository) SaveAnalysis(id uint, raw string) error {
	return r.DB.Model(&model.ExamAttempt{}).Where("id = ?", id).
		Update("ai_analysis", raw).Error
}

// ListSubmittedAttempts returns every submitted attempt for a user,
// oldest first.
func (r *ExamRepository) ListSubmittedAttempts(userID uint) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	err := r.DB.Where("user_id = ? AND submitted = ?", userID, true).
		Order("id asc").Find(&attempts).Error
	return attempts, err
}

// CountAttemptsByUser reports how many submitted attempts a user has.
func (r *ExamRepository) CountAttemptsByUser(userID uint) (int64, error) {
	var n int64
	err := r.DB.Model(&model.ExamAttempt{}).
		Where("user_id = ? AND submitted = ?", userID, true).Count(&n).Error
	return n, err
}

func (r *ExamRepository) Transact(fn func(store ExamStore) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&ExamRepository{DB: tx})
	})
}
