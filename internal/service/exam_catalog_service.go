package service

import (
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/internal/util"
)

// ExamCatalogService serves the exam listings: the grade-filtered
// student view with per-exam attempt status, and the admin CRUD over
// exam definitions.
type ExamCatalogService struct {
	repo *repository.ExamRepository
}

func NewExamCatalogService(repo *repository.ExamRepository) *ExamCatalogService {
	return &ExamCatalogService{repo: repo}
}

type ExamListItem struct {
	ID            uint   `json:"id"`
	Title         string `json:"title"`
	Duration      int    `json:"duration"`
	QuestionCount int    `json:"question_count"`
	Status        string `json:"status"`
}

// ListForStudent returns the exams for the student's grade, each
// annotated with where that student's attempt stands.
func (s *ExamCatalogService) ListForStudent(userID uint, grade int) ([]ExamListItem, error) {
	exams, err := s.repo.ListExamsByGrade(grade)
	if err != nil {
		return nil, err
	}

	items := make([]ExamListItem, 0, len(exams))
	for _, exam := range exams {
		status := StatusNotStarted
		attempt, err := s.repo.GetLatestAttempt(userID, exam.ID, false)
		if err != nil {
			return nil, err
		}
		if attempt != nil {
			if attempt.Submitted {
				status = StatusCompleted
			} else {
				status = StatusInProgress
			}
		}
		items = append(items, ExamListItem{
			ID:            exam.ID,
			Title:         exam.Title,
			Duration:      exam.Duration,
			QuestionCount: len(exam.Questions),
			Status:        status,
		})
	}
	return items, nil
}

func (s *ExamCatalogService) Create(exam *model.Exam) error {
	if err := exam.Validate(); err != nil {
		return err
	}
	return s.repo.CreateExam(exam)
}

func (s *ExamCatalogService) List(page, limit int) ([]model.Exam, int64, error) {
	return s.repo.ListExams(page, limit)
}

func (s *ExamCatalogService) Delete(id uint) error {
	exam, err := s.repo.GetExam(id)
	if err != nil {
		return err
	}
	if exam == nil {
		return util.ErrExamNotFound
	}
	return s.repo.DeleteExam(id)
}
