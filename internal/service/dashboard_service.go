package service

import (
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/pkg/logger"
	"math"

	"go.uber.org/zap"
)

// DashboardService assembles the per-user activity overview out of
// the other repositories.
type DashboardService struct {
	examRepo    *repository.ExamRepository
	summaryRepo *repository.SummaryRepository
	genRepo     *repository.GeneratedExamRepository
}

func NewDashboardService(examRepo *repository.ExamRepository, summaryRepo *repository.SummaryRepository, genRepo *repository.GeneratedExamRepository) *DashboardService {
	return &DashboardService{examRepo: examRepo, summaryRepo: summaryRepo, genRepo: genRepo}
}

type DashboardOverview struct {
	ExamsTaken     int64   `json:"exams_taken"`
	AverageScore   float64 `json:"average_score"`
	Summaries      int64   `json:"summaries"`
	GeneratedExams int64   `json:"generated_exams"`
}

// Overview computes the counters and the average accuracy across the
// user's submitted attempts. An attempt whose exam was deleted is
// skipped rather than failing the whole view.
func (s *DashboardService) Overview(userID uint) (*DashboardOverview, error) {
	overview := &DashboardOverview{}

	attempts, err := s.examRepo.ListSubmittedAttempts(userID)
	if err != nil {
		return nil, err
	}
	overview.ExamsTaken = int64(len(attempts))

	var total float64
	var scored int
	for _, attempt := range attempts {
		exam, err := s.examRepo.GetExam(attempt.ExamID)
		if err != nil {
			return nil, err
		}
		if exam == nil {
			logger.Log.Warn("attempt references missing exam",
				zap.Uint("attempt_id", attempt.ID), zap.Uint("exam_id", attempt.ExamID))
			continue
		}
		stats := scoreAttempt(exam, attempt.Answers)
		total += stats.Accuracy
		scored++
	}
	if scored > 0 {
		overview.AverageScore = math.Round(total/float64(scored)*100) / 100
	}

	if overview.Summaries, err = s.summaryRepo.CountByUser(userID); err != nil {
		return nil, err
	}
	if overview.GeneratedExams, err = s.genRepo.CountByUser(userID); err != nil {
		return nil, err
	}
	return overview, nil
}
