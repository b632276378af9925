package service

import (
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/internal/util"
	"alpha_edu_backend/pkg/logger"
	"alpha_edu_backend/pkg/monitoring"
	"time"

	"go.uber.org/zap"
)

const (
	// submitGracePeriod absorbs network latency on the final submit; a
	// submission inside duration+grace is on time.
	submitGracePeriod = 10 * time.Second

	// inactivityThreshold is the silence gap after which an unsubmitted
	// attempt is treated as abandoned and force-closed.
	inactivityThreshold = 5 * time.Minute
)

// Session status values reported to clients.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ExamSessionService drives the attempt lifecycle:
// not_started -> in_progress -> completed, with no path back. Every
// read-modify-write transition runs inside one transaction holding a
// row lock on the attempt, and the submitted flip is additionally
// guarded by a conditional update so concurrent submits resolve to
// exactly one winner.
type ExamSessionService struct {
	store repository.ExamStore
	now   func() time.Time
}

func NewExamSessionService(store repository.ExamStore) *ExamSessionService {
	return &ExamSessionService{store: store, now: time.Now}
}

type StartResult struct {
	AttemptID       uint `json:"attemptId"`
	TimeLeftSeconds int  `json:"time_left_seconds"`
}

type SubmitResult struct {
	LateSubmission bool `json:"late_submission"`
}

// QuestionView is a question as shown to a student mid-exam: the
// correct answer never leaves the server.
type QuestionView struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type SessionStatus struct {
	Status          string          `json:"exam_status"`
	TimeLeftSeconds int             `json:"time_left_seconds,omitempty"`
	Questions       []QuestionView  `json:"questions"`
	Answers         model.AnswerMap `json:"answers,omitempty"`
	HasAnalysis     bool            `json:"has_analysis,omitempty"`
	CachedAnalysis  model.RawJSON   `json:"cached_analysis,omitempty"`
}

func sanitizeQuestions(exam *model.Exam) []QuestionView {
	views := make([]QuestionView, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		views = append(views, QuestionView{ID: q.ID, Question: q.Question, Options: q.Options})
	}
	return views
}

// validateAnswers re-checks client answers against the authoritative
// question set. Unknown question ids and out-of-range option indexes
// are dropped silently, never trusted.
func validateAnswers(exam *model.Exam, answers model.AnswerMap) model.AnswerMap {
	valid := make(model.AnswerMap, len(answers))
	for qid, opt := range answers {
		q := exam.FindQuestion(qid)
		if q == nil {
			continue
		}
		if opt < 0 || opt >= len(q.Options) {
			continue
		}
		valid[qid] = opt
	}
	return valid
}

func (s *ExamSessionService) loadExamForGrade(examID uint, grade int) (*model.Exam, error) {
	exam, err := s.store.GetExam(examID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}
	if exam.Grade != grade {
		return nil, util.ErrWrongGrade
	}
	return exam, nil
}

// Start opens a new attempt. One attempt per (user, exam) total:
// any existing row, submitted or not, blocks a second start.
func (s *ExamSessionService) Start(userID, examID uint, grade int) (*StartResult, error) {
	exam, err := s.loadExamForGrade(examID, grade)
	if err != nil {
		return nil, err
	}

	var result *StartResult
	err = s.store.Transact(func(tx repository.ExamStore) error {
		existing, err := tx.GetLatestAttempt(userID, examID, true)
		if err != nil {
			return err
		}
		if existing != nil {
			return util.ErrAlreadyAttempted
		}

		attempt := &model.ExamAttempt{
			ExamID:    examID,
			UserID:    userID,
			StartTime: s.now(),
		}
		if err := tx.InsertAttempt(attempt); err != nil {
			return err
		}
		result = &StartResult{
			AttemptID:       attempt.ID,
			TimeLeftSeconds: exam.Duration * 60,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("exam session started",
		zap.Uint("user_id", userID), zap.Uint("exam_id", examID), zap.Uint("attempt_id", result.AttemptID))
	return result, nil
}

// SaveProgress autosaves answers and the behavioral action log on the
// open attempt. Allowed only while unsubmitted; the condition is
// enforced again inside the UPDATE so a racing submit cannot be
// overwritten.
func (s *ExamSessionService) SaveProgress(userID, examID uint, grade int, answers model.AnswerMap, actions model.RawJSON) error {
	exam, err := s.loadExamForGrade(examID, grade)
	if err != nil {
		return err
	}

	return s.store.Transact(func(tx repository.ExamStore) error {
		attempt, err := tx.GetLatestAttempt(userID, examID, true)
		if err != nil {
			return err
		}
		if attempt == nil {
			return util.ErrAttemptNotFound
		}
		if attempt.Submitted {
			return util.ErrAlreadySubmitted
		}

		fields := map[string]interface{}{
			"answers": validateAnswers(exam, answers),
			"actions": actions,
		}
		rows, err := tx.UpdateUnsubmitted(attempt.ID, fields)
		if err != nil {
			return err
		}
		if rows == 0 {
			return util.ErrAlreadySubmitted
		}
		return nil
	})
}

// GetStatus reports where the session stands. The question views are
// part of every response; a completed attempt additionally carries the
// student's answers and the cached analysis report when one exists.
// An unsubmitted attempt whose newest action is older than the
// inactivity threshold is force-closed here, treating client
// disappearance as an implicit submission; an attempt with no actions
// at all is left open.
func (s *ExamSessionService) GetStatus(userID, examID uint, grade int) (*SessionStatus, error) {
	exam, err := s.loadExamForGrade(examID, grade)
	if err != nil {
		return nil, err
	}

	var status *SessionStatus
	err = s.store.Transact(func(tx repository.ExamStore) error {
		attempt, err := tx.GetLatestAttempt(userID, examID, true)
		if err != nil {
			return err
		}
		if attempt == nil {
			status = &SessionStatus{
				Status:          StatusNotStarted,
				TimeLeftSeconds: exam.Duration * 60,
				Questions:       sanitizeQuestions(exam),
			}
			return nil
		}
		if attempt.Submitted {
			status = &SessionStatus{
				Status:         StatusCompleted,
				Questions:      sanitizeQuestions(exam),
				Answers:        attempt.Answers,
				HasAnalysis:    attempt.AIAnalysis != "",
				CachedAnalysis: model.RawJSON(attempt.AIAnalysis),
			}
			return nil
		}

		now := s.now()
		if last := attempt.LastActivity(); !last.IsZero() && now.Sub(last) > inactivityThreshold {
			submittedAt := now
			rows, err := tx.UpdateUnsubmitted(attempt.ID, map[string]interface{}{
				"submitted":    true,
				"submitted_at": &submittedAt,
			})
			if err != nil {
				return err
			}
			if rows > 0 {
				late := now.Sub(attempt.StartTime) > time.Duration(exam.Duration)*time.Minute+submitGracePeriod
				monitoring.ExamSubmissions.WithLabelValues("auto", boolLabel(late)).Inc()
				logger.Log.Warn("exam session auto-closed after inactivity",
					zap.Uint("attempt_id", attempt.ID), zap.Duration("idle", now.Sub(last)))
			}
			status = &SessionStatus{
				Status:    StatusCompleted,
				Questions: sanitizeQuestions(exam),
				Answers:   attempt.Answers,
			}
			return nil
		}

		left := exam.Duration*60 - int(now.Sub(attempt.StartTime).Seconds())
		if left < 0 {
			left = 0
		}
		status = &SessionStatus{
			Status:          StatusInProgress,
			TimeLeftSeconds: left,
			Questions:       sanitizeQuestions(exam),
			Answers:         attempt.Answers,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Submit flips the attempt to submitted exactly once. A submission
// past duration+grace is still accepted, only annotated late; answers
// are never discarded over clock skew. Zero affected rows from the
// conditional update means a concurrent submit won the race.
func (s *ExamSessionService) Submit(userID, examID uint, grade int, answers model.AnswerMap, actions model.RawJSON) (*SubmitResult, error) {
	exam, err := s.loadExamForGrade(examID, grade)
	if err != nil {
		return nil, err
	}

	var result *SubmitResult
	err = s.store.Transact(func(tx repository.ExamStore) error {
		attempt, err := tx.GetLatestAttempt(userID, examID, true)
		if err != nil {
			return err
		}
		if attempt == nil {
			return util.ErrAttemptNotFound
		}
		if attempt.Submitted {
			return util.ErrAlreadySubmitted
		}

		now := s.now()
		elapsed := now.Sub(attempt.StartTime)
		late := elapsed > time.Duration(exam.Duration)*time.Minute+submitGracePeriod

		submittedAt := now
		fields := map[string]interface{}{
			"answers":      validateAnswers(exam, answers),
			"actions":      actions,
			"submitted":    true,
			"submitted_at": &submittedAt,
		}
		rows, err := tx.UpdateUnsubmitted(attempt.ID, fields)
		if err != nil {
			return err
		}
		if rows == 0 {
			return util.ErrSubmitConflict
		}

		monitoring.ExamSubmissions.WithLabelValues("manual", boolLabel(late)).Inc()
		logger.Log.Info("exam submitted",
			zap.Uint("attempt_id", attempt.ID), zap.Bool("late", late), zap.Duration("elapsed", elapsed))
		result = &SubmitResult{LateSubmission: late}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
