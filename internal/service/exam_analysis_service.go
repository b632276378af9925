package service

import (
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/internal/util"
	"alpha_edu_backend/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// analysisRequiredFields is the response schema contract for the
// post-exam report; a payload missing any of these is rejected and
// retried upstream.
var analysisRequiredFields = []string{"score", "behavior_analysis", "recommendations", "overall_summary"}

// ExamAnalysisService scores a submitted attempt deterministically and
// layers an AI-generated behavioral report on top, cached verbatim on
// the attempt row so repeat requests cost nothing.
type ExamAnalysisService struct {
	store repository.ExamStore
	ai    *AIService
}

func NewExamAnalysisService(store repository.ExamStore, ai *AIService) *ExamAnalysisService {
	return &ExamAnalysisService{store: store, ai: ai}
}

// AnswerReview is one wrong or unanswered question in the score
// breakdown, with the texts the report needs.
type AnswerReview struct {
	QuestionID    int    `json:"question_id"`
	Question      string `json:"question"`
	YourAnswer    string `json:"your_answer,omitempty"`
	CorrectAnswer string `json:"correct_answer"`
}

// ExamStats is the deterministic phase output: three disjoint buckets
// plus the accuracy percentage.
type ExamStats struct {
	TotalQuestions int            `json:"total_questions"`
	CorrectCount   int            `json:"correct_count"`
	Wrong          []AnswerReview `json:"wrong"`
	Unanswered     []AnswerReview `json:"unanswered"`
	Accuracy       float64        `json:"accuracy"`
}

type AnalysisResult struct {
	Cached    bool                   `json:"cached"`
	Stats     *ExamStats             `json:"stats,omitempty"`
	Analysis  map[string]interface{} `json:"analysis"`
	ModelUsed string                 `json:"model_used,omitempty"`
	Attempts  int                    `json:"attempts,omitempty"`
}

// correctOptionIndex resolves the authoritative correct option. The
// stored correct answer drifted over time between an option index and
// the option text, so both shapes are honored: numeric in-range value
// wins, otherwise a case-insensitive text lookup over the options.
func correctOptionIndex(q *model.Question) int {
	ca := strings.TrimSpace(q.CorrectAnswer)
	if idx, err := strconv.Atoi(ca); err == nil && idx >= 0 && idx < len(q.Options) {
		return idx
	}
	for i, opt := range q.Options {
		if strings.EqualFold(strings.TrimSpace(opt), ca) {
			return i
		}
	}
	return -1
}

func correctOptionText(q *model.Question) string {
	if idx := correctOptionIndex(q); idx >= 0 {
		return q.Options[idx]
	}
	return q.CorrectAnswer
}

// isCorrect compares the chosen option against the correct one,
// falling back to direct text equality when the correct answer text
// matches no stored option.
func isCorrect(q *model.Question, chosen int) bool {
	if idx := correctOptionIndex(q); idx >= 0 {
		return chosen == idx
	}
	return strings.EqualFold(strings.TrimSpace(q.Options[chosen]), strings.TrimSpace(q.CorrectAnswer))
}

// scoreAttempt runs the deterministic phase over the validated answer
// set. Every question lands in exactly one bucket.
func scoreAttempt(exam *model.Exam, answers model.AnswerMap) *ExamStats {
	stats := &ExamStats{TotalQuestions: len(exam.Questions)}
	for i := range exam.Questions {
		q := &exam.Questions[i]
		chosen, answered := answers[q.ID]
		if !answered || chosen < 0 || chosen >= len(q.Options) {
			stats.Unanswered = append(stats.Unanswered, AnswerReview{
				QuestionID:    q.ID,
				Question:      q.Question,
				CorrectAnswer: correctOptionText(q),
			})
			continue
		}
		if isCorrect(q, chosen) {
			stats.CorrectCount++
			continue
		}
		stats.Wrong = append(stats.Wrong, AnswerReview{
			QuestionID:    q.ID,
			Question:      q.Question,
			YourAnswer:    q.Options[chosen],
			CorrectAnswer: correctOptionText(q),
		})
	}
	if stats.TotalQuestions > 0 {
		ratio := float64(stats.CorrectCount) / float64(stats.TotalQuestions) * 100
		stats.Accuracy = math.Round(ratio*100) / 100
	}
	return stats
}

func buildAnalysisPrompt(exam *model.Exam, stats *ExamStats, attempt *model.ExamAttempt) string {
	wrongJSON, _ := json.Marshal(stats.Wrong)
	unansweredJSON, _ := json.Marshal(stats.Unanswered)
	actions := "[]"
	if len(attempt.Actions) > 0 {
		actions = string(attempt.Actions)
	}

	var b strings.Builder
	b.WriteString("أنت مدرس خبير بتحلل أداء طالب في امتحان. حلل النتائج والسلوك دي وارجع JSON بس من غير أي كلام زيادة.\n\n")
	fmt.Fprintf(&b, "الامتحان: %s\n", exam.Title)
	fmt.Fprintf(&b, "عدد الأسئلة: %d | الإجابات الصحيحة: %d | نسبة الدقة: %.2f%%\n\n", stats.TotalQuestions, stats.CorrectCount, stats.Accuracy)
	fmt.Fprintf(&b, "الأسئلة الغلط (سؤال، إجابة الطالب، الإجابة الصح):\n%s\n\n", wrongJSON)
	fmt.Fprintf(&b, "الأسئلة اللي مجاوبهاش:\n%s\n\n", unansweredJSON)
	fmt.Fprintf(&b, "سجل تصرفات الطالب أثناء الامتحان (أحداث خام بتوقيت ميلي ثانية):\n%s\n\n", actions)
	b.WriteString("المطلوب:\n")
	b.WriteString("1. اشرح لكل سؤال غلط أو متساب ليه الإجابة الصح هي الصح، بأسلوب بسيط.\n")
	b.WriteString("2. حلل سلوك الطالب: سرعته، ثقته (عدد مرات تغيير الإجابة)، وطريقة تنقله بين الأسئلة.\n")
	b.WriteString("3. قيّم احتمال الغش بدرجة من أربعة: none أو low أو medium أو high، بناءً على أنماط زي الغياب الطويل عن الصفحة أو الإجابات المتتالية السريعة جدًا أو اللصق.\n")
	b.WriteString("4. رتب توصيات المذاكرة بالأولوية.\n\n")
	b.WriteString("ارجع JSON بالشكل ده بالظبط:\n")
	b.WriteString(`{
  "score": {"correct": 0, "total": 0, "percentage": 0},
  "question_reviews": [{"question_id": 1, "explanation": ""}],
  "behavior_analysis": {"speed": "", "confidence": "", "navigation": "", "cheating_suspicion": "none"},
  "recommendations": [""],
  "overall_summary": ""
}`)
	return b.String()
}

// Analyze returns the structured report for the student's submitted
// attempt, cached-then-computed. force recomputes even when a cached
// report exists.
func (s *ExamAnalysisService) Analyze(ctx context.Context, userID, examID uint, grade int, force bool) (*AnalysisResult, error) {
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

	attempt, err := s.store.GetLatestAttempt(userID, examID, false)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, util.ErrAttemptNotFound
	}
	if !attempt.Submitted {
		return nil, util.ErrNotSubmittedYet
	}

	stats := scoreAttempt(exam, attempt.Answers)

	if attempt.AIAnalysis != "" && !force {
		var cached map[string]interface{}
		if err := json.Unmarshal([]byte(attempt.AIAnalysis), &cached); err == nil {
			return &AnalysisResult{Cached: true, Stats: stats, Analysis: cached}, nil
		}
		// Corrupt cache falls through to a fresh run.
		logger.Log.Warn("cached analysis unreadable, recomputing", zap.Uint("attempt_id", attempt.ID))
	}

	prompt := buildAnalysisPrompt(exam, stats, attempt)
	res, err := s.ai.GenerateJSON(ctx, []AIPart{{Text: prompt}}, analysisRequiredFields)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveAnalysis(attempt.ID, res.Raw); err != nil {
		logger.Log.Error("failed to cache analysis", zap.Uint("attempt_id", attempt.ID), zap.Error(err))
	}

	return &AnalysisResult{
		Stats:     stats,
		Analysis:  res.Data,
		ModelUsed: res.ModelUsed,
		Attempts:  res.TotalAttempts,
	}, nil
}
