package service

import (
	"alpha_edu_backend/internal/model"
	"strings"
	"testing"
)

func sampleExam() *model.Exam {
	return &model.Exam{
		Title:    "امتحان تجريبي",
		Duration: 30,
		Grade:    9,
		Questions: model.QuestionList{
			{ID: 1, Question: "q1", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "0"},
			{ID: 2, Question: "q2", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "2"},
			{ID: 3, Question: "q3", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "1"},
		},
	}
}

func TestScoreAttemptBuckets(t *testing.T) {
	exam := sampleExam()
	// Question 1 answered correctly, question 2 answered wrong,
	// question 3 left unanswered.
	stats := scoreAttempt(exam, model.AnswerMap{1: 0, 2: 0})

	if stats.TotalQuestions != 3 {
		t.Fatalf("expected 3 total questions, got %d", stats.TotalQuestions)
	}
	if stats.CorrectCount != 1 {
		t.Fatalf("expected 1 correct, got %d", stats.CorrectCount)
	}
	if len(stats.Wrong) != 1 || stats.Wrong[0].QuestionID != 2 {
		t.Fatalf("expected question 2 in wrong bucket, got %+v", stats.Wrong)
	}
	if stats.Wrong[0].YourAnswer != "a" || stats.Wrong[0].CorrectAnswer != "c" {
		t.Fatalf("unexpected wrong texts: %+v", stats.Wrong[0])
	}
	if len(stats.Unanswered) != 1 || stats.Unanswered[0].QuestionID != 3 {
		t.Fatalf("expected question 3 unanswered, got %+v", stats.Unanswered)
	}
}

func TestScoreAttemptAccuracyRounding(t *testing.T) {
	exam := sampleExam()
	stats := scoreAttempt(exam, model.AnswerMap{1: 0})
	// 1/3 => 33.333...% rounded to two decimals.
	if stats.Accuracy != 33.33 {
		t.Fatalf("expected accuracy 33.33, got %v", stats.Accuracy)
	}

	stats = scoreAttempt(exam, model.AnswerMap{1: 0, 2: 2, 3: 1})
	if stats.Accuracy != 100 {
		t.Fatalf("expected accuracy 100, got %v", stats.Accuracy)
	}
}

func TestScoreAttemptEveryQuestionInOneBucket(t *testing.T) {
	exam := sampleExam()
	stats := scoreAttempt(exam, model.AnswerMap{2: 2})
	total := stats.CorrectCount + len(stats.Wrong) + len(stats.Unanswered)
	if total != stats.TotalQuestions {
		t.Fatalf("buckets not disjoint and complete: correct=%d wrong=%d unanswered=%d total=%d",
			stats.CorrectCount, len(stats.Wrong), len(stats.Unanswered), stats.TotalQuestions)
	}
}

func TestCorrectAnswerShapeDrift(t *testing.T) {
	options := []string{"Cairo", "Alexandria", "Luxor", "Aswan"}
	tests := []struct {
		name          string
		correctAnswer string
		chosen        int
		want          bool
	}{
		{name: "index match", correctAnswer: "1", chosen: 1, want: true},
		{name: "index mismatch", correctAnswer: "1", chosen: 0, want: false},
		{name: "text match", correctAnswer: "Luxor", chosen: 2, want: true},
		{name: "text match case-insensitive", correctAnswer: "luxor", chosen: 2, want: true},
		{name: "text mismatch", correctAnswer: "Luxor", chosen: 0, want: false},
		{name: "text with surrounding space", correctAnswer: " Aswan ", chosen: 3, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := &model.Question{ID: 1, Question: "q", Options: options, CorrectAnswer: tc.correctAnswer}
			if got := isCorrect(q, tc.chosen); got != tc.want {
				t.Fatalf("isCorrect(%q, %d) = %v, want %v", tc.correctAnswer, tc.chosen, got, tc.want)
			}
		})
	}
}

func TestCorrectOptionText(t *testing.T) {
	q := &model.Question{ID: 1, Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "3"}
	if got := correctOptionText(q); got != "d" {
		t.Fatalf("expected option text d, got %q", got)
	}

	q.CorrectAnswer = "b"
	if got := correctOptionText(q); got != "b" {
		t.Fatalf("expected option text b, got %q", got)
	}

	// A correct answer matching no option falls back to the raw value.
	q.CorrectAnswer = "elephant"
	if got := correctOptionText(q); got != "elephant" {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}

func TestBuildAnalysisPromptEmbedsBuckets(t *testing.T) {
	exam := sampleExam()
	attempt := &model.ExamAttempt{
		Answers: model.AnswerMap{1: 0, 2: 0},
		Actions: model.RawJSON(`[{"type":"answer_change","timestamp":1700000000000}]`),
	}
	stats := scoreAttempt(exam, attempt.Answers)
	prompt := buildAnalysisPrompt(exam, stats, attempt)

	for _, want := range []string{"امتحان تجريبي", "q2", "answer_change", "overall_summary", "cheating_suspicion"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
