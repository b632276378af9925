package service

import (
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/internal/util"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeExamStore holds one exam and at most one attempt in memory and
// mimics the conditional-update semantics of the real repository.
type fakeExamStore struct {
	exam    *model.Exam
	attempt *model.ExamAttempt

	// forceSubmitRace makes UpdateUnsubmitted report zero affected
	// rows even though the in-memory attempt looks open, simulating a
	// concurrent submit winning between the read and the write.
	forceSubmitRace bool
}

func (f *fakeExamStore) GetExam(id uint) (*model.Exam, error) {
	if f.exam == nil || f.exam.ID != id {
		return nil, nil
	}
	return f.exam, nil
}

func (f *fakeExamStore) GetLatestAttempt(userID, examID uint, forUpdate bool) (*model.ExamAttempt, error) {
	if f.attempt == nil || f.attempt.UserID != userID || f.attempt.ExamID != examID {
		return nil, nil
	}
	copied := *f.attempt
	return &copied, nil
}

func (f *fakeExamStore) GetAttempt(id uint) (*model.ExamAttempt, error) {
	if f.attempt == nil || f.attempt.ID != id {
		return nil, nil
	}
	copied := *f.attempt
	return &copied, nil
}

func (f *fakeExamStore) InsertAttempt(attempt *model.ExamAttempt) error {
	attempt.ID = 1
	copied := *attempt
	f.attempt = &copied
	return nil
}

func (f *fakeExamStore) UpdateUnsubmitted(id uint, fields map[string]interface{}) (int64, error) {
	if f.forceSubmitRace {
		return 0, nil
	}
	if f.attempt == nil || f.attempt.ID != id || f.attempt.Submitted {
		return 0, nil
	}
	if v, ok := fields["answers"]; ok {
		f.attempt.Answers = v.(model.AnswerMap)
	}
	if v, ok := fields["actions"]; ok {
		f.attempt.Actions = v.(model.RawJSON)
	}
	if v, ok := fields["submitted"]; ok {
		f.attempt.Submitted = v.(bool)
	}
	if v, ok := fields["submitted_at"]; ok {
		f.attempt.SubmittedAt = v.(*time.Time)
	}
	return 1, nil
}

func (f *fakeExamStore) SaveAnalysis(id uint, raw string) error {
	if f.attempt != nil && f.attempt.ID == id {
		f.attempt.AIAnalysis = raw
	}
	return nil
}

func (f *fakeExamStore) Transact(fn func(store repository.ExamStore) error) error {
	return fn(f)
}

func newSessionFixture(t *testing.T) (*ExamSessionService, *fakeExamStore, time.Time) {
	t.Helper()
	exam := sampleExam()
	exam.ID = 10
	store := &fakeExamStore{exam: exam}
	svc := NewExamSessionService(store)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	return svc, store, t0
}

func actionsAt(ts time.Time) model.RawJSON {
	return model.RawJSON(fmt.Sprintf(`[{"type":"answer","timestamp":%d}]`, ts.UnixMilli()))
}

func TestStartCreatesAttempt(t *testing.T) {
	svc, store, t0 := newSessionFixture(t)

	result, err := svc.Start(7, 10, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TimeLeftSeconds != 30*60 {
		t.Fatalf("expected 1800 seconds, got %d", result.TimeLeftSeconds)
	}
	if store.attempt == nil || store.attempt.UserID != 7 || store.attempt.Submitted {
		t.Fatalf("attempt not created correctly: %+v", store.attempt)
	}
	if !store.attempt.StartTime.Equal(t0) {
		t.Fatalf("expected start time %v, got %v", t0, store.attempt.StartTime)
	}
}

func TestStartRejectsSecondAttempt(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := svc.Start(7, 10, 9); !errors.Is(err, util.ErrAlreadyAttempted) {
		t.Fatalf("expected ErrAlreadyAttempted, got %v", err)
	}
}

func TestStartRejectsAfterSubmission(t *testing.T) {
	svc, store, _ := newSessionFixture(t)

	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	store.attempt.Submitted = true
	if _, err := svc.Start(7, 10, 9); !errors.Is(err, util.ErrAlreadyAttempted) {
		t.Fatalf("expected ErrAlreadyAttempted after submission, got %v", err)
	}
}

func TestStartValidation(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	if _, err := svc.Start(7, 99, 9); !errors.Is(err, util.ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
	if _, err := svc.Start(7, 10, 11); !errors.Is(err, util.ErrWrongGrade) {
		t.Fatalf("expected ErrWrongGrade, got %v", err)
	}
}

func TestSaveProgressDropsInvalidAnswers(t *testing.T) {
	svc, store, _ := newSessionFixture(t)

	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	answers := model.AnswerMap{
		1:  0, // valid
		2:  9, // option index out of range
		99: 1, // unknown question id
	}
	if err := svc.SaveProgress(7, 10, 9, answers, nil); err != nil {
		t.Fatalf("save progress failed: %v", err)
	}

	saved := store.attempt.Answers
	if len(saved) != 1 {
		t.Fatalf("expected exactly one validated answer, got %v", saved)
	}
	if saved[1] != 0 {
		t.Fatalf("valid answer lost: %v", saved)
	}
}

func TestSaveProgressAfterSubmitFails(t *testing.T) {
	svc, store, _ := newSessionFixture(t)

	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	store.attempt.Submitted = true

	err := svc.SaveProgress(7, 10, 9, model.AnswerMap{1: 0}, nil)
	if !errors.Is(err, util.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSaveProgressWithoutStart(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	err := svc.SaveProgress(7, 10, 9, model.AnswerMap{1: 0}, nil)
	if !errors.Is(err, util.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestSubmitLateBoundary(t *testing.T) {
	// Duration 30m, grace 10s: 1810s elapsed is still on time, 1825s
	// is late. Both submissions are accepted.
	tests := []struct {
		name     string
		elapsed  time.Duration
		wantLate bool
	}{
		{name: "on time", elapsed: 20 * time.Minute, wantLate: false},
		{name: "boundary inclusive", elapsed: 1810 * time.Second, wantLate: false},
		{name: "past grace", elapsed: 1825 * time.Second, wantLate: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, t0 := newSessionFixture(t)
			if _, err := svc.Start(7, 10, 9); err != nil {
				t.Fatalf("start failed: %v", err)
			}

			svc.now = func() time.Time { return t0.Add(tc.elapsed) }
			result, err := svc.Submit(7, 10, 9, model.AnswerMap{1: 0}, nil)
			if err != nil {
				t.Fatalf("submit failed: %v", err)
			}
			if result.LateSubmission != tc.wantLate {
				t.Fatalf("late = %v, want %v", result.LateSubmission, tc.wantLate)
			}
			if !store.attempt.Submitted || store.attempt.SubmittedAt == nil {
				t.Fatalf("attempt not marked submitted: %+v", store.attempt)
			}
		})
	}
}

func TestSubmitIsOneWay(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.Submit(7, 10, 9, model.AnswerMap{1: 0}, nil); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if _, err := svc.Submit(7, 10, 9, model.AnswerMap{1: 1}, nil); !errors.Is(err, util.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted on second submit, got %v", err)
	}
}

func TestSubmitRaceSurfacesConflict(t *testing.T) {
	svc, store, _ := newSessionFixture(t)

	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// The attempt looks open at read time but the conditional update
	// affects zero rows.
	store.forceSubmitRace = true

	if _, err := svc.Submit(7, 10, 9, model.AnswerMap{1: 0}, nil); !errors.Is(err, util.ErrSubmitConflict) {
		t.Fatalf("expected ErrSubmitConflict, got %v", err)
	}
}

func TestGetStatusNotStarted(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	status, err := svc.GetStatus(7, 10, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != StatusNotStarted {
		t.Fatalf("expected not_started, got %s", status.Status)
	}
	if len(status.Questions) != 3 {
		t.Fatalf("expected questions in response, got %d", len(status.Questions))
	}
}

func TestGetStatusInactivityAutoClose(t *testing.T) {
	tests := []struct {
		name       string
		idle       time.Duration
		wantStatus string
	}{
		{name: "under threshold", idle: 299 * time.Second, wantStatus: StatusInProgress},
		{name: "over threshold", idle: 301 * time.Second, wantStatus: StatusCompleted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, t0 := newSessionFixture(t)
			if _, err := svc.Start(7, 10, 9); err != nil {
				t.Fatalf("start failed: %v", err)
			}
			store.attempt.Actions = actionsAt(t0)

			svc.now = func() time.Time { return t0.Add(tc.idle) }
			status, err := svc.GetStatus(7, 10, 9)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", status.Status, tc.wantStatus)
			}
			if tc.wantStatus == StatusCompleted && !store.attempt.Submitted {
				t.Fatal("auto-close did not mark the attempt submitted")
			}
		})
	}
}

func TestGetStatusNoActionsNeverAutoCloses(t *testing.T) {
	svc, store, t0 := newSessionFixture(t)
	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Hours of silence with an empty action log keeps the session open.
	svc.now = func() time.Time { return t0.Add(3 * time.Hour) }
	status, err := svc.GetStatus(7, 10, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", status.Status)
	}
	if store.attempt.Submitted {
		t.Fatal("attempt must not be auto-closed without actions")
	}
}

func TestGetStatusCompletedCarriesReviewPayload(t *testing.T) {
	svc, store, _ := newSessionFixture(t)
	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.Submit(7, 10, 9, model.AnswerMap{1: 0}, nil); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	status, err := svc.GetStatus(7, 10, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", status.Status)
	}
	if len(status.Questions) != 3 {
		t.Fatalf("completed response missing questions: %d", len(status.Questions))
	}
	if status.Answers[1] != 0 {
		t.Fatalf("completed response missing answers: %v", status.Answers)
	}
	if status.HasAnalysis || len(status.CachedAnalysis) != 0 {
		t.Fatalf("no analysis stored yet: has=%v cached=%q", status.HasAnalysis, status.CachedAnalysis)
	}

	report := `{"overall_summary":"كويس"}`
	if err := store.SaveAnalysis(store.attempt.ID, report); err != nil {
		t.Fatalf("save analysis failed: %v", err)
	}

	status, err = svc.GetStatus(7, 10, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.HasAnalysis {
		t.Fatal("expected has_analysis after a report is stored")
	}
	if string(status.CachedAnalysis) != report {
		t.Fatalf("cached report not inlined: %q", status.CachedAnalysis)
	}
}

func TestGetStatusCorrectAnswersNeverLeave(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	if _, err := svc.Start(7, 10, 9); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	status, err := svc.GetStatus(7, 10, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, q := range status.Questions {
		if len(q.Options) != 4 {
			t.Fatalf("question %d options corrupted", q.ID)
		}
		if q.Question == "" {
			t.Fatalf("question %d missing prompt", q.ID)
		}
	}
}
