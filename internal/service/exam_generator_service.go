package service

import (
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/internal/util"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strings"
)

var generatorRequiredFields = []string{"title", "questions"}

const (
	minGeneratedQuestions     = 5
	maxGeneratedQuestions     = 50
	defaultGeneratedQuestions = 10
	defaultDifficulty         = "medium"
)

var validDifficulties = map[string]bool{
	"easy": true, "medium": true, "hard": true, "mixed": true,
}

var validQuestionTypes = map[string]bool{
	"mcq": true, "true_false": true, "short_answer": true, "essay": true,
}

// ExamGeneratorService builds a practice exam out of an uploaded
// document or image.
type ExamGeneratorService struct {
	repo    *repository.GeneratedExamRepository
	storage *StorageService
	ai      *AIService
}

func NewExamGeneratorService(repo *repository.GeneratedExamRepository, storage *StorageService, ai *AIService) *ExamGeneratorService {
	return &ExamGeneratorService{repo: repo, storage: storage, ai: ai}
}

type GeneratedExamResult struct {
	Exam      *model.GeneratedExam `json:"exam"`
	Questions json.RawMessage      `json:"questions"`
	ModelUsed string               `json:"model_used"`
	Attempts  int                  `json:"attempts"`
}

// GenerateOptions are the caller's knobs, normalized before use:
// out-of-range counts and unknown difficulties or types fall back to
// defaults instead of failing the request.
type GenerateOptions struct {
	QuestionCount int
	Difficulty    string
	QuestionTypes []string
}

func (o *GenerateOptions) normalize() {
	if o.QuestionCount < minGeneratedQuestions || o.QuestionCount > maxGeneratedQuestions {
		o.QuestionCount = defaultGeneratedQuestions
	}
	if !validDifficulties[o.Difficulty] {
		o.Difficulty = defaultDifficulty
	}
	types := make([]string, 0, len(o.QuestionTypes))
	for _, t := range o.QuestionTypes {
		if validQuestionTypes[t] {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		types = []string{"mcq"}
	}
	o.QuestionTypes = types
}

func buildGeneratorPrompt(opts GenerateOptions) string {
	var b strings.Builder
	b.WriteString("إنت مدرس بيحضّر امتحانات. اقرا المحتوى التعليمي في الملف المرفق واعمل منه امتحان. ارجع JSON بس.\n\n")
	fmt.Fprintf(&b, "عدد الأسئلة: %d\n", opts.QuestionCount)
	fmt.Fprintf(&b, "مستوى الصعوبة: %s\n", opts.Difficulty)
	fmt.Fprintf(&b, "أنواع الأسئلة المطلوبة: %s\n\n", strings.Join(opts.QuestionTypes, ", "))
	b.WriteString("قواعد:\n")
	b.WriteString("- أسئلة الاختيار من متعدد (mcq) لازم يكون ليها 4 اختيارات بالظبط وحقل correct_answer برقم الاختيار الصح من 0 لـ 3.\n")
	b.WriteString("- أسئلة الصح والغلط (true_false) حقل correct_answer فيها true أو false.\n")
	b.WriteString("- الأسئلة المقالية (short_answer / essay) ليها حقل model_answer بإجابة نموذجية.\n")
	b.WriteString("- كل الأسئلة من المحتوى المرفق بس، من غير معلومات من بره.\n\n")
	b.WriteString("ارجع JSON بالشكل ده بالظبط:\n")
	b.WriteString(`{
  "title": "",
  "questions": [
    {"id": 1, "type": "mcq", "question": "", "options": ["", "", "", ""], "correct_answer": "0"}
  ]
}`)
	return b.String()
}

// Generate stores the upload, prompts the model for an exam and
// persists the generated question set for the user.
func (s *ExamGeneratorService) Generate(ctx context.Context, userID uint, header *multipart.FileHeader, opts GenerateOptions) (*GeneratedExamResult, error) {
	opts.normalize()

	stored, err := s.storage.StoreUpload(ctx, header)
	if err != nil {
		return nil, err
	}

	parts := []AIPart{
		{Text: buildGeneratorPrompt(opts)},
		{MIME: stored.ContentType, Data: stored.Data},
	}
	res, err := s.ai.GenerateJSON(ctx, parts, generatorRequiredFields)
	if err != nil {
		return nil, err
	}

	title, _ := res.Data["title"].(string)
	questionsJSON, err := json.Marshal(res.Data["questions"])
	if err != nil {
		return nil, err
	}
	typesJSON, _ := json.Marshal(opts.QuestionTypes)

	exam := &model.GeneratedExam{
		UserID:         userID,
		SourceFileName: stored.OriginalName,
		FileURL:        stored.URL,
		Title:          title,
		QuestionCount:  opts.QuestionCount,
		Difficulty:     opts.Difficulty,
		QuestionTypes:  typesJSON,
		Questions:      questionsJSON,
		ModelUsed:      res.ModelUsed,
	}
	if err := s.repo.Create(exam); err != nil {
		return nil, err
	}

	return &GeneratedExamResult{
		Exam:      exam,
		Questions: questionsJSON,
		ModelUsed: res.ModelUsed,
		Attempts:  res.TotalAttempts,
	}, nil
}

func (s *ExamGeneratorService) History(userID uint, page, limit int) ([]model.GeneratedExam, int64, error) {
	return s.repo.ListByUser(userID, page, limit)
}

func (s *ExamGeneratorService) Get(id, userID uint) (*model.GeneratedExam, error) {
	exam, err := s.repo.FindByID(id, userID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}
	return exam, nil
}
