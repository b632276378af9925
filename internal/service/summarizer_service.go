package service

import (
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/repository"
	"alpha_edu_backend/internal/util"
	"alpha_edu_backend/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strings"

	"go.uber.org/zap"
)

var summaryRequiredFields = []string{"is_educational", "summary", "key_points", "title"}

var detailLevels = map[string]string{
	"brief":    "ملخص قصير ومركز في النقاط الأساسية بس",
	"medium":   "ملخص متوازن يغطي الأفكار الرئيسية بشرح مختصر",
	"detailed": "ملخص مفصل يشرح كل فكرة مع أمثلة لو موجودة في المحتوى",
}

const defaultDetailLevel = "medium"

// SummarizerService turns an uploaded document or image into a stored
// Arabic study summary.
type SummarizerService struct {
	repo    *repository.SummaryRepository
	storage *StorageService
	ai      *AIService
}

func NewSummarizerService(repo *repository.SummaryRepository, storage *StorageService, ai *AIService) *SummarizerService {
	return &SummarizerService{repo: repo, storage: storage, ai: ai}
}

type SummaryResult struct {
	Summary   *model.Summary `json:"summary"`
	KeyPoints []string       `json:"key_points"`
	ModelUsed string         `json:"model_used"`
	Attempts  int            `json:"attempts"`
}

func buildSummaryPrompt(detailLevel string) string {
	var b strings.Builder
	b.WriteString("إنت مساعد تعليمي بيلخص مواد دراسية لطلبة المدارس. اقرا الملف المرفق وارجع JSON بس.\n\n")
	fmt.Fprintf(&b, "مستوى التفصيل المطلوب: %s.\n\n", detailLevels[detailLevel])
	b.WriteString("لو المحتوى مش تعليمي (صورة شخصية، ميمز، إيصال، أي حاجة مالهاش علاقة بالمذاكرة) رجّع is_educational بقيمة false وسيب باقي الحقول فاضية.\n\n")
	b.WriteString("ارجع JSON بالشكل ده بالظبط:\n")
	b.WriteString(`{
  "is_educational": true,
  "title": "",
  "summary": "",
  "key_points": [""]
}`)
	return b.String()
}

// Summarize validates and stores the upload, runs the summarization
// prompt with the file embedded inline, and persists the result.
// Non-educational content is rejected and its stored object removed.
func (s *SummarizerService) Summarize(ctx context.Context, userID uint, header *multipart.FileHeader, detailLevel string) (*SummaryResult, error) {
	if _, ok := detailLevels[detailLevel]; !ok {
		detailLevel = defaultDetailLevel
	}

	stored, err := s.storage.StoreUpload(ctx, header)
	if err != nil {
		return nil, err
	}

	parts := []AIPart{
		{Text: buildSummaryPrompt(detailLevel)},
		{MIME: stored.ContentType, Data: stored.Data},
	}
	res, err := s.ai.GenerateJSON(ctx, parts, summaryRequiredFields)
	if err != nil {
		return nil, err
	}

	if edu, ok := res.Data["is_educational"].(bool); ok && !edu {
		if derr := s.storage.Delete(ctx, stored.ObjectName); derr != nil {
			logger.Log.Warn("failed to remove rejected upload",
				zap.String("object", stored.ObjectName), zap.Error(derr))
		}
		return nil, util.ErrNotEducational
	}

	title, _ := res.Data["title"].(string)
	content, _ := res.Data["summary"].(string)
	keyPoints := stringSlice(res.Data["key_points"])
	keyPointsJSON, _ := json.Marshal(keyPoints)

	summary := &model.Summary{
		UserID:      userID,
		FileName:    stored.OriginalName,
		FileURL:     stored.URL,
		DetailLevel: detailLevel,
		Title:       title,
		Content:     content,
		KeyPoints:   keyPointsJSON,
		ModelUsed:   res.ModelUsed,
	}
	if err := s.repo.Create(summary); err != nil {
		return nil, err
	}

	return &SummaryResult{
		Summary:   summary,
		KeyPoints: keyPoints,
		ModelUsed: res.ModelUsed,
		Attempts:  res.TotalAttempts,
	}, nil
}

func (s *SummarizerService) History(userID uint, page, limit int) ([]model.Summary, int64, error) {
	return s.repo.ListByUser(userID, page, limit)
}

// stringSlice coerces a decoded JSON array into []string, skipping
// non-string members.
func stringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
