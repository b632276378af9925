package model

// GeneratedExam is an AI-generated practice exam built from an uploaded
// source document. Questions keep the raw model output shape since the
// set of question types is wider than the hosted-exam MCQ format.
type GeneratedExam struct {
	BaseModel
	UserID         uint    `gorm:"not null;index" json:"userId"`
	SourceFileName string  `gorm:"size:255;not null" json:"sourceFileName"`
	FileURL        string  `gorm:"size:512" json:"fileUrl"`
	Title          string  `gorm:"size:255" json:"title"`
	QuestionCount  int     `gorm:"not null" json:"questionCount"`
	Difficulty     string  `gorm:"size:20;not null;default:'mixed'" json:"difficulty"`
	QuestionTypes  RawJSON `gorm:"type:json" json:"questionTypes"`
	Questions      RawJSON `gorm:"type:json" json:"questions"`
	ModelUsed      string  `gorm:"size:64" json:"modelUsed"`
}

func (GeneratedExam) TableName() string {
	return "generated_exams"
}
