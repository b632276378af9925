package model

// Summary is one stored summarizer run over an uploaded document.
type Summary struct {
	BaseModel
	UserID      uint    `gorm:"not null;index" json:"userId"`
	FileName    string  `gorm:"size:255;not null" json:"fileName"`
	FileURL     string  `gorm:"size:512" json:"fileUrl"`
	DetailLevel string  `gorm:"size:20;not null;default:'medium'" json:"detailLevel"`
	Title       string  `gorm:"size:255" json:"title"`
	Content     string  `gorm:"type:longtext" json:"content"`
	KeyPoints   RawJSON `gorm:"type:json" json:"keyPoints"`
	ModelUsed   string  `gorm:"size:64" json:"modelUsed"`
}

func (Summary) TableName() string {
	return "summaries"
}
