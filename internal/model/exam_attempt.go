package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// AnswerMap maps question id -> chosen option index. Stored as a JSON
// object, so keys are serialized as strings.
type AnswerMap map[int]int

func (m AnswerMap) Value() (driver.Value, error) {
	obj := make(map[string]int, len(m))
	for k, v := range m {
		obj[strconv.Itoa(k)] = v
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *AnswerMap) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for AnswerMap")
	}
	var obj map[string]int
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	out := make(AnswerMap, len(obj))
	for k, v := range obj {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[id] = v
	}
	*m = out
	return nil
}

// ExamAttempt is one student's run at one exam. At most one unsubmitted
// attempt may exist per (user, exam); once Submitted flips to true the
// row is immutable except for the cached AIAnalysis.
type ExamAttempt struct {
	BaseModel
	ExamID      uint       `gorm:"not null;index:idx_exam_user" json:"examId"`
	UserID      uint       `gorm:"not null;index:idx_exam_user" json:"userId"`
	StartTime   time.Time  `gorm:"not null" json:"startTime"`
	Submitted   bool       `gorm:"not null;default:false" json:"submitted"`
	SubmittedAt *time.Time `json:"submittedAt"`
	Answers     AnswerMap  `gorm:"type:json" json:"answers"`
	Actions     RawJSON    `gorm:"type:json" json:"actions"`
	AIAnalysis  string     `gorm:"type:longtext" json:"-"`
}

func (ExamAttempt) TableName() string {
	return "exam_results"
}

// actionStamp reads just the timestamp out of one behavioral event.
// Everything else in the log is opaque until analysis time.
type actionStamp struct {
	Timestamp int64 `json:"timestamp"` // epoch milliseconds
}

// LastActivity returns the newest action timestamp, or the zero time
// when the log is empty or carries no usable timestamps.
func (a *ExamAttempt) LastActivity() time.Time {
	if len(a.Actions) == 0 {
		return time.Time{}
	}
	var stamps []actionStamp
	if err := json.Unmarshal(a.Actions, &stamps); err != nil {
		return time.Time{}
	}
	var latest int64
	for _, s := range stamps {
		if s.Timestamp > latest {
			latest = s.Timestamp
		}
	}
	if latest == 0 {
		return time.Time{}
	}
	return time.UnixMilli(latest)
}
