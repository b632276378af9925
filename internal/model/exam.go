package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Question is one multiple-choice item inside an exam. The id is stable
// and unique within the exam; clients submit answers keyed by it.
// CorrectAnswer historically holds either the option text or the option
// index as a string, so scoring tolerates both shapes.
type Question struct {
	ID            int      `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

type QuestionList []Question

func (q QuestionList) Value() (driver.Value, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (q *QuestionList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*q = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for QuestionList")
	}
	return json.Unmarshal(data, q)
}

// swagger:model Exam
type Exam struct {
	BaseModel
	Title     string       `gorm:"size:255;not null" json:"title"`
	Duration  int          `gorm:"not null" json:"duration"` // minutes
	Grade     int          `gorm:"not null;index" json:"grade"`
	Questions QuestionList `gorm:"type:json" json:"questions"`
}

func (Exam) TableName() string {
	return "exams"
}

// FindQuestion returns the question with the given id, or nil.
func (e *Exam) FindQuestion(id int) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// Validate checks the structural invariants of an exam definition:
// at least one question, exactly 4 options each, unique question ids
// and a correct-answer index inside [0,3] when numeric.
func (e *Exam) Validate() error {
	if e.Title == "" {
		return errors.New("exam title is required")
	}
	if e.Duration <= 0 {
		return errors.New("exam duration must be positive")
	}
	if len(e.Questions) == 0 {
		return errors.New("exam must contain at least one question")
	}
	seen := make(map[int]bool, len(e.Questions))
	for _, q := range e.Questions {
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %d", q.ID)
		}
		seen[q.ID] = true
		if len(q.Options) != 4 {
			return fmt.Errorf("question %d must have exactly 4 options, got %d", q.ID, len(q.Options))
		}
		if q.Question == "" {
			return fmt.Errorf("question %d has empty prompt", q.ID)
		}
		var idx int
		if _, err := fmt.Sscanf(q.CorrectAnswer, "%d", &idx); err == nil {
			if idx < 0 || idx > 3 {
				return fmt.Errorf("question %d correct index %d out of range", q.ID, idx)
			}
		}
	}
	return nil
}
