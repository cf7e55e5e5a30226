package store

import (
	"time"

	"gorm.io/gorm"
)

// SessionStatus is the backend lifecycle state of an interview session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// Ended reports whether the status is terminal.
func (s SessionStatus) Ended() bool { return s == StatusCompleted || s == StatusAbandoned }

// InterviewSession is one scheduled or running interview.
type InterviewSession struct {
	gorm.Model
	Token       string        `gorm:"not null;uniqueIndex" json:"token"`
	CandidateID uint          `gorm:"index" json:"candidateId"`
	Status      SessionStatus `gorm:"not null;default:pending;index" json:"status"`
	Invited     bool          `json:"invited"`
	RedirectURL string        `json:"redirectUrl,omitempty"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	EndedAt     *time.Time    `json:"endedAt,omitempty"`
	EndReason   string        `json:"endReason,omitempty"`

	QuestionsAnswered int     `gorm:"default:0" json:"questionsAnswered"`
	TurnCount         int     `gorm:"default:0" json:"turnCount"`
	ElapsedSeconds    int     `gorm:"default:0" json:"elapsedSeconds"`
	OverallScore      float64 `json:"overallScore"`
	TechnicalScore    float64 `json:"technicalScore"`
	Communication     float64 `json:"communicationScore"`
	Confidence        float64 `json:"confidenceScore"`
}

// Candidate holds the profile the interviewer tailors questions to.
type Candidate struct {
	gorm.Model
	Name       string `gorm:"not null" json:"name"`
	Email      string `gorm:"index" json:"email"`
	Skills     string `json:"skills"` // comma separated
	TargetRole string `json:"targetRole"`
	Language   string `json:"language"`
	ResumeText string `gorm:"type:text" json:"resumeText"`
}

// Migrate creates or updates the relational schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Candidate{}, &InterviewSession{})
}
