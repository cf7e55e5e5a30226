package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
)

// Candidates resolves the candidate profile behind a session token.
type Candidates struct {
	DB *gorm.DB
}

func (c *Candidates) Create(ctx context.Context, cand *Candidate) error {
	if cand.Name == "" {
		return errors.New("name required")
	}
	return c.DB.WithContext(ctx).Create(cand).Error
}

// Profile implements agent.ProfileProvider.
func (c *Candidates) Profile(ctx context.Context, token string) (agent.CandidateProfile, error) {
	var cand Candidate
	err := c.DB.WithContext(ctx).
		Joins("JOIN interview_sessions ON interview_sessions.candidate_id = candidates.id AND interview_sessions.deleted_at IS NULL").
		Where("interview_sessions.token = ?", token).
		First(&cand).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return agent.CandidateProfile{}, ErrSessionNotFound
	}
	if err != nil {
		return agent.CandidateProfile{}, err
	}
	return agent.CandidateProfile{
		Name:       cand.Name,
		Skills:     splitSkills(cand.Skills),
		ResumeText: cand.ResumeText,
		TargetRole: cand.TargetRole,
		Language:   cand.Language,
	}, nil
}

func splitSkills(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
