package api

import (
	"time"

	"golang.org/x/oauth2"
)

// User is the account behind the current session.
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LoginResult is the credential pair issued by the login endpoint.
type LoginResult struct {
	Token *oauth2.Token
	User  User
}

// SignupRequest creates a new account.
type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Resume is an uploaded resume with its most recent analysis.
type Resume struct {
	ID             string    `json:"id"`
	File           string    `json:"file"`
	UploadedAt     time.Time `json:"uploaded_at"`
	LatestAnalysis *Analysis `json:"latest_analysis"`
}

// Analysis is one stored evaluation of a resume.
type Analysis struct {
	ID         string       `json:"id"`
	Version    int          `json:"version"`
	HardScore  float64      `json:"hard_score"`
	SoftScore  float64      `json:"soft_score"`
	TotalScore float64      `json:"total_score"`
	JDText     string       `json:"jd_text"`
	AIEnabled  bool         `json:"ai_enabled"`
	CreatedAt  time.Time    `json:"created_at"`
	Data       AnalysisData `json:"data"`
}

// AnalysisData is the summary shown to the user, both for stored analyses
// and as the answer to a fresh upload.
type AnalysisData struct {
	Scores        Scores        `json:"scores"`
	Profile       Profile       `json:"profile"`
	SkillsSummary SkillsSummary `json:"skills_summary"`
	AnalyzedAt    time.Time     `json:"analyzed_at"`
}

type Scores struct {
	Final      float64   `json:"final"`
	Confidence float64   `json:"confidence"`
	Breakdown  Breakdown `json:"breakdown"`
}

type Breakdown struct {
	Rule       float64 `json:"rule"`
	Semantic   float64 `json:"semantic"`
	Experience float64 `json:"experience"`
}

type Profile struct {
	ExperienceLevel string   `json:"experience_level"`
	StrongDomains   []string `json:"strong_domains"`
}

type SkillsSummary struct {
	TotalUnique     int `json:"total_unique"`
	TotalMentions   int `json:"total_mentions"`
	DomainDiversity int `json:"domain_diversity"`
}

// AnalyzeRequest uploads a resume for evaluation.
type AnalyzeRequest struct {
	Path           string
	JobDescription string
	AIEnabled      bool
}

// page is a paginated list response.
type page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

type analyzeResponse struct {
	Success bool         `json:"success"`
	Data    AnalysisData `json:"data"`
}
