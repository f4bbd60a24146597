package fakeapi

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxUploadSize = 5 << 20

var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

type resume struct {
	ID         string
	Owner      string
	File       string
	UploadedAt time.Time
}

type analysis struct {
	ID          string
	ResumeID    string
	Version     int
	HardScore   float64
	SoftScore   float64
	TotalScore  float64
	Experience  float64
	JDText      string
	AIEnabled   bool
	CreatedAt   time.Time
	Domains     []string
	UniqueTotal int
}

// SeedResume stores a resume owned by email and one analysis of it.
func (s *Server) SeedResume(email, filename string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[strings.ToLower(email)]
	if u == nil {
		return ""
	}
	res, _ := s.storeResumeLocked(u, filename, 1024, "", false)
	return res.ID
}

func (s *Server) storeResumeLocked(
	u *user,
	filename string,
	size int64,
	jd string,
	aiEnabled bool,
) (*resume, *analysis) {
	now := time.Now().UTC()
	res := &resume{
		ID:         uuid.NewString(),
		Owner:      u.ID,
		File:       "/media/resumes/" + filepath.Base(filename),
		UploadedAt: now,
	}

	// Scores only need to be stable for a given upload.
	hard := float64(40 + size%50)
	soft := float64(30 + len(jd)%60)
	if aiEnabled {
		soft += 5
	}
	experience := float64(size % 100)

	an := &analysis{
		ID:          uuid.NewString(),
		ResumeID:    res.ID,
		Version:     1,
		HardScore:   hard,
		SoftScore:   soft,
		TotalScore:  math.Round((hard*0.6+soft*0.4)*100) / 100,
		Experience:  experience,
		JDText:      jd,
		AIEnabled:   aiEnabled,
		CreatedAt:   now,
		Domains:     []string{"backend", "cloud"},
		UniqueTotal: 12,
	}

	s.resumes = append(s.resumes, res)
	s.analyses = append(s.analyses, an)
	return res, an
}

func experienceLevel(score float64) string {
	switch {
	case score < 20:
		return "fresher"
	case score < 50:
		return "junior"
	case score < 75:
		return "mid-level"
	default:
		return "senior"
	}
}

func (a *analysis) data() map[string]any {
	return map[string]any{
		"scores": map[string]any{
			"final":      a.TotalScore,
			"confidence": 50,
			"breakdown": map[string]float64{
				"rule":       a.HardScore,
				"semantic":   a.SoftScore,
				"experience": a.Experience,
			},
		},
		"profile": map[string]any{
			"experience_level": experienceLevel(a.Experience),
			"strong_domains":   a.Domains,
		},
		"skills_summary": map[string]int{
			"total_unique":     a.UniqueTotal,
			"total_mentions":   a.UniqueTotal * 3,
			"domain_diversity": a.UniqueTotal,
		},
		"analyzed_at": a.CreatedAt.Format(time.RFC3339),
	}
}

func (a *analysis) view() map[string]any {
	return map[string]any{
		"id":          a.ID,
		"version":     a.Version,
		"hard_score":  a.HardScore,
		"soft_score":  a.SoftScore,
		"total_score": a.TotalScore,
		"jd_text":     a.JDText,
		"ai_enabled":  a.AIEnabled,
		"created_at":  a.CreatedAt.Format(time.RFC3339),
		"data":        a.data(),
	}
}

func (s *Server) resumeViewLocked(res *resume) map[string]any {
	var latest any
	for i := len(s.analyses) - 1; i >= 0; i-- {
		if s.analyses[i].ResumeID == res.ID {
			latest = s.analyses[i].view()
			break
		}
	}
	return map[string]any{
		"id":              res.ID,
		"file":            res.File,
		"uploaded_at":     res.UploadedAt.Format(time.RFC3339),
		"latest_analysis": latest,
	}
}

func (s *Server) ownedLocked(u *user) []*resume {
	var out []*resume
	for _, res := range s.resumes {
		if res.Owner == u.ID {
			out = append(out, res)
		}
	}
	return out
}

func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Invalid page."})
			return
		}
		page = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.ownedLocked(u)
	start := (page - 1) * s.pageSize
	if start > len(owned) || (start == len(owned) && page > 1) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Invalid page."})
		return
	}
	end := min(start+s.pageSize, len(owned))

	results := make([]map[string]any, 0, end-start)
	for _, res := range owned[start:end] {
		results = append(results, s.resumeViewLocked(res))
	}

	pageURL := func(n int) any {
		return fmt.Sprintf("http://%s%s?page=%d", r.Host, r.URL.Path, n)
	}
	var next, previous any
	if end < len(owned) {
		next = pageURL(page + 1)
	}
	if page > 1 {
		previous = pageURL(page - 1)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(owned),
		"next":     next,
		"previous": previous,
		"results":  results,
	})
}

func (s *Server) findResumeLocked(u *user, id string) (int, *resume) {
	for i, res := range s.resumes {
		if res.ID == id && res.Owner == u.ID {
			return i, res
		}
	}
	return -1, nil
}

func (s *Server) handleGetResume(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	_, res := s.findResumeLocked(u, id)
	if res == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No Resume matches the given query."})
		return
	}
	writeJSON(w, http.StatusOK, s.resumeViewLocked(res))
}

func (s *Server) handleDeleteResume(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	i, res := s.findResumeLocked(u, id)
	if res == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No Resume matches the given query."})
		return
	}
	s.resumes = append(s.resumes[:i], s.resumes[i+1:]...)

	kept := s.analyses[:0]
	for _, an := range s.analyses {
		if an.ResumeID != res.ID {
			kept = append(kept, an)
		}
	}
	s.analyses = kept

	w.WriteHeader(http.StatusNoContent)
}

// handleListAnalyses answers with a bare list, newest first.
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	owned := map[string]bool{}
	for _, res := range s.ownedLocked(u) {
		owned[res.ID] = true
	}

	out := []map[string]any{}
	for i := len(s.analyses) - 1; i >= 0; i-- {
		if owned[s.analyses[i].ResumeID] {
			out = append(out, s.analyses[i].view())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeFailure(w, http.StatusBadRequest, "NO_FILE", "No file uploaded.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "NO_FILE", "No file uploaded.")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" && ext != ".docx" {
		writeFailure(w, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "Only PDF and DOCX files are supported.")
		return
	}
	if !allowedContentTypes[header.Header.Get("Content-Type")] {
		writeFailure(w, http.StatusBadRequest, "INVALID_CONTENT_TYPE", "Invalid file content type.")
		return
	}
	size, _ := io.Copy(io.Discard, file)
	if size > maxUploadSize {
		writeFailure(w, http.StatusBadRequest, "FILE_TOO_LARGE", "File size exceeds 5MB limit.")
		return
	}

	jd := strings.TrimSpace(strings.ReplaceAll(r.FormValue("job_description"), "\n", " "))
	aiEnabled := strings.EqualFold(r.FormValue("ai_enabled"), "true")

	s.mu.Lock()
	_, an := s.storeResumeLocked(u, header.Filename, size, jd, aiEnabled)
	data := an.data()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}
