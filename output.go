package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-authgate/resume-cli/api"
)

const timeLayout = "2006-01-02 15:04"

// printer renders command results either as aligned text or as JSON.
type printer struct {
	w    io.Writer
	json bool
}

func (p printer) emit(v any, text func(w io.Writer) error) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(p.w)
}

func (p printer) user(u *api.User) error {
	return p.emit(u, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if u.ID != "" {
			fmt.Fprintf(tw, "ID:\t%s\n", u.ID)
		}
		fmt.Fprintf(tw, "Name:\t%s\n", u.Name)
		fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
		return tw.Flush()
	})
}

func (p printer) resumes(resumes []api.Resume) error {
	if resumes == nil {
		resumes = []api.Resume{}
	}
	return p.emit(resumes, func(w io.Writer) error {
		if len(resumes) == 0 {
			_, err := fmt.Fprintln(w, "No resumes uploaded yet.")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFILE\tUPLOADED\tSCORE\tLEVEL")
		for _, r := range resumes {
			score, level := "-", "-"
			if a := r.LatestAnalysis; a != nil {
				score = formatScore(a.TotalScore)
				level = orDash(a.Data.Profile.ExperienceLevel)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, path.Base(r.File), formatTime(r.UploadedAt), score, level)
		}
		return tw.Flush()
	})
}

func (p printer) resumeDetails(resumes []*api.Resume) error {
	return p.emit(resumes, func(w io.Writer) error {
		for i, r := range resumes {
			if i > 0 {
				fmt.Fprintln(w)
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Resume:\t%s\n", r.ID)
			fmt.Fprintf(tw, "File:\t%s\n", path.Base(r.File))
			fmt.Fprintf(tw, "Uploaded:\t%s\n", formatTime(r.UploadedAt))
			if a := r.LatestAnalysis; a != nil {
				fmt.Fprintf(tw, "Analysis:\tv%d, %s\n", a.Version, formatTime(a.CreatedAt))
				writeAnalysisData(tw, &a.Data)
			} else {
				fmt.Fprintln(tw, "Analysis:\tnone")
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p printer) analyses(analyses []api.Analysis) error {
	if analyses == nil {
		analyses = []api.Analysis{}
	}
	return p.emit(analyses, func(w io.Writer) error {
		if len(analyses) == 0 {
			_, err := fmt.Fprintln(w, "No analyses yet.")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tVERSION\tCREATED\tTOTAL\tHARD\tSOFT\tAI")
		for _, a := range analyses {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%t\n",
				a.ID, a.Version, formatTime(a.CreatedAt),
				formatScore(a.TotalScore), formatScore(a.HardScore), formatScore(a.SoftScore),
				a.AIEnabled)
		}
		return tw.Flush()
	})
}

func (p printer) analysis(data *api.AnalysisData) error {
	return p.emit(data, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeAnalysisData(tw, data)
		return tw.Flush()
	})
}

func writeAnalysisData(w io.Writer, d *api.AnalysisData) {
	fmt.Fprintf(w, "Final score:\t%s (confidence %s)\n",
		formatScore(d.Scores.Final), formatScore(d.Scores.Confidence))
	fmt.Fprintf(w, "Breakdown:\trule %s, semantic %s, experience %s\n",
		formatScore(d.Scores.Breakdown.Rule),
		formatScore(d.Scores.Breakdown.Semantic),
		formatScore(d.Scores.Breakdown.Experience))
	fmt.Fprintf(w, "Experience level:\t%s\n", orDash(d.Profile.ExperienceLevel))
	fmt.Fprintf(w, "Strong domains:\t%s\n", orDash(strings.Join(d.Profile.StrongDomains, ", ")))
	fmt.Fprintf(w, "Skills:\t%d unique, %d mentions, %d domains\n",
		d.SkillsSummary.TotalUnique, d.SkillsSummary.TotalMentions, d.SkillsSummary.DomainDiversity)
}

// sessionStatus is what `status` reports without touching the network.
type sessionStatus struct {
	APIURL        string     `json:"api_url"`
	Store         string     `json:"store"`
	LoggedIn      bool       `json:"logged_in"`
	AccessExpiry  *time.Time `json:"access_expires_at,omitempty"`
	AccessExpired bool       `json:"access_expired"`
	HasRefresh    bool       `json:"has_refresh_token"`
}

func (p printer) status(s sessionStatus) error {
	return p.emit(s, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "API:\t%s\n", s.APIURL)
		fmt.Fprintf(tw, "Store:\t%s\n", s.Store)
		switch {
		case !s.LoggedIn:
			fmt.Fprintln(tw, "Access token:\tnone")
		case s.AccessExpiry == nil:
			fmt.Fprintln(tw, "Access token:\tpresent")
		case s.AccessExpired:
			fmt.Fprintf(tw, "Access token:\texpired %s ago\n",
				time.Since(*s.AccessExpiry).Round(time.Second))
		default:
			fmt.Fprintf(tw, "Access token:\texpires in %s\n",
				time.Until(*s.AccessExpiry).Round(time.Second))
		}
		refresh := "none"
		if s.HasRefresh {
			refresh = "present"
		}
		fmt.Fprintf(tw, "Refresh token:\t%s\n", refresh)
		return tw.Flush()
	})
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
