package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-authgate/resume-cli/api"
	"github.com/go-authgate/resume-cli/credstore"
)

// maxParallel bounds concurrent requests of multi-ID commands.
const maxParallel = 4

func (a *app) loginCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the credential pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			var err error
			if email == "" {
				if email, err = p.line("Email"); err != nil {
					return err
				}
			}
			password, err := p.password("Password")
			if err != nil {
				return err
			}

			return a.run(cmd, "Logging in", func(ctx context.Context, e *env) (string, error) {
				res, err := e.api.Login(ctx, email, password)
				if err != nil {
					return "", err
				}
				if res.User.Email == "" {
					res.User.Email = email
				}
				e.display.LoggedIn(res.User.Email, res.User.Name, res.Token.Expiry)
				if e.out.json {
					return "", e.out.user(&res.User)
				}
				return "Logged in", nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (prompted when omitted)")
	return cmd
}

func (a *app) signupCmd() *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			var err error
			if email == "" {
				if email, err = p.line("Email"); err != nil {
					return err
				}
			}
			if name == "" {
				if name, err = p.line("Name"); err != nil {
					return err
				}
			}
			password, err := p.newPassword()
			if err != nil {
				return err
			}

			return a.run(cmd, "Creating account", func(ctx context.Context, e *env) (string, error) {
				user, err := e.api.Signup(ctx, api.SignupRequest{
					Email:    email,
					Name:     name,
					Password: password,
				})
				if err != nil {
					return "", err
				}
				e.display.SignedUp(email)
				if e.out.json {
					return "", e.out.user(user)
				}
				return "Account created", nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (prompted when omitted)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name (prompted when omitted)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "Logging out", func(ctx context.Context, e *env) (string, error) {
				if err := e.api.Logout(ctx); err != nil {
					return "", err
				}
				e.display.LoggedOut()
				return "", nil
			})
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "Reading session", func(ctx context.Context, e *env) (string, error) {
				s, err := readStatus(ctx, e)
				if err != nil {
					return "", err
				}
				return "", e.out.status(s)
			})
		},
	}
}

func readStatus(ctx context.Context, e *env) (sessionStatus, error) {
	s := sessionStatus{APIURL: e.cfg.APIURL, Store: e.cfg.Store.Backend}

	access, ok, err := e.store.Get(ctx, credstore.Access)
	if err != nil {
		return s, fmt.Errorf("failed to read access token: %w", err)
	}
	if ok {
		s.LoggedIn = true
		if expiry, err := api.TokenExpiry(access); err == nil {
			s.AccessExpiry = &expiry
			s.AccessExpired = !time.Now().Before(expiry)
		}
	}

	_, s.HasRefresh, err = e.store.Get(ctx, credstore.Refresh)
	if err != nil {
		return s, fmt.Errorf("failed to read refresh token: %w", err)
	}
	return s, nil
}

func (a *app) meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "Fetching profile", func(ctx context.Context, e *env) (string, error) {
				user, err := e.api.Me(ctx)
				if err != nil {
					return "", err
				}
				return "", e.out.user(user)
			})
		},
	}
}

func (a *app) resumesCmd() *cobra.Command {
	resumesCmd := &cobra.Command{
		Use:     "resumes",
		Aliases: []string{"resume"},
		Short:   "Manage uploaded resumes",
		Long:    "Resume commands: list, show, delete",
	}

	resumesCmd.AddCommand(a.resumesListCmd())
	resumesCmd.AddCommand(a.resumesShowCmd())
	resumesCmd.AddCommand(a.resumesDeleteCmd())

	return resumesCmd
}

func (a *app) resumesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your resumes with their latest score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "Fetching resumes", func(ctx context.Context, e *env) (string, error) {
				resumes, err := e.api.ListResumes(ctx)
				if err != nil {
					return "", err
				}
				if err := e.out.resumes(resumes); err != nil {
					return "", err
				}
				return fmt.Sprintf("%d resume(s)", len(resumes)), nil
			})
		},
	}
}

func (a *app) resumesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>...",
		Short: "Show resumes and their latest analysis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			return a.run(cmd, "Fetching resumes", func(ctx context.Context, e *env) (string, error) {
				resumes := make([]*api.Resume, len(ids))

				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(maxParallel)
				for i, id := range ids {
					g.Go(func() error {
						r, err := e.api.GetResume(gctx, id)
						if err != nil {
							return fmt.Errorf("resume %s: %w", id, err)
						}
						resumes[i] = r
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return "", err
				}

				return "", e.out.resumeDetails(resumes)
			})
		},
	}
}

func (a *app) resumesDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete resumes and all their analyses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			if !yes {
				p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
				answer, err := p.line(fmt.Sprintf("Delete %d resume(s)? [y/N]", len(ids)))
				if err != nil {
					return err
				}
				if ans := strings.ToLower(answer); ans != "y" && ans != "yes" {
					return errors.New("aborted")
				}
			}

			return a.run(cmd, "Deleting resumes", func(ctx context.Context, e *env) (string, error) {
				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(maxParallel)
				for _, id := range ids {
					g.Go(func() error {
						if err := e.api.DeleteResume(gctx, id); err != nil {
							return fmt.Errorf("resume %s: %w", id, err)
						}
						e.display.Deleted(id)
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return "", err
				}
				return fmt.Sprintf("Deleted %d resume(s)", len(ids)), nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func (a *app) analysesCmd() *cobra.Command {
	analysesCmd := &cobra.Command{
		Use:     "analyses",
		Aliases: []string{"analysis"},
		Short:   "Browse stored analyses",
	}

	analysesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List analyses of all your resumes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "Fetching analyses", func(ctx context.Context, e *env) (string, error) {
				analyses, err := e.api.ListAnalyses(ctx)
				if err != nil {
					return "", err
				}
				if err := e.out.analyses(analyses); err != nil {
					return "", err
				}
				return fmt.Sprintf("%d analysis(es)", len(analyses)), nil
			})
		},
	})

	return analysesCmd
}

func (a *app) analyzeCmd() *cobra.Command {
	var jd, jdFile string
	var aiEnabled bool

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Upload a resume (.pdf or .docx) and score it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jd != "" && jdFile != "" {
				return errors.New("--jd and --jd-file are mutually exclusive")
			}
			if jdFile != "" {
				data, err := os.ReadFile(jdFile)
				if err != nil {
					return fmt.Errorf("failed to read job description: %w", err)
				}
				jd = string(data)
			}

			return a.run(cmd, "Analyzing resume", func(ctx context.Context, e *env) (string, error) {
				upload, err := api.ReadUpload(args[0])
				if err != nil {
					return "", err
				}
				e.display.Uploading(upload.Name, int64(len(upload.Data)))

				data, err := e.api.Analyze(ctx, api.AnalyzeRequest{
					Path:           args[0],
					JobDescription: jd,
					AIEnabled:      aiEnabled,
				})
				if err != nil {
					return "", err
				}
				if err := e.out.analysis(data); err != nil {
					return "", err
				}
				return fmt.Sprintf("Final score %s", formatScore(data.Scores.Final)), nil
			})
		},
	}

	cmd.Flags().StringVar(&jd, "jd", "", "Job description text")
	cmd.Flags().StringVar(&jdFile, "jd-file", "", "Read the job description from a file")
	cmd.Flags().BoolVar(&aiEnabled, "ai", false, "Request AI-assisted scoring")
	return cmd
}
