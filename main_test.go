package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-authgate/resume-cli/api"
	"github.com/go-authgate/resume-cli/internal/fakeapi"
	"github.com/go-authgate/resume-cli/session"
)

const (
	testEmail    = "ada@example.com"
	testName     = "Ada"
	testPassword = "correct-horse"
)

type cliFixture struct {
	backend   *fakeapi.Server
	server    *httptest.Server
	tokenFile string
}

// newCLIFixture starts a fake backend and points the CLI configuration at
// it through the environment.
func newCLIFixture(t *testing.T, opts ...fakeapi.Option) *cliFixture {
	t.Helper()

	backend := fakeapi.New(opts...)
	backend.AddUser(testEmail, testName, testPassword)

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	tokenFile := filepath.Join(t.TempDir(), "tokens.json")
	t.Setenv("API_URL", server.URL)
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("TOKEN_FILE", tokenFile)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CONFIG_PATH", "")

	return &cliFixture{backend: backend, server: server, tokenFile: tokenFile}
}

// execute runs one CLI invocation and returns what it wrote to stdout and
// stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (f *cliFixture) login(t *testing.T) {
	t.Helper()
	if _, stderr, err := execute(t, testPassword+"\n", "login", "--email", testEmail); err != nil {
		t.Fatalf("login failed: %v\n%s", err, stderr)
	}
}

func TestLogin_StoresCredentials(t *testing.T) {
	f := newCLIFixture(t)

	_, stderr, err := execute(t, testPassword+"\n", "login", "--email", testEmail)
	if err != nil {
		t.Fatalf("login failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Logged in as Ada (ada@example.com)") {
		t.Errorf("stderr missing login confirmation:\n%s", stderr)
	}

	data, err := os.ReadFile(f.tokenFile)
	if err != nil {
		t.Fatalf("Failed to read token file: %v", err)
	}
	if !strings.Contains(string(data), f.server.URL) {
		t.Errorf("token file is not keyed by API URL:\n%s", data)
	}
}

func TestLogin_PromptsForEmail(t *testing.T) {
	newCLIFixture(t)

	_, stderr, err := execute(t, testEmail+"\n"+testPassword+"\n", "login")
	if err != nil {
		t.Fatalf("login failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Email:") {
		t.Errorf("stderr missing email prompt:\n%s", stderr)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newCLIFixture(t)

	_, stderr, err := execute(t, "wrong\n", "login", "--email", testEmail)
	if err == nil {
		t.Fatal("expected login to fail")
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Errorf("err = %v, want 401 APIError", err)
	}
	if f.backend.RefreshCalls() != 0 {
		t.Errorf("refresh calls = %d, want 0", f.backend.RefreshCalls())
	}
	if !strings.Contains(stderr, "Error:") {
		t.Errorf("stderr missing error:\n%s", stderr)
	}
}

func TestMe_RefreshesExpiredAccessToken(t *testing.T) {
	f := newCLIFixture(t)
	f.login(t)
	f.backend.ExpireAccessTokens()

	stdout, stderr, err := execute(t, "", "me")
	if err != nil {
		t.Fatalf("me failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, testEmail) {
		t.Errorf("stdout missing email:\n%s", stdout)
	}
	if !strings.Contains(stderr, "refreshing") {
		t.Errorf("stderr missing refresh notice:\n%s", stderr)
	}
	if got := f.backend.RefreshCalls(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestMe_JSONOutput(t *testing.T) {
	f := newCLIFixture(t)
	f.login(t)

	stdout, stderr, err := execute(t, "", "--json", "me")
	if err != nil {
		t.Fatalf("me failed: %v\n%s", err, stderr)
	}

	var user api.User
	if err := json.Unmarshal([]byte(stdout), &user); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if user.Email != testEmail || user.Name != testName {
		t.Errorf("user = %+v", user)
	}
}

func TestResumesShow_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	f := newCLIFixture(t)
	ids := []string{
		f.backend.SeedResume(testEmail, "one.pdf"),
		f.backend.SeedResume(testEmail, "two.pdf"),
		f.backend.SeedResume(testEmail, "three.docx"),
	}
	f.login(t)
	f.backend.ExpireAccessTokens()

	stdout, stderr, err := execute(t, "", append([]string{"resumes", "show"}, ids...)...)
	if err != nil {
		t.Fatalf("resumes show failed: %v\n%s", err, stderr)
	}
	for _, id := range ids {
		if !strings.Contains(stdout, id) {
			t.Errorf("stdout missing resume %s:\n%s", id, stdout)
		}
	}
	if got := f.backend.RefreshCalls(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestResumesList(t *testing.T) {
	f := newCLIFixture(t, fakeapi.WithPageSize(2))
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		f.backend.SeedResume(testEmail, name)
	}
	f.login(t)

	stdout, stderr, err := execute(t, "", "resumes", "list")
	if err != nil {
		t.Fatalf("resumes list failed: %v\n%s", err, stderr)
	}
	for _, name := range []string{"ID", "a.pdf", "b.pdf", "c.pdf"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("stdout missing %q:\n%s", name, stdout)
		}
	}
	if !strings.Contains(stderr, "3 resume(s)") {
		t.Errorf("stderr missing summary:\n%s", stderr)
	}
}

func TestResumesDelete(t *testing.T) {
	f := newCLIFixture(t)
	id := f.backend.SeedResume(testEmail, "old.pdf")
	f.login(t)

	if _, _, err := execute(t, "n\n", "resumes", "delete", id); err == nil {
		t.Fatal("expected declined confirmation to abort")
	}

	_, stderr, err := execute(t, "", "resumes", "delete", "--yes", id)
	if err != nil {
		t.Fatalf("delete failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Resume "+id+" deleted") {
		t.Errorf("stderr missing deletion notice:\n%s", stderr)
	}

	_, _, err = execute(t, "", "resumes", "show", id)
	if !api.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestAnalyze(t *testing.T) {
	f := newCLIFixture(t)
	f.login(t)

	path := filepath.Join(t.TempDir(), "resume.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := execute(t, "", "analyze", path, "--jd", "Go developer")
	if err != nil {
		t.Fatalf("analyze failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "Final score:") {
		t.Errorf("stdout missing score:\n%s", stdout)
	}
	if !strings.Contains(stderr, "Uploading resume.pdf") {
		t.Errorf("stderr missing upload notice:\n%s", stderr)
	}

	stdout, _, err = execute(t, "", "analyses", "list")
	if err != nil {
		t.Fatalf("analyses list failed: %v", err)
	}
	if !strings.Contains(stdout, "VERSION") {
		t.Errorf("stdout missing analyses table:\n%s", stdout)
	}
}

func TestAnalyze_RejectsUnsupportedFile(t *testing.T) {
	f := newCLIFixture(t)
	f.login(t)

	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := execute(t, "", "analyze", path)
	if !errors.Is(err, api.ErrUnsupportedFileType) {
		t.Errorf("err = %v, want ErrUnsupportedFileType", err)
	}
}

func TestRejectedRefresh_RequiresLogin(t *testing.T) {
	f := newCLIFixture(t)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.RejectRefresh(true)

	_, stderr, err := execute(t, "", "me")
	if !errors.Is(err, session.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if !strings.Contains(stderr, "resume-cli login") {
		t.Errorf("stderr missing login hint:\n%s", stderr)
	}

	stdout, _, err := execute(t, "", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(stdout, "none") {
		t.Errorf("credentials were not cleared:\n%s", stdout)
	}
}

func TestStatusAndLogout(t *testing.T) {
	f := newCLIFixture(t)

	stdout, _, err := execute(t, "", "--json", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var before sessionStatus
	if err := json.Unmarshal([]byte(stdout), &before); err != nil {
		t.Fatalf("status is not JSON: %v\n%s", err, stdout)
	}
	if before.LoggedIn || before.HasRefresh {
		t.Errorf("status before login = %+v", before)
	}

	f.login(t)
	stdout, _, err = execute(t, "", "--json", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var after sessionStatus
	if err := json.Unmarshal([]byte(stdout), &after); err != nil {
		t.Fatalf("status is not JSON: %v\n%s", err, stdout)
	}
	if !after.LoggedIn || !after.HasRefresh || after.AccessExpiry == nil || after.AccessExpired {
		t.Errorf("status after login = %+v", after)
	}
	if after.APIURL != f.server.URL {
		t.Errorf("api_url = %q, want %q", after.APIURL, f.server.URL)
	}

	if _, stderr, err := execute(t, "", "logout"); err != nil {
		t.Fatalf("logout failed: %v\n%s", err, stderr)
	}
	if _, _, err := execute(t, "", "me"); !errors.Is(err, session.ErrAuthRequired) {
		t.Errorf("me after logout err = %v, want ErrAuthRequired", err)
	}
}

func TestMetricsFile(t *testing.T) {
	f := newCLIFixture(t)
	metricsFile := filepath.Join(t.TempDir(), "resume_cli.prom")
	t.Setenv("METRICS_FILE", metricsFile)

	f.login(t)
	f.backend.ExpireAccessTokens()
	if _, stderr, err := execute(t, "", "me"); err != nil {
		t.Fatalf("me failed: %v\n%s", err, stderr)
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("Failed to read metrics file: %v", err)
	}
	if !strings.Contains(string(data), `resume_cli_refreshes_total{outcome="succeeded"} 1`) {
		t.Errorf("metrics file missing refresh counter:\n%s", data)
	}
}
