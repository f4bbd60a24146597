package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/go-authgate/resume-cli/credstore"
	"github.com/go-authgate/resume-cli/internal/fakeapi"
	"github.com/go-authgate/resume-cli/session"
)

const (
	testEmail    = "ada@example.com"
	testName     = "Ada"
	testPassword = "correct-horse"
)

type fixture struct {
	backend *fakeapi.Server
	server  *httptest.Server
	store   credstore.Store
	client  *Client
}

func newFixture(t *testing.T, opts ...fakeapi.Option) *fixture {
	t.Helper()

	backend := fakeapi.New(opts...)
	backend.AddUser(testEmail, testName, testPassword)

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	transport, err := retry.NewClient()
	require.NoError(t, err)

	store := credstore.NewMemoryStore()
	sc := session.New(store, transport,
		session.WithRefreshURL(server.URL+session.DefaultRefreshPath))

	client, err := New(server.URL, sc)
	require.NoError(t, err)

	return &fixture{backend: backend, server: server, store: store, client: client}
}

func (f *fixture) login(t *testing.T) *LoginResult {
	t.Helper()
	res, err := f.client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return res
}

func (f *fixture) stored(t *testing.T, kind credstore.Kind) string {
	t.Helper()
	token, _, err := f.store.Get(context.Background(), kind)
	require.NoError(t, err)
	return token
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNew_RejectsRelativeBaseURL(t *testing.T) {
	_, err := New("localhost:8000", nil)
	require.Error(t, err)
}

func TestLogin_StoresCredentialPair(t *testing.T) {
	f := newFixture(t)

	res := f.login(t)

	require.Equal(t, testEmail, res.User.Email)
	require.Equal(t, testName, res.User.Name)
	require.Equal(t, "Bearer", res.Token.TokenType)
	require.WithinDuration(t, time.Now().Add(5*time.Minute), res.Token.Expiry, time.Minute)

	require.Equal(t, res.Token.AccessToken, f.stored(t, credstore.Access))
	require.Equal(t, res.Token.RefreshToken, f.stored(t, credstore.Refresh))
}

func TestLogin_WrongPasswordIsNotRefreshed(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Login(context.Background(), testEmail, "wrong-password")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Contains(t, apiErr.Message, "No active account")
	require.Zero(t, f.backend.RefreshCalls())
	require.Empty(t, f.stored(t, credstore.Access))
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.client.Signup(ctx, SignupRequest{
		Email:    "grace@example.com",
		Name:     "Grace",
		Password: "long-enough-password",
	})
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", user.Email)

	_, err = f.client.Login(ctx, "grace@example.com", "long-enough-password")
	require.NoError(t, err)

	_, err = f.client.Signup(ctx, SignupRequest{Email: testEmail, Name: "Dup", Password: "short"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Fields, "password")
	require.Contains(t, apiErr.Fields, "email")
}

func TestMe_RefreshesExpiredAccessToken(t *testing.T) {
	f := newFixture(t)
	first := f.login(t)

	f.backend.ExpireAccessTokens()

	user, err := f.client.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, testEmail, user.Email)
	require.Equal(t, 1, f.backend.RefreshCalls())
	require.NotEqual(t, first.Token.AccessToken, f.stored(t, credstore.Access))
	require.Equal(t, first.Token.RefreshToken, f.stored(t, credstore.Refresh))
}

func TestMe_RotatedRefreshTokenIsStored(t *testing.T) {
	f := newFixture(t, fakeapi.WithRotation())
	first := f.login(t)

	f.backend.ExpireAccessTokens()

	_, err := f.client.Me(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Token.RefreshToken, f.stored(t, credstore.Refresh))
}

func TestConcurrentCallsShareOneRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.SeedResume(testEmail, "cv.pdf")
	f.backend.ExpireAccessTokens()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)

	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.client.Me(context.Background())
			} else {
				_, errs[i] = f.client.ListResumes(context.Background())
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "call %d", i)
	}
	// Calls that were sent after the refresh finished never saw a 401.
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestRejectedRefreshRequiresLogin(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.backend.RejectRefresh(true)
	f.backend.ExpireAccessTokens()

	_, err := f.client.Me(context.Background())
	require.ErrorIs(t, err, session.ErrAuthRequired)
	require.ErrorIs(t, err, session.ErrRefreshRejected)
	require.Empty(t, f.stored(t, credstore.Access))
	require.Empty(t, f.stored(t, credstore.Refresh))

	f.backend.RejectRefresh(false)
	f.login(t)
	_, err = f.client.Me(context.Background())
	require.NoError(t, err)
}

func TestMe_WithoutLogin(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Me(context.Background())

	require.ErrorIs(t, err, session.ErrAuthRequired)
	require.ErrorIs(t, err, session.ErrNoRefreshCredential)
	require.Zero(t, f.backend.RefreshCalls())
}

func TestListResumes_FollowsPagination(t *testing.T) {
	f := newFixture(t, fakeapi.WithPageSize(2))
	f.login(t)

	want := map[string]bool{}
	for _, name := range []string{"a.pdf", "b.pdf", "c.docx", "d.pdf", "e.pdf"} {
		want[f.backend.SeedResume(testEmail, name)] = true
	}

	resumes, err := f.client.ListResumes(context.Background())
	require.NoError(t, err)
	require.Len(t, resumes, 5)
	for _, res := range resumes {
		require.True(t, want[res.ID], "unexpected resume %s", res.ID)
		require.NotNil(t, res.LatestAnalysis)
	}
}

func TestListResumes_Empty(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resumes, err := f.client.ListResumes(context.Background())
	require.NoError(t, err)
	require.Empty(t, resumes)
}

func TestListAnalyses_AcceptsBareList(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.SeedResume(testEmail, "a.pdf")
	f.backend.SeedResume(testEmail, "b.pdf")

	analyses, err := f.client.ListAnalyses(context.Background())
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	require.NotEmpty(t, analyses[0].Data.Profile.ExperienceLevel)
}

func TestGetAndDeleteResume(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	id := f.backend.SeedResume(testEmail, "cv.pdf")
	ctx := context.Background()

	res, err := f.client.GetResume(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, res.ID)
	require.Equal(t, "/media/resumes/cv.pdf", res.File)

	require.NoError(t, f.client.DeleteResume(ctx, id))

	_, err = f.client.GetResume(ctx, id)
	require.True(t, IsNotFound(err), "got %v", err)

	err = f.client.DeleteResume(ctx, id)
	require.True(t, IsNotFound(err), "got %v", err)
}

func TestAnalyze_UploadsResume(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	path := writeFile(t, "resume.pdf", []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"))

	data, err := f.client.Analyze(context.Background(), AnalyzeRequest{
		Path:           path,
		JobDescription: "Go developer\nwith Kubernetes",
		AIEnabled:      true,
	})
	require.NoError(t, err)
	require.Positive(t, data.Scores.Final)
	require.NotEmpty(t, data.Profile.StrongDomains)
	require.False(t, data.AnalyzedAt.IsZero())

	resumes, err := f.client.ListResumes(context.Background())
	require.NoError(t, err)
	require.Len(t, resumes, 1)
	require.True(t, resumes[0].LatestAnalysis.AIEnabled)
	require.Equal(t, "Go developer with Kubernetes", resumes[0].LatestAnalysis.JDText)
}

func TestAnalyze_ReplaysUploadAfterRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.ExpireAccessTokens()
	path := writeFile(t, "resume.docx", []byte("PK\x03\x04 word/document.xml"))

	_, err := f.client.Analyze(context.Background(), AnalyzeRequest{Path: path})
	require.NoError(t, err)
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestReadUpload(t *testing.T) {
	oversized := filepath.Join(t.TempDir(), "big.pdf")
	fh, err := os.Create(oversized)
	require.NoError(t, err)
	require.NoError(t, fh.Truncate(MaxUploadSize+1))
	require.NoError(t, fh.Close())

	tests := []struct {
		name    string
		path    string
		wantErr error
		want    string
	}{
		{
			name: "pdf",
			path: writeFile(t, "cv.pdf", []byte("%PDF-1.7 body")),
			want: pdfContentType,
		},
		{
			name: "docx",
			path: writeFile(t, "CV.DOCX", []byte("PK\x03\x04 rest of archive")),
			want: docxContentType,
		},
		{
			name:    "text file",
			path:    writeFile(t, "cv.txt", []byte("plain")),
			wantErr: ErrUnsupportedFileType,
		},
		{
			name:    "renamed text file",
			path:    writeFile(t, "cv.pdf", []byte("just text pretending")),
			wantErr: ErrContentMismatch,
		},
		{
			name:    "too large",
			path:    oversized,
			wantErr: ErrFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upload, err := ReadUpload(tt.path)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, upload.ContentType)
		})
	}
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
		wantKeys []string
	}{
		{
			name:     "envelope",
			status:   http.StatusBadRequest,
			body:     `{"success":false,"error":{"code":"FILE_TOO_LARGE","message":"File size exceeds 5MB limit."}}`,
			wantCode: "FILE_TOO_LARGE",
			wantMsg:  "File size exceeds 5MB limit.",
		},
		{
			name:     "detail",
			status:   http.StatusUnauthorized,
			body:     `{"detail":"Given token not valid for any token type","code":"token_not_valid"}`,
			wantCode: "token_not_valid",
			wantMsg:  "Given token not valid for any token type",
		},
		{
			name:     "field errors",
			status:   http.StatusBadRequest,
			body:     `{"email":["This field is required."],"password":["Too short."]}`,
			wantMsg:  "validation failed",
			wantKeys: []string{"email", "password"},
		},
		{
			name:    "html",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantMsg: "<html>bad gateway</html>",
		},
		{
			name:    "empty",
			status:  http.StatusInternalServerError,
			wantMsg: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := decodeError(tt.status, []byte(tt.body))
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.wantCode, apiErr.Code)
			require.Equal(t, tt.wantMsg, apiErr.Message)
			for _, key := range tt.wantKeys {
				require.Contains(t, apiErr.Fields, key)
				require.Contains(t, apiErr.Error(), key)
			}
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("any-key"))
	require.NoError(t, err)

	got, err := TokenExpiry(signed)
	require.NoError(t, err)
	require.True(t, got.Equal(exp), "got %v, want %v", got, exp)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "someone",
	}).SignedString([]byte("any-key"))
	require.NoError(t, err)
	_, err = TokenExpiry(noExp)
	require.True(t, errors.Is(err, ErrNoExpiry))

	_, err = TokenExpiry("not-a-jwt")
	require.Error(t, err)
}
