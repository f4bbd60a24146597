package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxUploadSize matches the backend's limit.
const MaxUploadSize = 5 << 20

const (
	pdfContentType  = "application/pdf"
	docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Upload is a validated resume file ready to send.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReadUpload loads path and applies the backend's upload rules locally:
// .pdf or .docx only, at most MaxUploadSize bytes, and content that looks
// like the extension claims.
func ReadUpload(path string) (*Upload, error) {
	name := filepath.Base(path)

	var contentType, sniffed string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		contentType, sniffed = pdfContentType, "application/pdf"
	case ".docx":
		// docx is a zip container
		contentType, sniffed = docxContentType, "application/zip"
	default:
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFileType)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxUploadSize {
		return nil, fmt.Errorf("%s (%d bytes): %w", name, info.Size(), ErrFileTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if got := http.DetectContentType(data); got != sniffed {
		return nil, fmt.Errorf("%s looks like %s: %w", name, got, ErrContentMismatch)
	}

	return &Upload{Name: name, ContentType: contentType, Data: data}, nil
}

// Analyze uploads a resume and returns the evaluation summary.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisData, error) {
	upload, err := ReadUpload(req.Path)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeUpload(upload, req)
	if err != nil {
		return nil, err
	}

	data, err := c.fetch(ctx, http.MethodPost, c.URL(analyzePath), bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}

	var resp analyzeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &resp.Data, nil
}

func encodeUpload(upload *Upload, req AnalyzeRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, upload.Name))
	header.Set("Content-Type", upload.ContentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(upload.Data)); err != nil {
		return nil, "", err
	}

	if req.JobDescription != "" {
		if err := mw.WriteField("job_description", req.JobDescription); err != nil {
			return nil, "", err
		}
	}
	if err := mw.WriteField("ai_enabled", strconv.FormatBool(req.AIEnabled)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
