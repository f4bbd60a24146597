package session

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Record captures an outbound request so it can be sent again. Records are
// values; Next returns a copy for the replay instead of mutating the
// original, so the attempt count of a record never changes.
type Record struct {
	ID      string
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Attempt int
}

// NewRecord reads and closes req.Body so the request can be rebuilt later.
func NewRecord(req *http.Request) (Record, error) {
	if req.URL == nil {
		return Record{}, fmt.Errorf("request has no URL")
	}

	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return Record{}, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	id := req.Header.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	return Record{
		ID:     id,
		Method: method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	}, nil
}

// Next returns the record for the replay of r.
func (r Record) Next() Record {
	next := r
	next.Header = r.Header.Clone()
	next.Attempt = r.Attempt + 1
	return next
}

// Replayed reports whether r is itself a replay.
func (r Record) Replayed() bool {
	return r.Attempt > 0
}

func (r Record) bodyReader() io.Reader {
	if len(r.Body) == 0 {
		return nil
	}
	return bytes.NewReader(r.Body)
}
