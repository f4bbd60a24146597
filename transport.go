package main

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

// newTransport returns the HTTP client every request goes through. Server
// errors and rate limiting are retried by go-httpretry; 401 handling is left
// to the session layer above it.
func newTransport() (*retry.Client, error) {
	baseHTTPClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableKeepAlives:   false,
		},
	}

	// Wrap with retry logic using go-httpretry
	client, err := retry.NewBackgroundClient(
		retry.WithHTTPClient(baseHTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return client, nil
}
