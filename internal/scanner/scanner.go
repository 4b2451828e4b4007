package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"incident-portal/internal/config"
)

// Status is the verdict for one scanned file.
type Status string

const (
	StatusClean      Status = "clean"
	StatusSuspicious Status = "suspicious"
	StatusInfected   Status = "infected"
	StatusRejected   Status = "rejected"
)

// Flagged reports whether the verdict needs an admin's attention.
func (s Status) Flagged() bool { return s != StatusClean }

type Result struct {
	Status  Status   `json:"status"`
	Threats []string `json:"threats,omitempty"`
}

// Scanner checks an uploaded attachment by URL.
type Scanner interface {
	Scan(ctx context.Context, fileURL, reportID, fileType string) (Result, error)
}

var (
	ErrNotConfigured  = errors.New("scanner: endpoint not configured")
	ErrUnknownVerdict = errors.New("scanner: unknown verdict")
)

const DefaultTimeout = 30 * time.Second

// HTTPScanner posts scan requests to an external JSON endpoint.
// Safe for concurrent use.
type HTTPScanner struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPScanner(cfg config.ScannerConfig) *HTTPScanner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPScanner{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type scanRequest struct {
	FileURL  string `json:"fileUrl"`
	ReportID string `json:"reportId"`
	FileType string `json:"fileType"`
}

func (s *HTTPScanner) Scan(ctx context.Context, fileURL, reportID, fileType string) (Result, error) {
	if s.url == "" {
		return Result{}, ErrNotConfigured
	}

	body, err := json.Marshal(scanRequest{FileURL: fileURL, ReportID: reportID, FileType: fileType})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("scanner: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("scanner: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("scanner: decode: %w", err)
	}
	switch out.Status {
	case StatusClean, StatusSuspicious, StatusInfected, StatusRejected:
		return out, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownVerdict, out.Status)
	}
}
