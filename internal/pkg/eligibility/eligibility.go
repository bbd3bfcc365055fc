// Package eligibility is the client of the prerequisite service consulted before an
// offering registration is committed.
package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request identifies the course and the student being checked.
type Request struct {
	CourseCode   string `json:"courseCode"`
	StudentID    int64  `json:"studentId"`
	StudentEmail string `json:"studentEmail,omitempty"`
}

// Result is the verdict of the prerequisite service.
type Result struct {
	Eligible bool     `json:"eligible"`
	Missing  []string `json:"missing"`
}

// Checker answers whether a student may register for a course.
type Checker interface {
	CheckEligibility(ctx context.Context, req Request) (Result, error)
}

// Client calls POST {baseURL}/eligibility/check.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client whose requests never outlive timeout
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CheckEligibility returns an error for transport failures, non-2xx answers and bodies
// that do not decode. Deciding what such an error means is left to the caller.
func (c *Client) CheckEligibility(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode eligibility request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/eligibility/check", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build eligibility request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("eligibility service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("eligibility service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode eligibility response: %w", err)
	}
	return result, nil
}
