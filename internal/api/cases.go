package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/pathoai/patho-console/internal/billing"
)

// CreateCaseRequest holds the fields for a new case. SlideID is
// optional; the backend derives one from the patient id when omitted.
type CreateCaseRequest struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name,omitempty"`
	Diagnosis   string `json:"diagnosis,omitempty"`
	SlideID     string `json:"slide_id,omitempty"`
}

// CreateCaseResponse acknowledges a created case with its server id
// and the (possibly derived) slide id.
type CreateCaseResponse struct {
	Status  string `json:"status"`
	CaseID  int64  `json:"case_id"`
	SlideID string `json:"slide_id"`
}

// UpdateCaseRequest carries the editable case fields. Nil pointers are
// omitted from the payload and left unchanged by the backend.
type UpdateCaseRequest struct {
	PatientName *string `json:"patient_name,omitempty"`
	Diagnosis   *string `json:"diagnosis,omitempty"`
	PatientID   *string `json:"patient_id,omitempty"`
}

// UpdateCaseResponse echoes the case fields after an update.
type UpdateCaseResponse struct {
	Status      string `json:"status"`
	SlideID     string `json:"slide_id"`
	PatientName string `json:"patient_name"`
	Diagnosis   string `json:"diagnosis"`
	PatientID   string `json:"patient_id"`
}

// ListCases retrieves the case collection, optionally filtered by
// lifecycle status on the server side.
func (c *Client) ListCases(ctx context.Context, status billing.CaseStatus) ([]billing.Case, error) {
	endpoint := "/api/cases"
	if status != "" {
		params := url.Values{}
		params.Set("status", string(status))
		endpoint += "?" + params.Encode()
	}

	resp, err := c.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list cases request failed: %w", err)
	}

	var cases []billing.Case
	if err := c.decodeResponse(resp, &cases); err != nil {
		return nil, fmt.Errorf("list cases failed: %w", err)
	}
	return cases, nil
}

// GetCase retrieves the full detail record for one slide.
func (c *Client) GetCase(ctx context.Context, slideID string) (*billing.CaseDetail, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/api/cases/"+url.PathEscape(slideID), nil)
	if err != nil {
		return nil, fmt.Errorf("get case request failed: %w", err)
	}

	var detail billing.CaseDetail
	if err := c.decodeResponse(resp, &detail); err != nil {
		return nil, fmt.Errorf("get case %s failed: %w", slideID, err)
	}
	return &detail, nil
}

// CreateCase registers a new case with the backend.
func (c *Client) CreateCase(ctx context.Context, req CreateCaseRequest) (*CreateCaseResponse, error) {
	if req.PatientID == "" {
		return nil, fmt.Errorf("patient id is required")
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/api/cases", req)
	if err != nil {
		return nil, fmt.Errorf("create case request failed: %w", err)
	}

	var created CreateCaseResponse
	if err := c.decodeResponse(resp, &created); err != nil {
		return nil, fmt.Errorf("create case failed: %w", err)
	}

	c.logger.Printf("Created case %s (id %d)", created.SlideID, created.CaseID)
	return &created, nil
}

// UpdateCase edits the mutable fields of a case. Status never changes
// through this call.
func (c *Client) UpdateCase(ctx context.Context, slideID string, req UpdateCaseRequest) (*UpdateCaseResponse, error) {
	resp, err := c.makeRequest(ctx, http.MethodPut, "/api/cases/"+url.PathEscape(slideID), req)
	if err != nil {
		return nil, fmt.Errorf("update case request failed: %w", err)
	}

	var updated UpdateCaseResponse
	if err := c.decodeResponse(resp, &updated); err != nil {
		return nil, fmt.Errorf("update case %s failed: %w", slideID, err)
	}
	return &updated, nil
}

// DeleteCase removes a case and its uploaded image from the backend.
func (c *Client) DeleteCase(ctx context.Context, slideID string) error {
	resp, err := c.makeRequest(ctx, http.MethodDelete, "/api/cases/"+url.PathEscape(slideID), nil)
	if err != nil {
		return fmt.Errorf("delete case request failed: %w", err)
	}

	var deleted struct {
		Status  string `json:"status"`
		SlideID string `json:"slide_id"`
	}
	if err := c.decodeResponse(resp, &deleted); err != nil {
		return fmt.Errorf("delete case %s failed: %w", slideID, err)
	}

	c.logger.Printf("Deleted case %s", slideID)
	return nil
}

// UploadSlideImage attaches a slide image to a case via multipart
// upload and returns the server-side image URL.
func (c *Client) UploadSlideImage(ctx context.Context, slideID, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	endpoint := c.baseURL + "/api/cases/" + url.PathEscape(slideID) + "/upload-image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", "patho-console/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}

	var uploaded struct {
		Status   string `json:"status"`
		ImageURL string `json:"image_url"`
	}
	if err := c.decodeResponse(resp, &uploaded); err != nil {
		return "", fmt.Errorf("upload image for %s failed: %w", slideID, err)
	}

	c.logger.Printf("Uploaded slide image for %s: %s", slideID, uploaded.ImageURL)
	return uploaded.ImageURL, nil
}
