package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pathoai/patho-console/internal/billing"
)

// AnalyzeRequest triggers an AI billing analysis for a slide.
type AnalyzeRequest struct {
	SlideID   string                 `json:"slide_id"`
	ImagePath string                 `json:"image_path,omitempty"`
	Findings  map[string]interface{} `json:"findings,omitempty"`
}

// RegionClickRequest records one region examination for the
// human-in-the-loop audit trail.
type RegionClickRequest struct {
	SlideID     string `json:"slide_id"`
	RegionLabel string `json:"region_label"`
	User        string `json:"user,omitempty"`
}

// RegionClickResponse echoes the examined region and a confirmation.
type RegionClickResponse struct {
	Status  string                   `json:"status"`
	Region  *billing.AnnotatedRegion `json:"region,omitempty"`
	Message string                   `json:"message,omitempty"`
}

// DocumentRequest submits the pathologist's verification of a case.
type DocumentRequest struct {
	SlideID                     string                   `json:"slide_id"`
	PathologistName             string                   `json:"pathologist_name"`
	VerifiedCPTCodes            []string                 `json:"verified_cpt_codes"`
	ComplexityIndicatorsClicked []string                 `json:"complexity_indicators_clicked"`
	BillingData                 *billing.BillingAnalysis `json:"billing_data,omitempty"`
}

// DocumentResponse acknowledges a recorded verification.
type DocumentResponse struct {
	Status     string `json:"status"`
	CaseID     int64  `json:"case_id"`
	SlideID    string `json:"slide_id"`
	VerifiedBy string `json:"verified_by"`
}

// Analyze runs the backend AI analysis for a slide and returns the
// billing recommendation. The backend marks the case ANALYZED on
// success; the caller mirrors that locally.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*billing.BillingAnalysis, error) {
	if req.SlideID == "" {
		return nil, fmt.Errorf("slide id is required")
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/api/analyze", req)
	if err != nil {
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}

	var analysis billing.BillingAnalysis
	if err := c.decodeResponse(resp, &analysis); err != nil {
		return nil, fmt.Errorf("analyze %s failed: %w", req.SlideID, err)
	}
	if analysis.SlideID == "" {
		analysis.SlideID = req.SlideID
	}

	c.logger.Printf("Analysis for %s: %s -> %s (delta %s)",
		req.SlideID, analysis.BaseCPT, analysis.RecommendedCPT,
		billing.FormatUSD(analysis.RevenueDelta))
	return &analysis, nil
}

// LogRegionClick records that the operator examined a region. Callers
// treat this as fire-and-forget: a failure here never reverts the local
// acknowledgment.
func (c *Client) LogRegionClick(ctx context.Context, req RegionClickRequest) (*RegionClickResponse, error) {
	if req.User == "" {
		req.User = "pathologist"
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/api/region-click", req)
	if err != nil {
		return nil, fmt.Errorf("region click request failed: %w", err)
	}

	var logged RegionClickResponse
	if err := c.decodeResponse(resp, &logged); err != nil {
		return nil, fmt.Errorf("region click for %s failed: %w", req.SlideID, err)
	}
	return &logged, nil
}

// SubmitVerification records the pathologist's confirmation and moves
// the case to VERIFIED on the backend.
func (c *Client) SubmitVerification(ctx context.Context, req DocumentRequest) (*DocumentResponse, error) {
	if req.SlideID == "" {
		return nil, fmt.Errorf("slide id is required")
	}
	if req.PathologistName == "" {
		return nil, fmt.Errorf("pathologist name is required")
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/api/document", req)
	if err != nil {
		return nil, fmt.Errorf("verification request failed: %w", err)
	}

	var documented DocumentResponse
	if err := c.decodeResponse(resp, &documented); err != nil {
		return nil, fmt.Errorf("verification for %s failed: %w", req.SlideID, err)
	}

	c.logger.Printf("Case %s verified by %s", documented.SlideID, documented.VerifiedBy)
	return &documented, nil
}

// RevenueSummary retrieves the aggregate performance metrics.
func (c *Client) RevenueSummary(ctx context.Context) (*billing.RevenueSummary, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/api/performance-metrics", nil)
	if err != nil {
		return nil, fmt.Errorf("performance metrics request failed: %w", err)
	}

	var summary billing.RevenueSummary
	if err := c.decodeResponse(resp, &summary); err != nil {
		return nil, fmt.Errorf("performance metrics failed: %w", err)
	}
	return &summary, nil
}

// DownloadAuditPDF streams the Audit Shield PDF for a slide into w and
// returns the number of bytes written. A zero-byte document is an
// error: the backend marks the case EXPORTED as a side effect, so the
// caller must see a valid file before mirroring that status locally.
func (c *Client) DownloadAuditPDF(ctx context.Context, slideID string, w io.Writer) (int64, error) {
	params := url.Values{}
	params.Set("slide_id", slideID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/export-pdf?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create export request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf")
	req.Header.Set("User-Agent", "patho-console/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("export request failed: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return 0, fmt.Errorf("export for %s failed: %w", slideID, err)
	}
	defer resp.Body.Close()

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return written, fmt.Errorf("failed to stream PDF: %w", err)
	}
	if written == 0 {
		return 0, fmt.Errorf("export for %s failed: %w", slideID, ErrEmptyDocument)
	}

	c.logger.Printf("Downloaded audit PDF for %s (%d bytes)", slideID, written)
	return written, nil
}
