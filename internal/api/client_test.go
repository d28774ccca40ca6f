package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pathoai/patho-console/internal/billing"
)

// newMockBackend creates a mock pathology billing backend for testing.
func newMockBackend() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/cases", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			cases := []map[string]interface{}{
				{
					"id":             1,
					"patient_id":     "PT-8829",
					"patient_name":   "Jane Doe",
					"slide_id":       "WSI-2024-1847",
					"diagnosis":      "Invasive Ductal Carcinoma",
					"status":         "PENDING",
					"image_url":      "/uploads/WSI-2024-1847.jpg",
					"base_cpt":       "88305",
					"recovery_value": 0,
					"created_at":     "2024-01-15T10:30:00.123456",
				},
				{
					"id":             2,
					"patient_id":     "PT-7721",
					"patient_name":   "John Smith",
					"slide_id":       "WSI-2024-1846",
					"diagnosis":      "Melanoma In Situ",
					"status":         "VERIFIED",
					"recovery_value": 18.4,
				},
			}

			// The backend filters server-side when ?status= is present.
			if status := r.URL.Query().Get("status"); status != "" {
				filtered := cases[:0]
				for _, c := range cases {
					if c["status"] == status {
						filtered = append(filtered, c)
					}
				}
				cases = filtered
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(cases)

		case http.MethodPost:
			var req map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if req["slide_id"] == "WSI-2024-1847" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"detail": "Case with this slide ID already exists",
				})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":   "created",
				"case_id":  42,
				"slide_id": "WSI-2024-5512",
			})
		}
	})

	mux.HandleFunc("/api/cases/WSI-2024-1847", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":                 1,
				"patient_id":         "PT-8829",
				"patient_name":       "Jane Doe",
				"slide_id":           "WSI-2024-1847",
				"diagnosis":          "Invasive Ductal Carcinoma",
				"status":             "ANALYZED",
				"suggested_cpt_code": "88309",
				"complexity_indicators": []string{
					"High nuclear grade",
					"Perineural invasion",
				},
				"annotated_regions": []map[string]interface{}{
					{"id": 1, "x": 120, "y": 150, "width": 80, "height": 60,
						"label": "High-grade nuclei cluster", "billable": true},
				},
			})
		case http.MethodPut:
			var req map[string]interface{}
			json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":       "updated",
				"slide_id":     "WSI-2024-1847",
				"patient_name": req["patient_name"],
				"diagnosis":    "Invasive Ductal Carcinoma",
				"patient_id":   "PT-8829",
			})
		case http.MethodDelete:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"status":   "deleted",
				"slide_id": "WSI-2024-1847",
			})
		}
	})

	mux.HandleFunc("/api/cases/WSI-2024-0000", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Case not found"})
	})

	mux.HandleFunc("/api/cases/WSI-2024-1847/upload-image", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "uploaded",
			"image_url": "/uploads/WSI-2024-1847" + header.Filename[strings.LastIndex(header.Filename, "."):],
		})
	})

	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["slide_id"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"base_cpt":        "88305",
			"recommended_cpt": "88309",
			"revenue_delta":   18.40,
			"cpt_codes": map[string]interface{}{
				"base":        "88305",
				"recommended": "88309",
				"ai_assisted": "0596T",
				"ancillary":   []string{"88342"},
			},
			"audit_narrative":       "Findings warrant CPT 88309 coding.",
			"complexity_indicators": []string{"High nuclear grade (Grade 3/3)"},
			"annotated_regions": []map[string]interface{}{
				{"id": 1, "x": 120, "y": 150, "width": 80, "height": 60,
					"label": "High-grade nuclei cluster", "cpt_impact": "+$6.20", "billable": true},
			},
			"base_reimbursement":      72.00,
			"optimized_reimbursement": 98.60,
			"confidence_score":        0.98,
			"audit_defense_score":     96,
			"model_used":              "demo-mode",
		})
	})

	mux.HandleFunc("/api/region-click", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "logged",
			"message": "Region examination documented",
		})
	})

	mux.HandleFunc("/api/document", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "documented",
			"case_id":     1,
			"slide_id":    req["slide_id"],
			"verified_by": req["pathologist_name"],
		})
	})

	mux.HandleFunc("/api/performance-metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total_cases_processed":     3,
			"total_revenue_recovered":   55.20,
			"average_recovery_per_case": 18.40,
			"average_audit_score":       96.0,
			"cases_audit_ready":         3,
			"efficiency_gain_hours":     0.4,
			"cpt_breakdown":             map[string]int{"88305→88309": 3},
			"annual_projection":         662.40,
			"efficiency_message":        "Saving 0.4 hours of documentation time",
		})
	})

	mux.HandleFunc("/api/export-pdf", func(w http.ResponseWriter, r *http.Request) {
		slideID := r.URL.Query().Get("slide_id")
		switch slideID {
		case "WSI-2024-1847":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", `attachment; filename="audit_shield_WSI-2024-1847.pdf"`)
			w.Write([]byte("%PDF-1.4 mock audit shield"))
		case "WSI-2024-0000":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Case not found"})
		default:
			// Zero-byte body: a failed upstream render.
			w.Header().Set("Content-Type", "application/pdf")
		}
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: baseURL, Timeout: 5 * time.Second},
		log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://localhost:8000/"}, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if client.baseURL != "http://localhost:8000" {
		t.Errorf("Expected trailing slash trimmed, got %q", client.baseURL)
	}

	if _, err := NewClient(Config{}, nil); err == nil {
		t.Error("Expected error for missing base URL")
	}
}

func TestListCases(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cases, err := client.ListCases(ctx, "")
	if err != nil {
		t.Fatalf("ListCases failed: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("Expected 2 cases, got %d", len(cases))
	}
	if cases[0].SlideID != "WSI-2024-1847" {
		t.Errorf("Expected slide WSI-2024-1847, got %s", cases[0].SlideID)
	}
	if cases[0].Status != billing.StatusPending {
		t.Errorf("Expected PENDING status, got %s", cases[0].Status)
	}

	// Status filter propagates to the query string.
	verified, err := client.ListCases(ctx, billing.StatusVerified)
	if err != nil {
		t.Fatalf("ListCases with filter failed: %v", err)
	}
	if len(verified) != 1 {
		t.Fatalf("Expected 1 verified case, got %d", len(verified))
	}
	if verified[0].PatientName != "John Smith" {
		t.Errorf("Expected John Smith, got %s", verified[0].PatientName)
	}
}

func TestGetCase(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	ctx := context.Background()

	detail, err := client.GetCase(ctx, "WSI-2024-1847")
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if detail.Status != billing.StatusAnalyzed {
		t.Errorf("Expected ANALYZED, got %s", detail.Status)
	}
	if detail.SuggestedCPTCode != "88309" {
		t.Errorf("Expected suggested code 88309, got %s", detail.SuggestedCPTCode)
	}
	if len(detail.AnnotatedRegions) != 1 {
		t.Errorf("Expected 1 annotated region, got %d", len(detail.AnnotatedRegions))
	}
}

func TestGetCaseNotFound(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	_, err := client.GetCase(context.Background(), "WSI-2024-0000")
	if err == nil {
		t.Fatal("Expected error for unknown slide")
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *Error, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", apiErr.StatusCode)
	}
	if apiErr.Detail != "Case not found" {
		t.Errorf("Expected detail from JSON body, got %q", apiErr.Detail)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound should match a wrapped 404")
	}
}

func TestCreateCase(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	ctx := context.Background()

	created, err := client.CreateCase(ctx, CreateCaseRequest{
		PatientID:   "PT-5512",
		PatientName: "Maria Garcia",
		Diagnosis:   "Prostate Adenocarcinoma",
	})
	if err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}
	if created.SlideID != "WSI-2024-5512" {
		t.Errorf("Expected derived slide id, got %s", created.SlideID)
	}

	// Duplicate slide ids are a 400 with a detail message.
	_, err = client.CreateCase(ctx, CreateCaseRequest{
		PatientID: "PT-8829",
		SlideID:   "WSI-2024-1847",
	})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 for duplicate slide id, got %v", err)
	}
	if !strings.Contains(apiErr.Detail, "already exists") {
		t.Errorf("Expected duplicate detail, got %q", apiErr.Detail)
	}

	// Missing patient id fails before any request is made.
	if _, err := client.CreateCase(ctx, CreateCaseRequest{}); err == nil {
		t.Error("Expected error for missing patient id")
	}
}

func TestUpdateAndDeleteCase(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	ctx := context.Background()

	name := "Jane A. Doe"
	updated, err := client.UpdateCase(ctx, "WSI-2024-1847", UpdateCaseRequest{PatientName: &name})
	if err != nil {
		t.Fatalf("UpdateCase failed: %v", err)
	}
	if updated.PatientName != "Jane A. Doe" {
		t.Errorf("Expected echoed patient name, got %s", updated.PatientName)
	}

	if err := client.DeleteCase(ctx, "WSI-2024-1847"); err != nil {
		t.Fatalf("DeleteCase failed: %v", err)
	}
	if err := client.DeleteCase(ctx, "WSI-2024-0000"); !IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestUploadSlideImage(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	imageURL, err := client.UploadSlideImage(context.Background(), "WSI-2024-1847",
		"slide.jpg", bytes.NewReader([]byte("fake image bytes")))
	if err != nil {
		t.Fatalf("UploadSlideImage failed: %v", err)
	}
	if imageURL != "/uploads/WSI-2024-1847.jpg" {
		t.Errorf("Expected server image URL, got %s", imageURL)
	}
}

func TestAnalyze(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	analysis, err := client.Analyze(context.Background(), AnalyzeRequest{SlideID: "WSI-2024-1847"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.RecommendedCPT != "88309" {
		t.Errorf("Expected recommended 88309, got %s", analysis.RecommendedCPT)
	}
	if analysis.RevenueDelta != 18.40 {
		t.Errorf("Expected delta 18.40, got %v", analysis.RevenueDelta)
	}
	if analysis.SlideID != "WSI-2024-1847" {
		t.Errorf("Expected slide id backfilled, got %q", analysis.SlideID)
	}
	if len(analysis.AnnotatedRegions) != 1 {
		t.Errorf("Expected 1 region, got %d", len(analysis.AnnotatedRegions))
	}

	if _, err := client.Analyze(context.Background(), AnalyzeRequest{}); err == nil {
		t.Error("Expected error for missing slide id")
	}
}

func TestSubmitVerification(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	documented, err := client.SubmitVerification(context.Background(), DocumentRequest{
		SlideID:                     "WSI-2024-1847",
		PathologistName:             "Dr. Chen",
		VerifiedCPTCodes:            []string{"88309", "0596T"},
		ComplexityIndicatorsClicked: []string{"High-grade nuclei cluster"},
	})
	if err != nil {
		t.Fatalf("SubmitVerification failed: %v", err)
	}
	if documented.VerifiedBy != "Dr. Chen" {
		t.Errorf("Expected verified_by echoed, got %s", documented.VerifiedBy)
	}

	_, err = client.SubmitVerification(context.Background(), DocumentRequest{SlideID: "WSI-2024-1847"})
	if err == nil {
		t.Error("Expected error for missing pathologist name")
	}
}

func TestRevenueSummary(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	summary, err := client.RevenueSummary(context.Background())
	if err != nil {
		t.Fatalf("RevenueSummary failed: %v", err)
	}
	if summary.TotalCasesProcessed != 3 {
		t.Errorf("Expected 3 cases processed, got %d", summary.TotalCasesProcessed)
	}
	if summary.TotalRevenueRecovered != 55.20 {
		t.Errorf("Expected 55.20 recovered, got %v", summary.TotalRevenueRecovered)
	}
	if summary.CPTBreakdown["88305→88309"] != 3 {
		t.Errorf("Expected CPT breakdown entry, got %v", summary.CPTBreakdown)
	}
}

func TestDownloadAuditPDF(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	var buf bytes.Buffer
	written, err := client.DownloadAuditPDF(context.Background(), "WSI-2024-1847", &buf)
	if err != nil {
		t.Fatalf("DownloadAuditPDF failed: %v", err)
	}
	if written == 0 || buf.Len() == 0 {
		t.Fatal("Expected non-empty PDF body")
	}
	if !strings.HasPrefix(buf.String(), "%PDF") {
		t.Errorf("Expected PDF magic, got %q", buf.String())
	}
}

func TestDownloadAuditPDFEmpty(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	var buf bytes.Buffer
	_, err := client.DownloadAuditPDF(context.Background(), "WSI-2024-9999", &buf)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("Expected ErrEmptyDocument, got %v", err)
	}
}

func TestDownloadAuditPDFNotFound(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	var buf bytes.Buffer
	_, err := client.DownloadAuditPDF(context.Background(), "WSI-2024-0000", &buf)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("Nothing should be written on error")
	}
}

func TestResolveImageURL(t *testing.T) {
	client := newTestClient(t, "http://localhost:8000")

	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"empty", "", ""},
		{"root relative", "/uploads/slide.jpg", "http://localhost:8000/uploads/slide.jpg"},
		{"bare relative", "uploads/slide.jpg", "http://localhost:8000/uploads/slide.jpg"},
		{"absolute http", "http://cdn.example.com/slide.jpg", "http://cdn.example.com/slide.jpg"},
		{"absolute https", "https://cdn.example.com/slide.jpg", "https://cdn.example.com/slide.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.ResolveImageURL(tt.raw); got != tt.expected {
				t.Errorf("ResolveImageURL(%q) = %q, expected %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	server := newMockBackend()
	defer server.Close()
	client := newTestClient(t, server.URL)

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}

	server.Close()
	if err := client.Health(context.Background()); err == nil {
		t.Error("Expected health failure after server close")
	}
}
