package cmd

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pathoai/patho-console/internal/api"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo cases on the backend",
	Long: `Create the five demo pathology cases on the backend for local testing
and presentations. Slide ids that already exist are reported and
skipped, so seeding is safe to repeat.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	logger := log.New(cmd.OutOrStdout(), "[seed] ", log.LstdFlags)
	logger.Println("Seeding demo cases...")

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	existing, err := client.ListCases(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list existing cases: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, cs := range existing {
		have[cs.SlideID] = true
	}

	demoCases := []api.CreateCaseRequest{
		{PatientID: "PT-8829", PatientName: "Jane Doe", Diagnosis: "Invasive Ductal Carcinoma", SlideID: "WSI-2024-1847"},
		{PatientID: "PT-7721", PatientName: "John Smith", Diagnosis: "Melanoma In Situ", SlideID: "WSI-2024-1846"},
		{PatientID: "PT-9923", PatientName: "Robert Johnson", Diagnosis: "Squamous Cell Carcinoma", SlideID: "WSI-2024-1845"},
		{PatientID: "PT-5512", PatientName: "Maria Garcia", Diagnosis: "Prostate Adenocarcinoma", SlideID: "WSI-2024-1844"},
		{PatientID: "PT-3348", PatientName: "William Brown", Diagnosis: "Thyroid Papillary Carcinoma", SlideID: "WSI-2024-1843"},
	}

	created, skipped := 0, 0
	for _, req := range demoCases {
		if have[req.SlideID] {
			logger.Printf("Skipping %s: slide already exists", req.SlideID)
			skipped++
			continue
		}

		resp, err := client.CreateCase(ctx, req)
		if err != nil {
			// The backend answers 400 when another case already holds
			// the patient or slide id; that still counts as seeded.
			var apiErr *api.Error
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
				logger.Printf("Skipping %s: %s", req.SlideID, apiErr.Detail)
				skipped++
				continue
			}
			return fmt.Errorf("failed to create %s: %w", req.SlideID, err)
		}
		logger.Printf("Created %s for %s as case %d", resp.SlideID, req.PatientName, resp.CaseID)
		created++
	}

	logger.Printf("Seeding completed: %d created, %d skipped", created, skipped)
	return nil
}
