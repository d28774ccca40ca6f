package billing

// RevenueSummary represents the aggregate performance metrics the backend
// computes over verified and exported cases. Read-only on this side.
type RevenueSummary struct {
	TotalCasesProcessed    int            `json:"total_cases_processed"`
	TotalRevenueRecovered  float64        `json:"total_revenue_recovered"`
	AverageRecoveryPerCase float64        `json:"average_recovery_per_case"`
	AverageAuditScore      float64        `json:"average_audit_score"`
	CasesAuditReady        int            `json:"cases_audit_ready"`
	EfficiencyGainHours    float64        `json:"efficiency_gain_hours"`
	CPTBreakdown           map[string]int `json:"cpt_breakdown,omitempty"`
	AnnualProjection       float64        `json:"annual_projection"`
	EfficiencyMessage      string         `json:"efficiency_message,omitempty"`
}
