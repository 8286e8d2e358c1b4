package compute_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/finflow/finqueue/internal/compute"
	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
)

func newRegistry(t *testing.T) *queue.Registry {
	t.Helper()
	reg := queue.NewRegistry()
	compute.Register(reg)
	compute.RegisterReports(reg)
	return reg
}

func run(t *testing.T, reg *queue.Registry, jobType, payload string) any {
	t.Helper()
	def, ok := reg.Lookup(jobType)
	if !ok {
		t.Fatalf("type %s not registered", jobType)
	}
	if err := def.Validate(json.RawMessage(payload)); err != nil {
		t.Fatalf("payload rejected: %v", err)
	}
	result, err := def.Handle(context.Background(), &domain.Job{
		ID:      "t1",
		Payload: json.RawMessage(payload),
	}, func(int) {})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	return result
}

func TestCompoundInterest_AnnualCompounding(t *testing.T) {
	reg := newRegistry(t)

	result := run(t, reg, compute.TypeCompoundInterest,
		`{"principal":10000,"rate":0.07,"time":10}`).(compute.CompoundInterestResult)

	if result.FinalAmount != 19671.51 {
		t.Fatalf("final amount = %.2f, want 19671.51", result.FinalAmount)
	}
	if result.TotalInterest != 9671.51 {
		t.Fatalf("total interest = %.2f, want 9671.51", result.TotalInterest)
	}
	if result.Frequency != 1 {
		t.Fatalf("frequency defaulted to %d, want 1", result.Frequency)
	}
}

func TestCompoundInterest_MonthlyCompounding(t *testing.T) {
	reg := newRegistry(t)

	result := run(t, reg, compute.TypeCompoundInterest,
		`{"principal":1000,"rate":0.12,"time":1,"compound_frequency":12}`).(compute.CompoundInterestResult)

	want := 1000 * math.Pow(1+0.01, 12)
	if math.Abs(result.FinalAmount-math.Round(want*100)/100) > 0.001 {
		t.Fatalf("final amount = %.2f, want %.2f", result.FinalAmount, want)
	}
}

func TestCompoundInterest_RejectsBadPayload(t *testing.T) {
	reg := newRegistry(t)
	def, _ := reg.Lookup(compute.TypeCompoundInterest)

	for _, payload := range []string{
		`{"principal":-1,"rate":0.07,"time":10}`,
		`{"principal":10000,"rate":0.07}`,
		`{"principal":10000,"rate":0.07,"time":10,"bogus":true}`,
	} {
		if err := def.Validate(json.RawMessage(payload)); err == nil {
			t.Errorf("payload %s should be rejected", payload)
		}
	}
}

func TestPresentAndFutureValueInverse(t *testing.T) {
	reg := newRegistry(t)

	fv := run(t, reg, compute.TypeFutureValue,
		`{"present_value":5000,"rate":0.05,"time":8}`).(map[string]float64)
	pv := run(t, reg, compute.TypePresentValue,
		`{"future_value":5000,"rate":0.05,"time":8}`).(map[string]float64)

	// FV and PV are inverse transforms of the same rate and horizon.
	back := pv["present_value"] * (fv["future_value"] / 5000)
	if math.Abs(back-5000) > 0.05 {
		t.Fatalf("round trip drifted: %.4f", back)
	}
}

func TestLoanPayment_StandardAmortization(t *testing.T) {
	reg := newRegistry(t)

	result := run(t, reg, compute.TypeLoanPayment,
		`{"principal":200000,"rate":0.06,"term_months":360}`).(compute.LoanPaymentResult)

	// Classic 30-year fixture: $200k at 6% is $1199.10/month.
	if math.Abs(result.MonthlyPayment-1199.10) > 0.01 {
		t.Fatalf("monthly payment = %.2f, want 1199.10", result.MonthlyPayment)
	}
	if result.TotalInterest <= 0 {
		t.Fatal("total interest must be positive")
	}
}

func TestPortfolio_BuySellPositions(t *testing.T) {
	reg := newRegistry(t)

	result := run(t, reg, compute.TypePortfolioAnalysis, `{
		"user_id": "u1",
		"transactions": [
			{"symbol":"ACME","type":"buy","shares":10,"price":100,"current_price":120},
			{"symbol":"ACME","type":"sell","shares":5,"price":110,"current_price":120},
			{"symbol":"GLOB","type":"buy","shares":2,"price":50,"current_price":40}
		]
	}`).(compute.PortfolioResult)

	if len(result.Holdings) != 2 {
		t.Fatalf("holdings = %d, want 2", len(result.Holdings))
	}

	acme := result.Holdings[0]
	if acme.Symbol != "ACME" || acme.Shares != 5 {
		t.Fatalf("unexpected first holding: %+v", acme)
	}
	if acme.CurrentValue != 600 {
		t.Fatalf("ACME value = %.2f, want 600", acme.CurrentValue)
	}

	if result.TotalValue != 680 {
		t.Fatalf("total value = %.2f, want 680", result.TotalValue)
	}
}

func TestPortfolio_OversellIsPermanent(t *testing.T) {
	reg := newRegistry(t)
	def, _ := reg.Lookup(compute.TypePortfolioAnalysis)

	_, err := def.Handle(context.Background(), &domain.Job{
		Payload: json.RawMessage(`{
			"transactions": [{"symbol":"ACME","type":"sell","shares":1,"price":10}]
		}`),
	}, func(int) {})
	if !domain.IsPermanent(err) {
		t.Fatalf("overselling should be permanent, got %v", err)
	}
}

func TestRetirementPlanning_OnTrack(t *testing.T) {
	reg := newRegistry(t)

	result := run(t, reg, compute.TypeRetirementPlanning, `{
		"current_age": 64, "retirement_age": 65,
		"current_savings": 10000, "monthly_contribution": 100,
		"expected_return": 0.10, "inflation_rate": 0.02,
		"desired_income": 1000
	}`).(compute.RetirementResult)

	if result.YearsToRetirement != 1 {
		t.Fatalf("years to retirement = %d, want 1", result.YearsToRetirement)
	}
	// 10000 at 10% for one year is 11000 before contributions.
	if result.ProjectedSavings < 11000 {
		t.Fatalf("projected savings = %.2f, want at least 11000", result.ProjectedSavings)
	}
	if !result.OnTrack || result.Shortfall != 0 {
		t.Fatalf("plan = %+v, want on track with no shortfall", result)
	}
	if result.RecommendedContribution != 100 {
		t.Fatalf("recommended contribution = %.2f, want the current 100", result.RecommendedContribution)
	}
}

func TestRetirementPlanning_ShortfallRecommendsMore(t *testing.T) {
	reg := newRegistry(t)

	result := run(t, reg, compute.TypeRetirementPlanning, `{
		"current_age": 64, "retirement_age": 65,
		"current_savings": 10000, "monthly_contribution": 100,
		"expected_return": 0.10, "inflation_rate": 0.02,
		"desired_income": 100000
	}`).(compute.RetirementResult)

	if result.OnTrack {
		t.Fatalf("plan = %+v, want off track", result)
	}
	if result.Shortfall <= 0 {
		t.Fatal("off-track plan must report a shortfall")
	}
	if math.Abs(result.Shortfall-(result.RequiredSavings-result.ProjectedSavings)) > 0.02 {
		t.Fatalf("shortfall %.2f does not close the %.2f gap",
			result.Shortfall, result.RequiredSavings-result.ProjectedSavings)
	}
	if result.RecommendedContribution <= 100 {
		t.Fatalf("recommended contribution = %.2f, want more than the current 100",
			result.RecommendedContribution)
	}
}

func TestRetirementPlanning_RejectsInvertedAges(t *testing.T) {
	reg := newRegistry(t)
	def, _ := reg.Lookup(compute.TypeRetirementPlanning)

	err := def.Validate(json.RawMessage(`{
		"current_age": 65, "retirement_age": 60,
		"current_savings": 1, "monthly_contribution": 1,
		"expected_return": 0.05, "inflation_rate": 0.02,
		"desired_income": 1000
	}`))
	if err == nil {
		t.Fatal("retirement_age before current_age should be rejected")
	}
}

// TestBulkCalculations_PartialFailure verifies one bad operation lands in its
// own result slot without aborting the batch or failing the job.
func TestBulkCalculations_PartialFailure(t *testing.T) {
	reg := newRegistry(t)
	def, _ := reg.Lookup(compute.TypeBulkCalculations)

	payload := `{"operations":[
		{"id":"op-1","type":"compound-interest","params":{"principal":10000,"rate":0.07,"time":10}},
		{"id":"op-2","type":"tax-optimization","params":{}}
	]}`
	if err := def.Validate(json.RawMessage(payload)); err != nil {
		t.Fatalf("payload rejected: %v", err)
	}

	var progress []int
	result, err := def.Handle(context.Background(),
		&domain.Job{ID: "b1", Payload: json.RawMessage(payload)},
		func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatal(err)
	}

	bulk := result.(compute.BulkResult)
	if bulk.Succeeded != 1 || bulk.Failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d, want 1/1", bulk.Succeeded, bulk.Failed)
	}
	first := bulk.Results[0].Result.(compute.CompoundInterestResult)
	if first.FinalAmount != 19671.51 {
		t.Fatalf("embedded result = %.2f, want 19671.51", first.FinalAmount)
	}
	if bulk.Results[1].Error == "" {
		t.Fatal("unsupported operation type must record an item error")
	}
	if len(progress) != 2 || progress[1] != 100 {
		t.Fatalf("progress = %v, want two steps ending at 100", progress)
	}
}

func TestBulkCalculations_RejectsEmptyBatch(t *testing.T) {
	reg := newRegistry(t)
	def, _ := reg.Lookup(compute.TypeBulkCalculations)

	if err := def.Validate(json.RawMessage(`{"operations":[]}`)); err == nil {
		t.Fatal("empty batch should be rejected")
	}
	if err := def.Validate(json.RawMessage(`{"operations":[{"params":{}}]}`)); err == nil {
		t.Fatal("operation without a type should be rejected")
	}
}

func TestGenerateReport_ProgressAndManifest(t *testing.T) {
	reg := newRegistry(t)
	def, _ := reg.Lookup(compute.TypeGenerateReport)

	var progress []int
	result, err := def.Handle(context.Background(), &domain.Job{
		ID:      "r1",
		Payload: json.RawMessage(`{"user_id":"u1","report_type":"monthly_summary"}`),
	}, func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatal(err)
	}

	report := result.(compute.ReportResult)
	if len(report.Sections) != 4 {
		t.Fatalf("sections = %d, want 4", len(report.Sections))
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress never reached 100: %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
}

func TestGenerateReport_RejectsUnknownType(t *testing.T) {
	reg := newRegistry(t)
	def, _ := reg.Lookup(compute.TypeGenerateReport)

	if err := def.Validate(json.RawMessage(`{"user_id":"u1","report_type":"horoscope"}`)); err == nil {
		t.Fatal("unknown report type should be rejected")
	}
}
