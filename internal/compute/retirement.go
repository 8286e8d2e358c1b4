package compute

import (
	"context"
	"errors"
	"math"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
)

// Years of retirement income the plan must fund.
const retirementHorizonYears = 25

type RetirementParams struct {
	CurrentAge          int     `json:"current_age"`
	RetirementAge       int     `json:"retirement_age"`
	CurrentSavings      float64 `json:"current_savings"`
	MonthlyContribution float64 `json:"monthly_contribution"`
	ExpectedReturn      float64 `json:"expected_return"`
	InflationRate       float64 `json:"inflation_rate"`
	// Desired monthly retirement income in today's money.
	DesiredIncome float64 `json:"desired_income"`
}

func (p *RetirementParams) validate() error {
	if p.CurrentAge <= 0 || p.RetirementAge <= p.CurrentAge {
		return errors.New("retirement_age must be greater than current_age")
	}
	if p.ExpectedReturn <= 0 {
		return errors.New("expected_return must be positive")
	}
	if p.InflationRate < 0 || p.CurrentSavings < 0 || p.MonthlyContribution < 0 {
		return errors.New("inflation_rate, current_savings and monthly_contribution must not be negative")
	}
	if p.DesiredIncome <= 0 {
		return errors.New("desired_income must be positive")
	}
	return nil
}

type RetirementResult struct {
	CurrentAge              int     `json:"current_age"`
	RetirementAge           int     `json:"retirement_age"`
	YearsToRetirement       int     `json:"years_to_retirement"`
	ProjectedSavings        float64 `json:"projected_savings"`
	RequiredSavings         float64 `json:"required_savings"`
	Shortfall               float64 `json:"shortfall"`
	OnTrack                 bool    `json:"on_track"`
	RecommendedContribution float64 `json:"recommended_monthly_contribution"`
}

// retirementPlan projects savings growth to retirement age and compares it
// with the capital needed to fund the inflation-adjusted income over the
// retirement horizon. When the plan falls short, the recommended contribution
// is the monthly amount that would close the gap over the remaining years.
func retirementPlan(p RetirementParams) RetirementResult {
	years := float64(p.RetirementAge - p.CurrentAge)

	savingsAtRetirement := p.CurrentSavings * math.Pow(1+p.ExpectedReturn, years)

	monthlyReturn := p.ExpectedReturn / 12
	months := years * 12
	contributionsAtRetirement := p.MonthlyContribution *
		(math.Pow(1+monthlyReturn, months) - 1) / monthlyReturn
	projected := savingsAtRetirement + contributionsAtRetirement

	adjustedIncome := p.DesiredIncome * math.Pow(1+p.InflationRate, years)
	annuityFactor := (math.Pow(1+p.ExpectedReturn, retirementHorizonYears) - 1) / p.ExpectedReturn
	required := adjustedIncome * 12 * retirementHorizonYears / annuityFactor

	res := RetirementResult{
		CurrentAge:              p.CurrentAge,
		RetirementAge:           p.RetirementAge,
		YearsToRetirement:       p.RetirementAge - p.CurrentAge,
		ProjectedSavings:        round2(projected),
		RequiredSavings:         round2(required),
		OnTrack:                 projected >= required,
		RecommendedContribution: round2(p.MonthlyContribution),
	}
	if projected < required {
		res.Shortfall = round2(required - projected)
		res.RecommendedContribution = round2(
			requiredMonthlyContribution(required-savingsAtRetirement, p.ExpectedReturn, years))
	}
	return res
}

func requiredMonthlyContribution(target, rate, years float64) float64 {
	monthlyRate := rate / 12
	months := years * 12
	return target * monthlyRate / (math.Pow(1+monthlyRate, months) - 1)
}

func handleRetirement(_ context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
	p, err := decode[RetirementParams](job.Payload)
	if err != nil {
		return nil, err
	}
	return retirementPlan(p), nil
}
