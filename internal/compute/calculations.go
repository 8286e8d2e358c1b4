// Package compute hosts the financial computation job handlers. Handlers are
// pure functions of their payload: no shared mutable state between
// invocations, results marshalled by the worker pool.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
)

// Job types served by the calculations queue.
const (
	TypeCompoundInterest   = "compound-interest"
	TypePresentValue       = "present-value"
	TypeFutureValue        = "future-value"
	TypeLoanPayment        = "loan-payment"
	TypePortfolioAnalysis  = "portfolio-analysis"
	TypeRetirementPlanning = "retirement-planning"
	TypeBulkCalculations   = "bulk-calculations"
)

// Register binds every computation type to the calculations queue.
func Register(reg *queue.Registry) {
	reg.MustRegister(queue.Definition{
		Type:     TypeCompoundInterest,
		Queue:    domain.QueueCalculations,
		Validate: validateAs[CompoundInterestParams],
		Handle:   handleCompoundInterest,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypePresentValue,
		Queue:    domain.QueueCalculations,
		Validate: validateAs[PresentValueParams],
		Handle:   handlePresentValue,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypeFutureValue,
		Queue:    domain.QueueCalculations,
		Validate: validateAs[FutureValueParams],
		Handle:   handleFutureValue,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypeLoanPayment,
		Queue:    domain.QueueCalculations,
		Validate: validateAs[LoanPaymentParams],
		Handle:   handleLoanPayment,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypePortfolioAnalysis,
		Queue:    domain.QueueCalculations,
		Validate: validateAs[PortfolioParams],
		Handle:   handlePortfolio,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypeRetirementPlanning,
		Queue:    domain.QueueCalculations,
		Validate: validateAs[RetirementParams],
		Handle:   handleRetirement,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypeBulkCalculations,
		Queue:    domain.QueueCalculations,
		Validate: validateAs[BulkParams],
		Handle:   handleBulk,
	})
}

// validator is implemented by every payload variant.
type validator interface {
	validate() error
}

// validateAs decodes the raw payload into its typed variant and runs its
// checks. DisallowUnknownFields keeps the payload set closed.
func validateAs[T any](raw json.RawMessage) error {
	_, err := decodeStrict[T](raw)
	return err
}

// decodeStrict is the shared strict decode: unknown fields rejected, variant
// checks applied. Bulk jobs reuse it per embedded operation.
func decodeStrict[T any](raw json.RawMessage) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	if c, ok := any(&v).(validator); ok {
		if err := c.validate(); err != nil {
			return v, err
		}
	}
	return v, nil
}

// decode re-parses the payload inside a handler. Validation already ran at
// the enqueue boundary, so a failure here is a programming error and is
// flagged permanent.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, domain.Permanent(fmt.Errorf("decode payload: %w", err))
	}
	return v, nil
}

// ---- compound interest ----

type CompoundInterestParams struct {
	Principal float64 `json:"principal"`
	Rate      float64 `json:"rate"`
	Years     float64 `json:"time"`
	// Compounding periods per year; defaults to 1 (annual).
	Frequency int `json:"compound_frequency,omitempty"`
}

func (p *CompoundInterestParams) validate() error {
	if p.Principal <= 0 || p.Rate <= 0 || p.Years <= 0 {
		return errors.New("principal, rate and time must be positive")
	}
	if p.Frequency < 0 {
		return errors.New("compound_frequency must not be negative")
	}
	return nil
}

type CompoundInterestResult struct {
	Principal     float64 `json:"principal"`
	Rate          float64 `json:"rate"`
	Years         float64 `json:"time"`
	Frequency     int     `json:"compound_frequency"`
	FinalAmount   float64 `json:"final_amount"`
	TotalInterest float64 `json:"total_interest"`
}

func compoundInterest(p CompoundInterestParams) CompoundInterestResult {
	if p.Frequency == 0 {
		p.Frequency = 1
	}

	n := float64(p.Frequency)
	amount := p.Principal * math.Pow(1+p.Rate/n, n*p.Years)

	return CompoundInterestResult{
		Principal:     p.Principal,
		Rate:          p.Rate,
		Years:         p.Years,
		Frequency:     p.Frequency,
		FinalAmount:   round2(amount),
		TotalInterest: round2(amount - p.Principal),
	}
}

func handleCompoundInterest(_ context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
	p, err := decode[CompoundInterestParams](job.Payload)
	if err != nil {
		return nil, err
	}
	return compoundInterest(p), nil
}

// ---- present / future value ----

type PresentValueParams struct {
	FutureValue float64 `json:"future_value"`
	Rate        float64 `json:"rate"`
	Years       float64 `json:"time"`
}

func (p *PresentValueParams) validate() error {
	if p.FutureValue <= 0 || p.Rate <= 0 || p.Years <= 0 {
		return errors.New("future_value, rate and time must be positive")
	}
	return nil
}

func presentValue(p PresentValueParams) map[string]float64 {
	pv := p.FutureValue / math.Pow(1+p.Rate, p.Years)
	return map[string]float64{
		"future_value":    p.FutureValue,
		"rate":            p.Rate,
		"time":            p.Years,
		"present_value":   round2(pv),
		"discount_amount": round2(p.FutureValue - pv),
	}
}

func handlePresentValue(_ context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
	p, err := decode[PresentValueParams](job.Payload)
	if err != nil {
		return nil, err
	}
	return presentValue(p), nil
}

type FutureValueParams struct {
	PresentValue float64 `json:"present_value"`
	Rate         float64 `json:"rate"`
	Years        float64 `json:"time"`
}

func (p *FutureValueParams) validate() error {
	if p.PresentValue <= 0 || p.Rate <= 0 || p.Years <= 0 {
		return errors.New("present_value, rate and time must be positive")
	}
	return nil
}

func futureValue(p FutureValueParams) map[string]float64 {
	fv := p.PresentValue * math.Pow(1+p.Rate, p.Years)
	return map[string]float64{
		"present_value": p.PresentValue,
		"rate":          p.Rate,
		"time":          p.Years,
		"future_value":  round2(fv),
		"total_growth":  round2(fv - p.PresentValue),
	}
}

func handleFutureValue(_ context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
	p, err := decode[FutureValueParams](job.Payload)
	if err != nil {
		return nil, err
	}
	return futureValue(p), nil
}

// ---- loan payment ----

type LoanPaymentParams struct {
	Principal  float64 `json:"principal"`
	AnnualRate float64 `json:"rate"`
	TermMonths int     `json:"term_months"`
}

func (p *LoanPaymentParams) validate() error {
	if p.Principal <= 0 || p.AnnualRate <= 0 || p.TermMonths <= 0 {
		return errors.New("principal, rate and term_months must be positive")
	}
	return nil
}

type LoanPaymentResult struct {
	Principal      float64 `json:"principal"`
	AnnualRate     float64 `json:"rate"`
	TermMonths     int     `json:"term_months"`
	MonthlyPayment float64 `json:"monthly_payment"`
	TotalPayments  float64 `json:"total_payments"`
	TotalInterest  float64 `json:"total_interest"`
}

func loanPayment(p LoanPaymentParams) LoanPaymentResult {
	monthlyRate := p.AnnualRate / 12
	term := float64(p.TermMonths)
	factor := math.Pow(1+monthlyRate, term)
	payment := p.Principal * (monthlyRate * factor) / (factor - 1)

	return LoanPaymentResult{
		Principal:      p.Principal,
		AnnualRate:     p.AnnualRate,
		TermMonths:     p.TermMonths,
		MonthlyPayment: round2(payment),
		TotalPayments:  round2(payment * term),
		TotalInterest:  round2(payment*term - p.Principal),
	}
}

func handleLoanPayment(_ context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
	p, err := decode[LoanPaymentParams](job.Payload)
	if err != nil {
		return nil, err
	}
	return loanPayment(p), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
