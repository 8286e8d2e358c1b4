package compute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
)

// maxBulkOperations bounds one bulk job so a single payload cannot occupy a
// worker slot indefinitely.
const maxBulkOperations = 100

type BulkOperation struct {
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

type BulkParams struct {
	Operations []BulkOperation `json:"operations"`
}

func (p *BulkParams) validate() error {
	if len(p.Operations) == 0 {
		return errors.New("operations must not be empty")
	}
	if len(p.Operations) > maxBulkOperations {
		return fmt.Errorf("operations are capped at %d per job", maxBulkOperations)
	}
	for i, op := range p.Operations {
		if op.Type == "" {
			return fmt.Errorf("operation %d is missing a type", i)
		}
	}
	return nil
}

type BulkItemResult struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type BulkResult struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}

// handleBulk runs each embedded calculation in order. A failing operation is
// recorded in its slot and does not abort the batch, so partial results
// survive one bad item.
func handleBulk(ctx context.Context, job *domain.Job, report queue.ProgressFunc) (any, error) {
	p, err := decode[BulkParams](job.Payload)
	if err != nil {
		return nil, err
	}

	out := BulkResult{Results: make([]BulkItemResult, 0, len(p.Operations))}
	for i, op := range p.Operations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := BulkItemResult{ID: op.ID, Type: op.Type}
		result, err := runOperation(op)
		if err != nil {
			item.Error = err.Error()
			out.Failed++
		} else {
			item.Result = result
			out.Succeeded++
		}
		out.Results = append(out.Results, item)
		report((i + 1) * 100 / len(p.Operations))
	}
	return out, nil
}

// runOperation dispatches one embedded operation. Only scalar calculation
// types are allowed inside a batch; portfolio analysis carries its own
// transaction history and runs as a dedicated job.
func runOperation(op BulkOperation) (any, error) {
	switch op.Type {
	case TypeCompoundInterest:
		p, err := decodeStrict[CompoundInterestParams](op.Params)
		if err != nil {
			return nil, err
		}
		return compoundInterest(p), nil
	case TypePresentValue:
		p, err := decodeStrict[PresentValueParams](op.Params)
		if err != nil {
			return nil, err
		}
		return presentValue(p), nil
	case TypeFutureValue:
		p, err := decodeStrict[FutureValueParams](op.Params)
		if err != nil {
			return nil, err
		}
		return futureValue(p), nil
	case TypeLoanPayment:
		p, err := decodeStrict[LoanPaymentParams](op.Params)
		if err != nil {
			return nil, err
		}
		return loanPayment(p), nil
	case TypeRetirementPlanning:
		p, err := decodeStrict[RetirementParams](op.Params)
		if err != nil {
			return nil, err
		}
		return retirementPlan(p), nil
	default:
		return nil, fmt.Errorf("unknown calculation type %q", op.Type)
	}
}
