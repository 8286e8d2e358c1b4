package compute

import (
	"context"
	"errors"
	"sort"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
)

// PortfolioParams carries the full transaction history for one portfolio.
// Analysis is stateless: positions are rebuilt from scratch every run.
type PortfolioParams struct {
	UserID       string                 `json:"user_id"`
	Transactions []PortfolioTransaction `json:"transactions"`
}

type PortfolioTransaction struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"type"` // buy or sell
	Shares       float64 `json:"shares"`
	Price        float64 `json:"price"`
	CurrentPrice float64 `json:"current_price"`
}

func (p *PortfolioParams) validate() error {
	if len(p.Transactions) == 0 {
		return errors.New("transactions must not be empty")
	}
	for _, tx := range p.Transactions {
		if tx.Symbol == "" {
			return errors.New("transaction symbol is required")
		}
		if tx.Side != "buy" && tx.Side != "sell" {
			return errors.New("transaction type must be buy or sell")
		}
		if tx.Shares <= 0 || tx.Price <= 0 {
			return errors.New("shares and price must be positive")
		}
	}
	return nil
}

type Holding struct {
	Symbol       string  `json:"symbol"`
	Shares       float64 `json:"shares"`
	CostBasis    float64 `json:"cost_basis"`
	CurrentValue float64 `json:"current_value"`
	GainLoss     float64 `json:"gain_loss"`
	GainLossPct  float64 `json:"gain_loss_pct"`
}

type PortfolioResult struct {
	UserID        string    `json:"user_id,omitempty"`
	Holdings      []Holding `json:"holdings"`
	TotalCost     float64   `json:"total_cost"`
	TotalValue    float64   `json:"total_value"`
	TotalGainLoss float64   `json:"total_gain_loss"`
}

func handlePortfolio(_ context.Context, job *domain.Job, report queue.ProgressFunc) (any, error) {
	p, err := decode[PortfolioParams](job.Payload)
	if err != nil {
		return nil, err
	}

	type position struct {
		shares, cost, lastPrice float64
	}
	positions := make(map[string]*position)

	for i, tx := range p.Transactions {
		pos := positions[tx.Symbol]
		if pos == nil {
			pos = &position{}
			positions[tx.Symbol] = pos
		}
		switch tx.Side {
		case "buy":
			pos.shares += tx.Shares
			pos.cost += tx.Shares * tx.Price
		case "sell":
			if tx.Shares > pos.shares {
				return nil, domain.Permanent(errors.New("sell exceeds held shares for " + tx.Symbol))
			}
			// Reduce cost basis proportionally to the shares sold.
			pos.cost -= pos.cost * (tx.Shares / pos.shares)
			pos.shares -= tx.Shares
		}
		if tx.CurrentPrice > 0 {
			pos.lastPrice = tx.CurrentPrice
		} else {
			pos.lastPrice = tx.Price
		}

		if len(p.Transactions) > 0 {
			report((i + 1) * 100 / len(p.Transactions))
		}
	}

	out := PortfolioResult{UserID: p.UserID}
	for symbol, pos := range positions {
		if pos.shares <= 0 {
			continue
		}
		value := pos.shares * pos.lastPrice
		h := Holding{
			Symbol:       symbol,
			Shares:       pos.shares,
			CostBasis:    round2(pos.cost),
			CurrentValue: round2(value),
			GainLoss:     round2(value - pos.cost),
		}
		if pos.cost > 0 {
			h.GainLossPct = round2((value - pos.cost) / pos.cost * 100)
		}
		out.Holdings = append(out.Holdings, h)
		out.TotalCost += pos.cost
		out.TotalValue += value
	}
	sort.Slice(out.Holdings, func(i, j int) bool {
		return out.Holdings[i].Symbol < out.Holdings[j].Symbol
	})

	out.TotalCost = round2(out.TotalCost)
	out.TotalValue = round2(out.TotalValue)
	out.TotalGainLoss = round2(out.TotalValue - out.TotalCost)
	return out, nil
}
