package council

import "github.com/socratic-council/council/internal/pricing"

// AgentCost accumulates token usage and estimated spend for one agent
// across a session.
type AgentCost struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	USD             float64
}

// CostBreakdown is the session-wide cost ledger.
// PricingAvailable flips true the first time any recorded
// usage belongs to a model with known pricing.
type CostBreakdown struct {
	PerAgent             map[AgentID]*AgentCost
	TotalInputTokens     int
	TotalOutputTokens    int
	TotalReasoningTokens int
	TotalUSD             float64
	PricingAvailable     bool
}

// NewCostBreakdown returns an empty ledger.
func NewCostBreakdown() CostBreakdown {
	return CostBreakdown{PerAgent: make(map[AgentID]*AgentCost)}
}

// RecordUsage folds one provider call's token usage into the ledger,
// looking up per-model pricing from the pricing registry. A model absent
// from the registry contributes tokens but zero cost and does not flip
// PricingAvailable on its own.
func (c *CostBreakdown) RecordUsage(agentID AgentID, model string, usage Usage) {
	if c.PerAgent == nil {
		c.PerAgent = make(map[AgentID]*AgentCost)
	}
	entry, ok := c.PerAgent[agentID]
	if !ok {
		entry = &AgentCost{}
		c.PerAgent[agentID] = entry
	}

	entry.InputTokens += usage.InputTokens
	entry.OutputTokens += usage.OutputTokens
	c.TotalInputTokens += usage.InputTokens
	c.TotalOutputTokens += usage.OutputTokens
	if usage.HasReasoning {
		entry.ReasoningTokens += usage.ReasoningTokens
		c.TotalReasoningTokens += usage.ReasoningTokens
	}

	price, found := pricing.Lookup(model)
	if !found {
		return
	}
	c.PricingAvailable = true

	usd := (float64(usage.InputTokens)/1_000_000)*price.InputPerMillion +
		(float64(usage.OutputTokens)/1_000_000)*price.OutputPerMillion
	entry.USD += usd
	c.TotalUSD += usd
}

// ExceedsBudget reports whether the running total has passed the given
// ceiling. A ceiling of zero or less means no budget is enforced.
func (c CostBreakdown) ExceedsBudget(ceilingUSD float64) bool {
	if ceilingUSD <= 0 {
		return false
	}
	return c.TotalUSD >= ceilingUSD
}
