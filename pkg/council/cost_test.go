package council

import "testing"

func TestRecordUsageAccumulatesTokens(t *testing.T) {
	c := NewCostBreakdown()
	c.RecordUsage(AgentG, "gpt-4o", Usage{InputTokens: 120, OutputTokens: 80})
	c.RecordUsage(AgentG, "gpt-4o", Usage{InputTokens: 60, OutputTokens: 40})

	if c.TotalInputTokens != 180 || c.TotalOutputTokens != 120 {
		t.Fatalf("expected totals 180/120, got %d/%d", c.TotalInputTokens, c.TotalOutputTokens)
	}
	entry := c.PerAgent[AgentG]
	if entry.InputTokens != 180 || entry.OutputTokens != 120 {
		t.Fatalf("expected per-agent 180/120, got %d/%d", entry.InputTokens, entry.OutputTokens)
	}
}

func TestPricingAvailableFlipsOnFirstPricedModel(t *testing.T) {
	c := NewCostBreakdown()
	c.RecordUsage(AgentG, "some-unpriced-model", Usage{InputTokens: 100, OutputTokens: 50})
	if c.PricingAvailable {
		t.Fatalf("expected pricing unavailable for an unknown model")
	}
	if c.TotalUSD != 0 {
		t.Fatalf("expected zero cost for an unknown model, got %v", c.TotalUSD)
	}

	c.RecordUsage(AgentC, "gpt-4o", Usage{InputTokens: 100, OutputTokens: 50})
	if !c.PricingAvailable {
		t.Fatalf("expected pricing available once a priced model is recorded")
	}
	if c.TotalUSD <= 0 {
		t.Fatalf("expected nonzero cost for a priced model")
	}
}

func TestTotalsEqualSumOfPerAgentBreakdowns(t *testing.T) {
	c := NewCostBreakdown()
	c.RecordUsage(AgentG, "gpt-4o", Usage{InputTokens: 120, OutputTokens: 80})
	c.RecordUsage(AgentC, "claude-sonnet-4", Usage{InputTokens: 300, OutputTokens: 150})
	c.RecordUsage(AgentF, "gemini-2.5-pro", Usage{InputTokens: 90, OutputTokens: 45, ReasoningTokens: 30, HasReasoning: true})

	var input, output, reasoning int
	var usd float64
	for _, entry := range c.PerAgent {
		input += entry.InputTokens
		output += entry.OutputTokens
		reasoning += entry.ReasoningTokens
		usd += entry.USD
	}
	if input != c.TotalInputTokens || output != c.TotalOutputTokens || reasoning != c.TotalReasoningTokens {
		t.Fatalf("per-agent token sums diverge from totals: %d/%d/%d vs %d/%d/%d",
			input, output, reasoning, c.TotalInputTokens, c.TotalOutputTokens, c.TotalReasoningTokens)
	}
	if usd != c.TotalUSD {
		t.Fatalf("per-agent USD sum %v diverges from total %v", usd, c.TotalUSD)
	}
}

func TestReasoningTokensOnlyCountedWhenReported(t *testing.T) {
	c := NewCostBreakdown()
	c.RecordUsage(AgentG, "gpt-4o", Usage{InputTokens: 10, OutputTokens: 5, ReasoningTokens: 99, HasReasoning: false})
	if c.TotalReasoningTokens != 0 {
		t.Fatalf("expected reasoning tokens ignored when the provider did not report them")
	}
}

func TestExceedsBudget(t *testing.T) {
	c := NewCostBreakdown()
	c.TotalUSD = 1.5
	if c.ExceedsBudget(0) {
		t.Fatalf("zero ceiling means no budget enforced")
	}
	if c.ExceedsBudget(2.0) {
		t.Fatalf("expected under-budget")
	}
	if !c.ExceedsBudget(1.5) {
		t.Fatalf("expected ceiling reached at equality")
	}
}
