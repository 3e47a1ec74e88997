// Package scrape holds the HTML heuristics shared by the pipeline stages: the
// ordered strategy chain, page parsing, indicator rules and path exclusion.
package scrape

import (
	"context"

	"go.uber.org/zap"
)

// Attempt records what a single strategy produced during a chain run.
type Attempt struct {
	Strategy string
	Links    int
	Err      error
}

// Outcome is the result of a chain run. Winner is empty when no strategy
// produced links.
type Outcome struct {
	Links    []string
	Winner   string
	Attempts []Attempt
}

// Found reports whether some strategy produced links.
func (o Outcome) Found() bool {
	return len(o.Links) > 0
}

// Chain tries strategies in order and keeps the first non-empty result.
type Chain struct {
	task       string
	strategies []Strategy
}

// NewChain creates a Chain for the named task. Strategies are tried in the
// order given.
func NewChain(task string, strategies ...Strategy) *Chain {
	return &Chain{task: task, strategies: strategies}
}

// Names returns the strategy names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Run executes the chain. A failing strategy is logged and skipped; finding
// nothing is a valid outcome, so Run never returns an error.
func (c *Chain) Run(ctx context.Context) Outcome {
	var out Outcome
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			zap.L().Debug("scrape: chain cancelled",
				zap.String("task", c.task),
				zap.Error(ctx.Err()),
			)
			return out
		}

		links, err := s.Find(ctx)
		out.Attempts = append(out.Attempts, Attempt{Strategy: s.Name(), Links: len(links), Err: err})
		if err != nil {
			zap.L().Warn("scrape: strategy failed, trying next",
				zap.String("task", c.task),
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			continue
		}
		if len(links) == 0 {
			zap.L().Debug("scrape: strategy found nothing",
				zap.String("task", c.task),
				zap.String("strategy", s.Name()),
			)
			continue
		}

		out.Links = links
		out.Winner = s.Name()
		zap.L().Info("scrape: strategy succeeded",
			zap.String("task", c.task),
			zap.String("strategy", s.Name()),
			zap.Int("links", len(links)),
		)
		return out
	}
	return out
}
