package scrape

import "context"

// Strategy is one way of locating links for a task. Strategies that emit
// page links claim them in the run ledger before returning them.
type Strategy interface {
	Name() string
	Find(ctx context.Context) ([]string, error)
}

type strategyFunc struct {
	name string
	fn   func(ctx context.Context) ([]string, error)
}

func (s strategyFunc) Name() string { return s.name }

func (s strategyFunc) Find(ctx context.Context) ([]string, error) { return s.fn(ctx) }

// NewStrategy adapts a function into a named Strategy.
func NewStrategy(name string, fn func(ctx context.Context) ([]string, error)) Strategy {
	return strategyFunc{name: name, fn: fn}
}
