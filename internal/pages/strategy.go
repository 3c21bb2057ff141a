package pages

import (
	"fmt"
	"strings"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/errs"
)

// Scope is anything selectors can be evaluated in: a page or a locator.
type Scope interface {
	Locator(selector string) browser.Locator
}

// Strategy is one way of locating something. The first strategy whose
// selector matches has Apply called with its first match. An empty Selector
// always applies and receives a nil locator. A nil Apply only reports the match.
type Strategy struct {
	Name     string
	Selector string
	Apply    func(match browser.Locator) error
}

// RunStrategies evaluates strategies in order, stopping at the first match,
// and returns the name of the strategy that applied. When none matches the
// error has code errs.NoStrategyMatched.
func RunStrategies(scope Scope, strategies []Strategy) (string, error) {
	for _, s := range strategies {
		if s.Selector == "" {
			return s.Name, apply(s, nil)
		}
		loc := scope.Locator(s.Selector)
		count, err := loc.Count()
		if err != nil {
			return "", fmt.Errorf("strategy %s: count %q: %w", s.Name, s.Selector, err)
		}
		if count > 0 {
			return s.Name, apply(s, loc.First())
		}
	}
	return "", errs.New(errs.NoStrategyMatched, "no strategy matched: "+strategyNames(strategies))
}

// AnyMatches reports whether any of selectors matches in scope.
func AnyMatches(scope Scope, selectors ...string) (bool, error) {
	strategies := make([]Strategy, len(selectors))
	for i, sel := range selectors {
		strategies[i] = Strategy{Name: sel, Selector: sel}
	}
	_, err := RunStrategies(scope, strategies)
	if errs.Is(err, errs.NoStrategyMatched) {
		return false, nil
	}
	return err == nil, err
}

func apply(s Strategy, match browser.Locator) error {
	if s.Apply == nil {
		return nil
	}
	if err := s.Apply(match); err != nil {
		return fmt.Errorf("strategy %s: %w", s.Name, err)
	}
	return nil
}

func strategyNames(strategies []Strategy) string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}
