package quota

import (
	"fmt"
	"slices"
)

type Resource string

const (
	Chat             Resource = "chat"
	Voice            Resource = "voice"
	Speech           Resource = "speech"
	Affirmation      Resource = "affirmation"
	CrisisGuidance   Resource = "crisis_guidance"
	OnboardingReport Resource = "onboarding_report"
)

type Unit string

const (
	UnitCount   Unit = "count"
	UnitSeconds Unit = "seconds"
)

// Scope says whose identity keys the counters.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeDevice Scope = "device"
)

// Window is one calendar limit of a rule.
type Window struct {
	Period Period
	Limit  int64
}

// Rule is the full quota declaration for one resource.
type Rule struct {
	Resource            Resource
	Unit                Unit
	Scope               Scope
	RequiresEntitlement bool
	Windows             []Window
}

// Policy holds the rules for every metered resource.
type Policy struct {
	rules map[Resource]Rule
	order []Resource
}

// NewPolicy validates rules. Windows are kept in the declared order, which is
// the order reservations are taken.
func NewPolicy(rules ...Rule) (*Policy, error) {
	p := &Policy{rules: make(map[Resource]Rule, len(rules))}
	for _, r := range rules {
		if r.Resource == "" {
			return nil, fmt.Errorf("%w: empty resource", ErrInvalidPolicy)
		}
		if _, dup := p.rules[r.Resource]; dup {
			return nil, fmt.Errorf("%w: duplicate resource %q", ErrInvalidPolicy, r.Resource)
		}
		if len(r.Windows) == 0 {
			return nil, fmt.Errorf("%w: %q has no windows", ErrInvalidPolicy, r.Resource)
		}
		seen := map[Period]bool{}
		for _, w := range r.Windows {
			if !w.Period.valid() {
				return nil, fmt.Errorf("%w: %q has unknown period %q", ErrInvalidPolicy, r.Resource, w.Period)
			}
			if w.Limit <= 0 {
				return nil, fmt.Errorf("%w: %q limit must be positive", ErrInvalidPolicy, r.Resource)
			}
			if seen[w.Period] {
				return nil, fmt.Errorf("%w: %q repeats period %q", ErrInvalidPolicy, r.Resource, w.Period)
			}
			seen[w.Period] = true
		}
		if r.Unit == "" {
			r.Unit = UnitCount
		}
		if r.Scope == "" {
			r.Scope = ScopeUser
		}
		r.Windows = slices.Clone(r.Windows)
		p.rules[r.Resource] = r
		p.order = append(p.order, r.Resource)
	}
	return p, nil
}

// MustPolicy is NewPolicy that panics on error.
func MustPolicy(rules ...Rule) *Policy {
	p, err := NewPolicy(rules...)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPolicy returns the production limits.
func DefaultPolicy() *Policy {
	return MustPolicy(
		Rule{Resource: Chat, RequiresEntitlement: true, Windows: []Window{{Hourly, 20}, {Daily, 200}}},
		Rule{Resource: Voice, RequiresEntitlement: true, Windows: []Window{{Daily, 50}}},
		Rule{Resource: Speech, Unit: UnitSeconds, RequiresEntitlement: true, Windows: []Window{{Daily, 240}}},
		Rule{Resource: Affirmation, RequiresEntitlement: true, Windows: []Window{{Daily, 3}}},
		Rule{Resource: CrisisGuidance, Windows: []Window{{Daily, 10}}},
		Rule{Resource: OnboardingReport, Scope: ScopeDevice, Windows: []Window{{Daily, 5}}},
	)
}

// Rule returns the rule for r.
func (p *Policy) Rule(r Resource) (Rule, error) {
	rule, ok := p.rules[r]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownResource, r)
	}
	return rule, nil
}

// Resources lists resources in declaration order.
func (p *Policy) Resources() []Resource {
	return slices.Clone(p.order)
}

// ParseResource resolves s against the policy.
func (p *Policy) ParseResource(s string) (Resource, error) {
	r := Resource(s)
	if _, ok := p.rules[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
	}
	return r, nil
}
