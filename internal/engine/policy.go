package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/rguerramena-source/decision-api/internal/domain"
)

// PolicyEngine compiles and evaluates operator-defined CEL stop rules.
// Policies let a collections operator add kill switches (say, a regulator
// ordering a halt on a product line) without a deploy; with none loaded
// the cascade is unchanged.
type PolicyEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledPolicy
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Policy  *domain.Policy
	Program cel.Program
}

// NewPolicyEngine creates a policy engine with the loan evaluation
// variables in scope.
func NewPolicyEngine() (*PolicyEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("overdue_days", cel.IntType),
		cel.Variable("attempts", cel.IntType),
		cel.Variable("bank", cel.StringType),
		cel.Variable("last_status", cel.StringType),
		cel.Variable("category", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &PolicyEngine{
		env:      env,
		compiled: make(map[string]*CompiledPolicy),
	}, nil
}

// Validate compiles a policy without loading it.
func (p *PolicyEngine) Validate(policy *domain.Policy) error {
	if policy == nil {
		return fmt.Errorf("policy is required")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	_, err := p.compile(policy)
	return err
}

// Load compiles a policy and adds it to the engine.
func (p *PolicyEngine) Load(policy *domain.Policy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	compiled, err := p.compile(policy)
	if err != nil {
		return err
	}

	p.compiled[policy.ID] = compiled
	return nil
}

// LoadAll compiles and loads every enabled policy.
func (p *PolicyEngine) LoadAll(policies []*domain.Policy) error {
	for _, policy := range policies {
		if policy.Enabled {
			if err := p.Load(policy); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reload replaces all loaded policies atomically. Enables hot-reloading
// from the repository.
func (p *PolicyEngine) Reload(policies []*domain.Policy) error {
	fresh := make(map[string]*CompiledPolicy)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, policy := range policies {
		if !policy.Enabled {
			continue
		}
		compiled, err := p.compile(policy)
		if err != nil {
			return err
		}
		fresh[policy.ID] = compiled
	}

	p.compiled = fresh
	return nil
}

// Count returns the number of loaded policies.
func (p *PolicyEngine) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.compiled)
}

// Loaded returns the currently loaded policies sorted by ID.
func (p *PolicyEngine) Loaded() []*domain.Policy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	policies := make([]*domain.Policy, 0, len(p.compiled))
	for _, c := range p.compiled {
		policies = append(policies, c.Policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })
	return policies
}

// EvaluateStop runs every loaded policy against the loan in ID order and
// returns a stop verdict for the first one that matches. Evaluation errors
// are treated as non-matches: a broken policy must never halt collections
// by accident.
func (p *PolicyEngine) EvaluateStop(ctx *evalContext) *verdict {
	p.mu.RLock()
	ordered := make([]*CompiledPolicy, 0, len(p.compiled))
	for _, c := range p.compiled {
		ordered = append(ordered, c)
	}
	p.mu.RUnlock()

	if len(ordered) == 0 {
		return nil
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Policy.ID < ordered[j].Policy.ID })

	activation := map[string]any{
		"amount":       ctx.amount,
		"overdue_days": int64(ctx.days),
		"attempts":     int64(ctx.attempts),
		"bank":         ctx.loan.PaymentMethodBank,
		"last_status":  ctx.state.LastStatus,
		"category":     string(ctx.category),
	}

	for _, c := range ordered {
		out, _, err := c.Program.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			label := c.Policy.ReasonLabel
			if label == "" {
				label = c.Policy.Name
			}
			return &verdict{
				action: domain.ActionStop,
				code:   domain.ReasonPolicyStop,
				label:  label,
				conf:   c.Policy.Confidence,
			}
		}
	}

	return nil
}

func (p *PolicyEngine) compile(policy *domain.Policy) (*CompiledPolicy, error) {
	ast, issues := p.env.Compile(policy.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", policy.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", policy.ID, ast.OutputType())
	}

	program, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", policy.ID, err)
	}

	return &CompiledPolicy{Policy: policy, Program: program}, nil
}
