package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/mcpguard/mcp-guard/internal/domain/identity"
)

// maxExpressionLength bounds a predicate's source length so a malicious or
// malformed config entry can't feed an arbitrarily large expression into
// the compiler.
const maxExpressionLength = 1024

// maxCostBudget bounds a compiled predicate's runtime cost, closing off
// cost-exhaustion from a pathological expression.
const maxCostBudget = 100_000

// evalTimeout bounds a single evaluation's wall-clock time.
const evalTimeout = 2 * time.Second

// Predicate is a compiled boolean CEL expression evaluated against an
// Identity's claims and id. It is a standalone API: the configuration has
// no field for predicates, and neither the scope→tool mapping nor the
// tool filter evaluates one, so allow-sets come from the static mapping
// alone.
type Predicate struct {
	source string
	prg    cel.Program
}

var (
	predicateEnvOnce sync.Once
	predicateEnv     *cel.Env
	predicateEnvErr  error
)

func predicateEnvironment() (*cel.Env, error) {
	predicateEnvOnce.Do(func() {
		predicateEnv, predicateEnvErr = cel.NewEnv(
			cel.Variable("claims", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("identity_id", cel.StringType),
		)
	})
	if predicateEnvErr != nil {
		return nil, fmt.Errorf("authz: build cel environment: %w", predicateEnvErr)
	}
	return predicateEnv, nil
}

// CompilePredicate compiles expr, a boolean CEL expression over `claims`
// (the Identity's claim map) and `identity_id`.
func CompilePredicate(expr string) (*Predicate, error) {
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("authz: predicate exceeds maximum length of %d", maxExpressionLength)
	}
	env, err := predicateEnvironment()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("authz: compile predicate: %w", issues.Err())
	}
	prg, err := env.Program(ast, cel.EvalOptions(cel.OptOptimize), cel.CostLimit(maxCostBudget))
	if err != nil {
		return nil, fmt.Errorf("authz: build predicate program: %w", err)
	}
	return &Predicate{source: expr, prg: prg}, nil
}

// Eval reports whether id satisfies the predicate. A runtime error (type
// mismatch, missing field) is treated as false — a predicate never panics
// its way into granting access.
func (p *Predicate) Eval(ctx context.Context, id identity.Identity) bool {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	out, _, err := p.prg.ContextEval(ctx, map[string]any{
		"claims":      id.Claims,
		"identity_id": id.ID,
	})
	if err != nil {
		return false
	}
	result, ok := out.Value().(bool)
	return ok && result
}

func (p *Predicate) String() string { return p.source }
