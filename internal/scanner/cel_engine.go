package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/mcprelay/mcprelay/internal/domain/destination"
)

// Guardrails mirror the cost/length/nesting/timeout limits a CEL-based
// evaluator needs to stay bounded against adversarial expressions or
// adversarial input, independent of what the expression is checking for.
const (
	maxExpressionLength = 1024
	maxCostBudget       = 100_000
	maxNestingDepth      = 50
	evalTimeout          = 5 * time.Second
	interruptCheckFreq   = 100
)

// StructuralRule is a named CEL boolean expression evaluated against the
// decoded JSON-RPC params of a request or response body. A true result is
// a detection.
type StructuralRule struct {
	Name       string
	Expression string
}

type compiledStructuralRule struct {
	name string
	prg  cel.Program
}

// CELEngine is the second scan engine: structural rules over decoded
// params, as opposed to RegexEngine's plain pattern matching over string
// leaves.
type CELEngine struct {
	env   *cel.Env
	rules []compiledStructuralRule
}

// NewCELEngine compiles rules against a CEL environment exposing a single
// `params` dyn variable bound to the request/response's decoded JSON body.
func NewCELEngine(rules []StructuralRule) (*CELEngine, error) {
	env, err := cel.NewEnv(cel.Variable("params", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("scanner: create cel env: %w", err)
	}

	e := &CELEngine{env: env}
	for _, r := range rules {
		if err := validateExpression(r.Expression); err != nil {
			return nil, fmt.Errorf("scanner: rule %q: %w", r.Name, err)
		}
		prg, err := compileRule(env, r.Expression)
		if err != nil {
			return nil, fmt.Errorf("scanner: rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiledStructuralRule{name: r.Name, prg: prg})
	}
	return e, nil
}

func validateExpression(expr string) error {
	if expr == "" {
		return fmt.Errorf("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	depth, maxDepth := 0, 0
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

func compileRule(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	return prg, nil
}

// Scan implements Scanner. Non-JSON bodies never match: structural rules
// only make sense against decoded params.
func (e *CELEngine) Scan(settings destination.ScanSettings, _ bool, body []byte) Result {
	if len(e.rules) == 0 {
		return passResult
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return passResult
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	for _, rule := range e.rules {
		result, _, err := rule.prg.ContextEval(ctx, map[string]interface{}{"params": decoded})
		if err != nil {
			continue
		}
		matched, ok := result.Value().(bool)
		if !ok || !matched {
			continue
		}
		switch settings.RegexMode {
		case destination.ScanRedact:
			return Result{Action: ActionRedact, Engine: "cel", Detail: rule.name, Body: redactedPlaceholder}
		case destination.ScanBlock:
			return Result{Action: ActionBlock, Engine: "cel", Detail: rule.name}
		default:
			return Result{Action: ActionMonitor, Engine: "cel", Detail: rule.name}
		}
	}
	return passResult
}
