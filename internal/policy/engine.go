package policy

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/printwarden/printwarden/internal/config"
)

// Effect constants match the values used in config.PrintRuleConfig.Effect.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// Result is the outcome of evaluating all print rules against a job.
type Result struct {
	Effect   string // allow or deny
	RuleName string // name of the rule that fired, empty if nothing matched
	Message  string // operator-supplied explanation for deny results
}

// compiledPolicy pairs a compiled condition with its configured effect.
type compiledPolicy struct {
	name    string
	effect  string
	message string
	rule    CompiledRule
}

// Engine holds the compiled, ordered print rules and evaluates each new job
// against them. Rules are checked in config order; the first match decides.
// An explicit allow match short-circuits later deny rules, which lets
// operators whitelist specific documents above a broad deny.
//
// Engine is safe for concurrent use; rules can be swapped via LoadRules
// without stopping the monitor.
type Engine struct {
	mu      sync.RWMutex
	rules   []compiledPolicy
	celEval *CELEvaluator
	logger  *slog.Logger
}

// NewEngine creates an Engine. Call LoadRules to populate it.
func NewEngine(celEval *CELEvaluator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		celEval: celEval,
		logger:  logger.With("component", "policy.Engine"),
	}
}

// LoadRules compiles the configured rules and swaps them in atomically. A
// rule that fails to compile is skipped with an error logged; the returned
// error reports how many failed so startup can warn without aborting.
func (e *Engine) LoadRules(configs []config.PrintRuleConfig) error {
	compiled := make([]compiledPolicy, 0, len(configs))
	failed := 0

	for _, rc := range configs {
		rule, err := e.celEval.CompileExpression(rc.Condition)
		if err != nil {
			e.logger.Error("skipping print rule that failed to compile",
				"rule", rc.Name,
				"error", err,
			)
			failed++
			continue
		}
		compiled = append(compiled, compiledPolicy{
			name:    rc.Name,
			effect:  rc.Effect,
			message: rc.Message,
			rule:    rule,
		})
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()

	e.logger.Info("loaded print rules", "count", len(compiled), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d print rule(s) failed to compile", failed)
	}
	return nil
}

// RuleCount returns the number of active rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs the job through the rules in order. A rule whose condition
// errors at runtime is skipped with a log; a broken rule must not block
// every job on the kiosk, the budget gate still stands behind it.
func (e *Engine) Evaluate(job JobContext) Result {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, p := range rules {
		matched, err := e.celEval.Evaluate(p.rule, job)
		if err != nil {
			e.logger.Error("print rule evaluation failed",
				"rule", p.name,
				"document", job.Document,
				"printer", job.Printer,
				"error", err,
			)
			continue
		}
		if !matched {
			continue
		}
		if p.effect == EffectDeny {
			e.logger.Warn("print rule denied job",
				"rule", p.name,
				"document", job.Document,
				"printer", job.Printer,
				"pages", job.Pages,
			)
		}
		return Result{Effect: p.effect, RuleName: p.name, Message: p.message}
	}

	return Result{Effect: EffectAllow}
}
