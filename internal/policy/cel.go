// Package policy evaluates operator-defined print rules against newly
// observed jobs. Rules are CEL expressions compiled once at load time; a
// matching deny rule cancels the job before the budget is even consulted.
package policy

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
)

// JobContext holds everything a print rule can inspect about a job.
type JobContext struct {
	Document string
	Pages    int
	Printer  string
	Color    bool
	UserID   string
}

// CompiledRule wraps a pre-compiled CEL program for fast repeated evaluation.
type CompiledRule struct {
	Expression string
	program    cel.Program
}

// CELEvaluator compiles and evaluates CEL expressions against JobContext
// values. Expressions are compiled once at load time; evaluation is
// lock-free and safe for concurrent use.
type CELEvaluator struct {
	env    *cel.Env
	logger *slog.Logger
}

// NewCELEvaluator creates a CELEvaluator with the variable declarations
// available in print rule conditions.
func NewCELEvaluator(logger *slog.Logger) (*CELEvaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(
		cel.Variable("job.document", cel.StringType),
		cel.Variable("job.pages", cel.IntType),
		cel.Variable("job.printer", cel.StringType),
		cel.Variable("job.color", cel.BoolType),

		cel.Variable("session.user_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELEvaluator{
		env:    env,
		logger: logger.With("component", "policy.CELEvaluator"),
	}, nil
}

// CompileExpression parses and type-checks a CEL expression, returning a
// CompiledRule ready for evaluation. Call at load time, not in the poll
// loop.
func (c *CELEvaluator) CompileExpression(expr string) (CompiledRule, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return CompiledRule{}, fmt.Errorf("CEL compile error in %q: %w", expr, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return CompiledRule{}, fmt.Errorf("CEL expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := c.env.Program(ast)
	if err != nil {
		return CompiledRule{}, fmt.Errorf("CEL program creation failed for %q: %w", expr, err)
	}

	c.logger.Debug("compiled CEL expression", "expression", expr)

	return CompiledRule{
		Expression: expr,
		program:    prg,
	}, nil
}

// Evaluate runs a pre-compiled rule against the given job. Returns true if
// the condition matches.
func (c *CELEvaluator) Evaluate(rule CompiledRule, job JobContext) (bool, error) {
	vars := map[string]interface{}{
		"job.document": job.Document,
		"job.pages":    int64(job.Pages),
		"job.printer":  job.Printer,
		"job.color":    job.Color,

		"session.user_id": job.UserID,
	}

	out, _, err := rule.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error for %q: %w", rule.Expression, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q returned non-bool: %T", rule.Expression, out.Value())
	}

	return result, nil
}
