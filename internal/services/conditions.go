package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"workflow-mcp/internal/git"
	"workflow-mcp/internal/repository"
	"workflow-mcp/pkg/models"
)

// EvaluatorConfig carries the tunables for condition evaluation.
type EvaluatorConfig struct {
	// ProjectRoot anchors relative paths for file conditions and is the
	// working directory for git conditions.
	ProjectRoot string
	// MaxQueryParams caps the parameter count of data-query conditions.
	MaxQueryParams int
	// MaxQueryRows caps the rows a data-query condition may return.
	MaxQueryRows int
}

// EvalContext is the ambient state conditions are evaluated against.
type EvalContext struct {
	TaskID      string
	ExecutionID string
	RoleID      string
	// Data is the execution's opaque context bag, checked by
	// CONTEXT_CHECK conditions via dot-path lookup.
	Data map[string]any
}

// ConditionResult is the outcome of evaluating a single condition.
type ConditionResult struct {
	Condition string         `json:"condition"`
	Valid     bool           `json:"valid"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ValidationResult aggregates a step's condition evaluations. Only
// required conditions contribute to Errors; the rest are diagnostics.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Errors  []ConditionResult `json:"errors,omitempty"`
	Results []ConditionResult `json:"results,omitempty"`
}

// ConditionEvaluator gates step execution against the external
// environment (context bag, filesystem, task state, VCS, store, env)
// without granting a scripting surface. Anything it cannot prove safe
// evaluates to false rather than guessing.
type ConditionEvaluator struct {
	store repository.Store
	git   git.Client
	cfg   EvaluatorConfig

	// lookupEnv is swappable for tests.
	lookupEnv func(string) (string, bool)
}

// NewConditionEvaluator creates a new ConditionEvaluator.
func NewConditionEvaluator(store repository.Store, gitClient git.Client, cfg EvaluatorConfig) *ConditionEvaluator {
	if cfg.MaxQueryParams <= 0 {
		cfg.MaxQueryParams = 10
	}
	if cfg.MaxQueryRows <= 0 {
		cfg.MaxQueryRows = 100
	}
	return &ConditionEvaluator{
		store:     store,
		git:       gitClient,
		cfg:       cfg,
		lookupEnv: os.LookupEnv,
	}
}

// ValidateAll evaluates every condition of a step. The result is valid
// when no required condition failed; non-required failures are reported
// in Results but never block.
func (e *ConditionEvaluator) ValidateAll(ctx context.Context, conditions []models.StepCondition, ec EvalContext) (*ValidationResult, error) {
	out := &ValidationResult{Valid: true}
	for _, cond := range conditions {
		res, err := e.Evaluate(ctx, cond, ec)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, *res)
		if !res.Valid && cond.Required {
			out.Valid = false
			out.Errors = append(out.Errors, *res)
		}
	}
	return out, nil
}

// Evaluate evaluates a single condition. A condition that cannot hold
// is a normal outcome and comes back as {Valid: false, Reason}; only a
// structurally malformed condition is an error.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, cond models.StepCondition, ec EvalContext) (*ConditionResult, error) {
	switch cond.Type {
	case models.ConditionContextCheck:
		if cond.Logic.ContextCheck == nil {
			return nil, e.malformed(cond)
		}
		return e.evalContextCheck(cond, *cond.Logic.ContextCheck, ec), nil
	case models.ConditionFileExists:
		if cond.Logic.FileExists == nil {
			return nil, e.malformed(cond)
		}
		return e.evalFileExists(cond, *cond.Logic.FileExists), nil
	case models.ConditionTaskStatus:
		if cond.Logic.TaskStatus == nil {
			return nil, e.malformed(cond)
		}
		return e.evalTaskStatus(ctx, cond, *cond.Logic.TaskStatus, ec)
	case models.ConditionGitStatus:
		if cond.Logic.GitStatus == nil {
			return nil, e.malformed(cond)
		}
		return e.evalGitStatus(ctx, cond, *cond.Logic.GitStatus), nil
	case models.ConditionPreviousStepCompleted:
		if cond.Logic.PreviousStep == nil {
			return nil, e.malformed(cond)
		}
		return e.evalPreviousStep(ctx, cond, *cond.Logic.PreviousStep, ec)
	case models.ConditionCustomLogic:
		if cond.Logic.Custom == nil {
			return nil, e.malformed(cond)
		}
		return e.evalCustom(ctx, cond, *cond.Logic.Custom), nil
	default:
		return nil, newError(CodeInvalidInput, "condition-evaluator", "Evaluate",
			fmt.Sprintf("unknown condition type %q", cond.Type),
			map[string]any{"condition": cond.Name})
	}
}

func (e *ConditionEvaluator) malformed(cond models.StepCondition) error {
	return newError(CodeInvalidInput, "condition-evaluator", "Evaluate",
		fmt.Sprintf("condition %q has no logic payload for type %s", cond.Name, cond.Type),
		map[string]any{"condition": cond.Name, "type": string(cond.Type)})
}

func pass(cond models.StepCondition) *ConditionResult {
	return &ConditionResult{Condition: cond.Name, Valid: true}
}

func fail(cond models.StepCondition, reason string, details map[string]any) *ConditionResult {
	return &ConditionResult{Condition: cond.Name, Valid: false, Reason: reason, Details: details}
}

// --- CONTEXT_CHECK ---

func (e *ConditionEvaluator) evalContextCheck(cond models.StepCondition, logic models.ContextCheckLogic, ec EvalContext) *ConditionResult {
	var missing []string
	for _, key := range logic.RequiredKeys {
		if !dotPathExists(ec.Data, key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fail(cond, "missing required context keys", map[string]any{"missing": missing})
	}
	return pass(cond)
}

// dotPathExists walks nested maps along a dot-separated path.
func dotPathExists(data map[string]any, path string) bool {
	if data == nil {
		return false
	}
	parts := strings.Split(path, ".")
	current := any(data)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = m[part]
		if !ok {
			return false
		}
	}
	return true
}

// --- FILE_EXISTS ---

func (e *ConditionEvaluator) evalFileExists(cond models.StepCondition, logic models.FileExistsLogic) *ConditionResult {
	var missing []string
	for _, p := range logic.Paths {
		resolved := e.resolvePath(p)
		if _, err := os.Stat(resolved); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fail(cond, "required files do not exist", map[string]any{"missing": missing})
	}
	return pass(cond)
}

func (e *ConditionEvaluator) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.cfg.ProjectRoot, p)
}

// --- TASK_STATUS ---

func (e *ConditionEvaluator) evalTaskStatus(ctx context.Context, cond models.StepCondition, logic models.TaskStatusLogic, ec EvalContext) (*ConditionResult, error) {
	if ec.TaskID == "" {
		return fail(cond, "no task bound to this execution", nil), nil
	}
	task, err := e.store.GetTask(ctx, ec.TaskID)
	if err != nil {
		if err == repository.ErrNotFound {
			return fail(cond, "task not found", map[string]any{"task_id": ec.TaskID}), nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	if logic.RequiredStatus != "" && task.Status != logic.RequiredStatus {
		return fail(cond, fmt.Sprintf("task status is %q, requires %q", task.Status, logic.RequiredStatus), nil), nil
	}
	for _, forbidden := range logic.ForbiddenStatuses {
		if task.Status == forbidden {
			return fail(cond, fmt.Sprintf("task status %q is forbidden", task.Status), nil), nil
		}
	}
	return pass(cond), nil
}

// --- GIT_STATUS ---

// evalGitStatus reads VCS state via the bounded shell-out. A failing or
// timed-out git invocation fails the condition instead of raising; a
// missing precondition is a normal outcome, not an engine failure.
func (e *ConditionEvaluator) evalGitStatus(ctx context.Context, cond models.StepCondition, logic models.GitStatusLogic) *ConditionResult {
	status, err := e.git.Status(ctx, e.cfg.ProjectRoot)
	if err != nil {
		return fail(cond, fmt.Sprintf("git status unavailable: %v", err),
			map[string]any{"code": string(CodeExternalToolFailure)})
	}
	if logic.RequireCleanWorkingTree && !status.Clean {
		return fail(cond, "Working tree is not clean", map[string]any{"entries": status.Entries})
	}
	if logic.RequiredBranch != "" && status.Branch != logic.RequiredBranch {
		return fail(cond, fmt.Sprintf("on branch %q, requires %q", status.Branch, logic.RequiredBranch), nil)
	}
	return pass(cond)
}

// --- PREVIOUS_STEP_COMPLETED ---

func (e *ConditionEvaluator) evalPreviousStep(ctx context.Context, cond models.StepCondition, logic models.PreviousStepLogic, ec EvalContext) (*ConditionResult, error) {
	if ec.TaskID == "" {
		return fail(cond, "no task bound to this execution", nil), nil
	}
	roleID := logic.RoleID
	if roleID == "" {
		roleID = ec.RoleID
	}
	step, err := e.store.FindStepByName(ctx, roleID, logic.StepName)
	if err != nil {
		if err == repository.ErrNotFound {
			return fail(cond, fmt.Sprintf("dependency step %q not found", logic.StepName), nil), nil
		}
		return nil, fmt.Errorf("find step: %w", err)
	}
	completed, err := e.store.CompletedStepIDs(ctx, ec.TaskID, roleID)
	if err != nil {
		return nil, fmt.Errorf("list completed steps: %w", err)
	}
	if !completed[step.ID] {
		return fail(cond, fmt.Sprintf("step %q has not completed", logic.StepName), nil), nil
	}
	return pass(cond), nil
}

// --- CUSTOM_LOGIC ---

func (e *ConditionEvaluator) evalCustom(ctx context.Context, cond models.StepCondition, logic models.CustomLogic) *ConditionResult {
	switch {
	case logic.Expression != nil:
		return e.evalExpression(cond, *logic.Expression)
	case logic.Query != nil:
		return e.evalDataQuery(ctx, cond, *logic.Query)
	case logic.FileContent != nil:
		return e.evalFileContent(cond, *logic.FileContent)
	case logic.EnvVar != nil:
		return e.evalEnvVar(cond, *logic.EnvVar)
	default:
		// Fail safe: unrecognised custom logic never passes.
		return fail(cond, "unsupported custom logic", nil)
	}
}

var (
	// expressionCharset allow-lists every character a supported
	// expression may contain. Anything outside it is rejected before
	// pattern matching.
	expressionCharset = regexp.MustCompile(`^[A-Za-z0-9_.\s!='"()-]+$`)

	comparisonPattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.]*)\s*(==|!=)\s*(?:'([^']*)'|"([^"]*)"|([A-Za-z0-9_.-]+))\s*$`)
	existsPattern     = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.]*)\s+exists\s*$`)
	notExistsPattern  = regexp.MustCompile(`^\s*!\s*([A-Za-z_][A-Za-z0-9_.]*)\s*$`)
)

// evalExpression matches the expression against the fixed set of
// supported forms (equality, inequality, existence) over the parameter
// map. Anything else evaluates to false; it never executes code.
func (e *ConditionEvaluator) evalExpression(cond models.StepCondition, logic models.ExpressionLogic) *ConditionResult {
	expr := logic.Expression
	if expr == "" || !expressionCharset.MatchString(expr) {
		return fail(cond, "unsupported expression", map[string]any{"expression": expr})
	}

	if m := comparisonPattern.FindStringSubmatch(expr); m != nil {
		key, op := m[1], m[2]
		want := m[3] + m[4] + m[5]
		got, ok := logic.Parameters[key]
		if !ok {
			return fail(cond, fmt.Sprintf("parameter %q is not defined", key), nil)
		}
		matches := got == want
		if op == "!=" {
			matches = !matches
		}
		if !matches {
			return fail(cond, fmt.Sprintf("expression %q is false", expr),
				map[string]any{"actual": got})
		}
		return pass(cond)
	}

	if m := existsPattern.FindStringSubmatch(expr); m != nil {
		if _, ok := logic.Parameters[m[1]]; !ok {
			return fail(cond, fmt.Sprintf("parameter %q does not exist", m[1]), nil)
		}
		return pass(cond)
	}

	if m := notExistsPattern.FindStringSubmatch(expr); m != nil {
		if _, ok := logic.Parameters[m[1]]; ok {
			return fail(cond, fmt.Sprintf("parameter %q exists", m[1]), nil)
		}
		return pass(cond)
	}

	return fail(cond, "unsupported expression", map[string]any{"expression": expr})
}

// destructiveKeywords deny-lists statements that could mutate the store.
// Applied after the SELECT-only check as defence in depth.
var destructiveKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|GRANT|REVOKE|MERGE|CALL|DO|COPY)\b`)

// evalDataQuery runs a read-only query condition. The statement must be
// lexically SELECT-only, pass the destructive-keyword deny list, and
// respect the parameter and row caps.
func (e *ConditionEvaluator) evalDataQuery(ctx context.Context, cond models.StepCondition, logic models.DataQueryLogic) *ConditionResult {
	stmt := strings.TrimSpace(logic.Statement)
	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "SELECT") {
		return fail(cond, "only SELECT statements are allowed", nil)
	}
	if strings.Contains(stmt, ";") {
		return fail(cond, "multiple statements are not allowed", nil)
	}
	if destructiveKeywords.MatchString(stmt) {
		return fail(cond, "statement contains a destructive keyword", nil)
	}
	if len(logic.Params) > e.cfg.MaxQueryParams {
		return fail(cond, fmt.Sprintf("too many parameters (max %d)", e.cfg.MaxQueryParams), nil)
	}

	rows, err := e.store.Query(ctx, stmt, logic.Params...)
	if err != nil {
		return fail(cond, fmt.Sprintf("query failed: %v", err),
			map[string]any{"code": string(CodeExternalToolFailure)})
	}
	if len(rows) > e.cfg.MaxQueryRows {
		return fail(cond, fmt.Sprintf("query returned more than %d rows", e.cfg.MaxQueryRows), nil)
	}

	hasRows := len(rows) > 0
	if hasRows != logic.ExpectRows {
		return fail(cond, fmt.Sprintf("query returned %d rows, expected rows: %t", len(rows), logic.ExpectRows),
			map[string]any{"row_count": len(rows)})
	}
	return pass(cond)
}

// evalFileContent checks a resolved file by regex match or substring
// containment.
func (e *ConditionEvaluator) evalFileContent(cond models.StepCondition, logic models.FileContentLogic) *ConditionResult {
	if logic.Path == "" {
		return fail(cond, "file content check has no path", nil)
	}
	content, err := os.ReadFile(e.resolvePath(logic.Path))
	if err != nil {
		return fail(cond, fmt.Sprintf("cannot read %s: %v", logic.Path, err), nil)
	}

	switch {
	case logic.Pattern != "":
		re, err := regexp.Compile(logic.Pattern)
		if err != nil {
			return fail(cond, fmt.Sprintf("invalid pattern: %v", err), nil)
		}
		if !re.Match(content) {
			return fail(cond, fmt.Sprintf("pattern %q not found in %s", logic.Pattern, logic.Path), nil)
		}
		return pass(cond)
	case logic.Substring != "":
		if !strings.Contains(string(content), logic.Substring) {
			return fail(cond, fmt.Sprintf("substring not found in %s", logic.Path), nil)
		}
		return pass(cond)
	default:
		return fail(cond, "file content check has neither pattern nor substring", nil)
	}
}

// evalEnvVar checks an environment variable.
func (e *ConditionEvaluator) evalEnvVar(cond models.StepCondition, logic models.EnvVarLogic) *ConditionResult {
	if logic.Variable == "" {
		return fail(cond, "env var check has no variable", nil)
	}
	value, ok := e.lookupEnv(logic.Variable)

	switch logic.Check {
	case models.EnvCheckExists:
		if !ok {
			return fail(cond, fmt.Sprintf("%s is not set", logic.Variable), nil)
		}
		return pass(cond)
	case models.EnvCheckEquals:
		if !ok || value != logic.Value {
			return fail(cond, fmt.Sprintf("%s does not equal expected value", logic.Variable), nil)
		}
		return pass(cond)
	case models.EnvCheckContains:
		if !ok || !strings.Contains(value, logic.Value) {
			return fail(cond, fmt.Sprintf("%s does not contain expected value", logic.Variable), nil)
		}
		return pass(cond)
	default:
		return fail(cond, fmt.Sprintf("unsupported env check %q", logic.Check), nil)
	}
}
