package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"workflow-mcp/internal/repository"
	"workflow-mcp/internal/services"
	"workflow-mcp/pkg/models"
)

// Server exposes the workflow engine as MCP tools.
type Server struct {
	mcpServer  *server.MCPServer
	store      repository.Store
	executions *services.ExecutionService
	tracker    *services.ProgressTracker
	sequencer  *services.StepSequencer
	evaluator  *services.ConditionEvaluator
	aggregator *services.ProgressAggregator
	subtasks   *services.SubtaskService
}

func NewServer(
	store repository.Store,
	executions *services.ExecutionService,
	tracker *services.ProgressTracker,
	sequencer *services.StepSequencer,
	evaluator *services.ConditionEvaluator,
	aggregator *services.ProgressAggregator,
	subtasks *services.SubtaskService,
) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Workflow Engine",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		store:      store,
		executions: executions,
		tracker:    tracker,
		sequencer:  sequencer,
		evaluator:  evaluator,
		aggregator: aggregator,
		subtasks:   subtasks,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"create_execution",
			mcp.WithDescription("Start a workflow execution for a role, optionally bound to a task"),
			mcp.WithString("role_id", mcp.Required(), mcp.Description("The role to execute")),
			mcp.WithString("task_id", mcp.Description("The task being driven; omit for bootstrap flows")),
			mcp.WithString("mode", mcp.Description("Execution mode: GUIDED, AUTOMATED or HYBRID")),
			mcp.WithObject("context", mcp.Description("Initial execution context")),
		),
		s.handleCreateExecution,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_execution",
			mcp.WithDescription("Fetch a workflow execution by id"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
		),
		s.handleGetExecution,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_execution",
			mcp.WithDescription("Patch a workflow execution: role/step pointers, phase or context"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
			mcp.WithString("role_id", mcp.Description("New current role")),
			mcp.WithString("step_id", mcp.Description("New current step")),
			mcp.WithString("phase", mcp.Description("New phase")),
			mcp.WithObject("context", mcp.Description("Full replacement execution context")),
		),
		s.handleUpdateExecution,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_execution_progress",
			mcp.WithDescription("Recompute an execution's progress from step counts"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
			mcp.WithNumber("steps_completed", mcp.Required(), mcp.Description("Steps completed so far")),
			mcp.WithNumber("total_steps", mcp.Required(), mcp.Description("Total steps in the execution")),
		),
		s.handleUpdateExecutionProgress,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"complete_execution",
			mcp.WithDescription("Mark a workflow execution completed"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
		),
		s.handleCompleteExecution,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"handle_execution_error",
			mcp.WithDescription("Record an execution error and report the retry budget"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
			mcp.WithString("error", mcp.Required(), mcp.Description("What went wrong")),
		),
		s.handleExecutionError,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_active_executions",
			mcp.WithDescription("List executions that have not completed, newest first"),
		),
		s.handleGetActiveExecutions,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_next_available_step",
			mcp.WithDescription("Return the lowest-sequence step of a role not yet completed for a task"),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("The task ID")),
			mcp.WithString("role_id", mcp.Required(), mcp.Description("The role ID")),
		),
		s.handleGetNextAvailableStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"validate_step_conditions",
			mcp.WithDescription("Evaluate a step's preconditions against the current execution"),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("The step ID")),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
		),
		s.handleValidateStepConditions,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"start_step",
			mcp.WithDescription("Open a new attempt for a step within an execution"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("The step ID")),
		),
		s.handleStartStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_step_progress",
			mcp.WithDescription("Patch the in-flight attempt's action counters"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("The step ID")),
			mcp.WithNumber("completed_actions", mcp.Description("Actions completed so far")),
			mcp.WithNumber("total_actions", mcp.Description("Total actions of the step")),
			mcp.WithString("last_action_result", mcp.Description("Outcome of the most recent action")),
		),
		s.handleUpdateStepProgress,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"complete_step",
			mcp.WithDescription("Close the in-flight attempt successfully"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("The step ID")),
			mcp.WithNumber("duration_ms", mcp.Description("How long the attempt took")),
		),
		s.handleCompleteStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"fail_step",
			mcp.WithDescription("Close the in-flight attempt with errors; a later retry opens a fresh attempt"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("The step ID")),
			mcp.WithArray("errors", mcp.Description("Error messages describing the failure")),
		),
		s.handleFailStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"skip_step",
			mcp.WithDescription("Record a step as skipped; only valid before any attempt was opened"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("The step ID")),
			mcp.WithString("reason", mcp.Description("Why the step was skipped")),
		),
		s.handleSkipStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_role_progress_summary",
			mcp.WithDescription("Aggregate attempt statistics across a role's steps"),
			mcp.WithString("role_id", mcp.Required(), mcp.Description("The role ID")),
		),
		s.handleGetRoleProgressSummary,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"calculate_progress",
			mcp.WithDescription("Derive the progress view of an execution"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
		),
		s.handleCalculateProgress,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_completion_summary",
			mcp.WithDescription("Derive the wrap-up summary of an execution"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The execution ID")),
		),
		s.handleGenerateCompletionSummary,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_subtask_status",
			mcp.WithDescription("Update one subtask's status"),
			mcp.WithString("subtask_id", mcp.Required(), mcp.Description("The subtask ID")),
			mcp.WithString("status", mcp.Required(), mcp.Description("not-started, in-progress, completed or failed")),
		),
		s.handleUpdateSubtaskStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"batch_update_subtask_status",
			mcp.WithDescription("Update several subtasks of one plan atomically"),
			mcp.WithString("plan_id", mcp.Required(), mcp.Description("The implementation plan ID")),
			mcp.WithArray("subtask_ids", mcp.Required(), mcp.Description("The subtasks to update")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Status to apply to every subtask")),
		),
		s.handleBatchUpdateSubtaskStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"check_batch_status",
			mcp.WithDescription("Roll up completion for the subtasks sharing a batch id"),
			mcp.WithString("plan_id", mcp.Required(), mcp.Description("The implementation plan ID")),
			mcp.WithString("batch_id", mcp.Required(), mcp.Description("The batch ID")),
		),
		s.handleCheckBatchStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"check_plan_status",
			mcp.WithDescription("Roll up completion across every subtask of a plan"),
			mcp.WithString("plan_id", mcp.Required(), mcp.Description("The implementation plan ID")),
		),
		s.handleCheckPlanStatus,
	)
}

// requestArgs normalizes the tool arguments to a map.
func requestArgs(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok && v != ""
}

func stringListArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// toolError renders service failures. Typed engine errors keep their
// code so the calling agent can distinguish bad input from bad state.
func toolError(op string, err error) *mcp.CallToolResult {
	var se *services.ServiceError
	if errors.As(err, &se) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: [%s] %s", op, se.Code, se.Message))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

func toolJSON(v interface{}) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(v)
	return mcp.NewToolResultText(string(jsonBytes))
}

func (s *Server) handleCreateExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	roleID, ok := stringArg(args, "role_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: role_id"), nil
	}

	in := services.CreateExecutionInput{RoleID: roleID}
	if taskID, ok := stringArg(args, "task_id"); ok {
		in.TaskID = &taskID
	}
	if mode, ok := stringArg(args, "mode"); ok {
		in.Mode = models.ExecutionMode(mode)
	}
	if execCtx, ok := args["context"].(map[string]interface{}); ok {
		in.Context = execCtx
	}

	exec, err := s.executions.CreateExecution(ctx, in)
	if err != nil {
		return toolError("create execution", err), nil
	}
	return toolJSON(exec), nil
}

func (s *Server) handleGetExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	exec, err := s.executions.GetExecution(ctx, executionID)
	if err != nil {
		return toolError("get execution", err), nil
	}
	return toolJSON(exec), nil
}

func (s *Server) handleUpdateExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	var patch services.ExecutionPatch
	if roleID, ok := stringArg(args, "role_id"); ok {
		patch.CurrentRoleID = &roleID
	}
	if stepID, ok := stringArg(args, "step_id"); ok {
		patch.CurrentStepID = &stepID
	}
	if phase, ok := stringArg(args, "phase"); ok {
		p := models.ExecutionPhase(phase)
		patch.Phase = &p
	}
	if execCtx, ok := args["context"].(map[string]interface{}); ok {
		patch.Context = execCtx
	}

	exec, err := s.executions.UpdateExecution(ctx, executionID, patch)
	if err != nil {
		return toolError("update execution", err), nil
	}
	return toolJSON(exec), nil
}

func (s *Server) handleUpdateExecutionProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}
	stepsCompleted, ok := args["steps_completed"].(float64)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: steps_completed"), nil
	}
	totalSteps, ok := args["total_steps"].(float64)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: total_steps"), nil
	}

	exec, err := s.executions.UpdateProgress(ctx, executionID, int(stepsCompleted), int(totalSteps))
	if err != nil {
		return toolError("update execution progress", err), nil
	}
	return toolJSON(exec), nil
}

func (s *Server) handleCompleteExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	exec, err := s.executions.CompleteExecution(ctx, executionID)
	if err != nil {
		return toolError("complete execution", err), nil
	}
	return toolJSON(exec), nil
}

func (s *Server) handleExecutionError(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}
	message, ok := stringArg(args, "error")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: error"), nil
	}

	decision, err := s.executions.HandleExecutionError(ctx, executionID, errors.New(message))
	if err != nil {
		return toolError("handle execution error", err), nil
	}
	return toolJSON(decision), nil
}

func (s *Server) handleGetActiveExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	execs, err := s.executions.ActiveExecutions(ctx)
	if err != nil {
		return toolError("get active executions", err), nil
	}
	return toolJSON(execs), nil
}

func (s *Server) handleGetNextAvailableStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	taskID, ok := stringArg(args, "task_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: task_id"), nil
	}
	roleID, ok := stringArg(args, "role_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: role_id"), nil
	}

	step, err := s.sequencer.NextAvailableStep(ctx, taskID, roleID)
	if err != nil {
		return toolError("get next available step", err), nil
	}
	if step == nil {
		return toolJSON(map[string]interface{}{
			"step":          nil,
			"role_complete": true,
		}), nil
	}
	return toolJSON(map[string]interface{}{
		"step":          step,
		"role_complete": false,
	}), nil
}

func (s *Server) handleValidateStepConditions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	stepID, ok := stringArg(args, "step_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: step_id"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	step, err := s.store.GetStep(ctx, stepID)
	if err != nil {
		return toolError("validate step conditions", err), nil
	}
	exec, err := s.executions.GetExecution(ctx, executionID)
	if err != nil {
		return toolError("validate step conditions", err), nil
	}

	ec := services.EvalContext{
		ExecutionID: exec.ID,
		RoleID:      step.RoleID,
		Data:        exec.Context,
	}
	if exec.TaskID != nil {
		ec.TaskID = *exec.TaskID
	}

	result, err := s.evaluator.ValidateAll(ctx, step.Conditions, ec)
	if err != nil {
		return toolError("validate step conditions", err), nil
	}
	return toolJSON(result), nil
}

func (s *Server) handleStartStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}
	stepID, ok := stringArg(args, "step_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: step_id"), nil
	}

	record, err := s.tracker.StartStep(ctx, services.StartStepInput{
		ExecutionID: executionID,
		StepID:      stepID,
	})
	if err != nil {
		return toolError("start step", err), nil
	}
	return toolJSON(record), nil
}

func (s *Server) handleUpdateStepProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}
	stepID, ok := stringArg(args, "step_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: step_id"), nil
	}

	var update services.ProgressUpdate
	if v, ok := args["completed_actions"].(float64); ok {
		update.CompletedActions = int(v)
	}
	if v, ok := args["total_actions"].(float64); ok {
		update.TotalActions = int(v)
	}
	if v, ok := stringArg(args, "last_action_result"); ok {
		update.LastActionResult = v
	}

	record, err := s.tracker.UpdateProgress(ctx, executionID, stepID, update)
	if err != nil {
		return toolError("update step progress", err), nil
	}
	return toolJSON(record), nil
}

func (s *Server) handleCompleteStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}
	stepID, ok := stringArg(args, "step_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: step_id"), nil
	}

	in := services.CompleteStepInput{Result: models.ResultSuccess}
	if v, ok := args["duration_ms"].(float64); ok {
		in.DurationMs = int64(v)
	}

	record, err := s.tracker.CompleteStep(ctx, executionID, stepID, in)
	if err != nil {
		return toolError("complete step", err), nil
	}
	return toolJSON(record), nil
}

func (s *Server) handleFailStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}
	stepID, ok := stringArg(args, "step_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: step_id"), nil
	}

	record, err := s.tracker.FailStep(ctx, executionID, stepID, services.FailStepInput{
		Errors: stringListArg(args, "errors"),
	})
	if err != nil {
		return toolError("fail step", err), nil
	}
	return toolJSON(record), nil
}

func (s *Server) handleSkipStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}
	stepID, ok := stringArg(args, "step_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: step_id"), nil
	}
	reason, _ := stringArg(args, "reason")

	record, err := s.tracker.SkipStep(ctx, services.StartStepInput{
		ExecutionID: executionID,
		StepID:      stepID,
	}, reason)
	if err != nil {
		return toolError("skip step", err), nil
	}
	return toolJSON(record), nil
}

func (s *Server) handleGetRoleProgressSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	roleID, ok := stringArg(args, "role_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: role_id"), nil
	}

	summary, err := s.tracker.GetRoleProgressSummary(ctx, roleID)
	if err != nil {
		return toolError("get role progress summary", err), nil
	}
	return toolJSON(summary), nil
}

func (s *Server) handleCalculateProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	exec, err := s.executions.GetExecution(ctx, executionID)
	if err != nil {
		return toolError("calculate progress", err), nil
	}
	return toolJSON(s.aggregator.CalculateProgress(exec)), nil
}

func (s *Server) handleGenerateCompletionSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	executionID, ok := stringArg(args, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	summary, err := s.aggregator.GenerateCompletionSummary(ctx, executionID)
	if err != nil {
		return toolError("generate completion summary", err), nil
	}
	return toolJSON(summary), nil
}

func (s *Server) handleUpdateSubtaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	subtaskID, ok := stringArg(args, "subtask_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: subtask_id"), nil
	}
	status, ok := stringArg(args, "status")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: status"), nil
	}

	subtask, err := s.subtasks.UpdateSubtaskStatus(ctx, subtaskID, models.SubtaskStatus(status))
	if err != nil {
		return toolError("update subtask status", err), nil
	}
	return toolJSON(subtask), nil
}

func (s *Server) handleBatchUpdateSubtaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	planID, ok := stringArg(args, "plan_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: plan_id"), nil
	}
	status, ok := stringArg(args, "status")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: status"), nil
	}

	updated, err := s.subtasks.BatchUpdateSubtaskStatus(ctx, planID,
		stringListArg(args, "subtask_ids"), models.SubtaskStatus(status))
	if err != nil {
		return toolError("batch update subtask status", err), nil
	}
	return toolJSON(updated), nil
}

func (s *Server) handleCheckBatchStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	planID, ok := stringArg(args, "plan_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: plan_id"), nil
	}
	batchID, ok := stringArg(args, "batch_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: batch_id"), nil
	}

	status, err := s.subtasks.CheckBatchStatus(ctx, planID, batchID)
	if err != nil {
		return toolError("check batch status", err), nil
	}
	return toolJSON(status), nil
}

func (s *Server) handleCheckPlanStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := requestArgs(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	planID, ok := stringArg(args, "plan_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: plan_id"), nil
	}

	status, err := s.subtasks.CheckPlanStatus(ctx, planID)
	if err != nil {
		return toolError("check plan status", err), nil
	}
	return toolJSON(status), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
