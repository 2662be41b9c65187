package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflow-mcp/internal/config"
	"workflow-mcp/internal/logging"
	"workflow-mcp/internal/repository"
	"workflow-mcp/pkg/models"
)

// stepSpec is the compact seed form of a workflow step.
type stepSpec struct {
	name       string
	stepType   models.StepType
	guidance   string
	conditions []models.StepCondition
	actions    []string
}

func main() {
	ctx := context.Background()
	logger := logging.NewLogger("seed")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, repository.Schema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	logger.Info("Schema applied")

	store := repository.NewPostgresStore(pool)

	// 1. Seed the six pipeline roles in handoff order. Re-running the
	// seed against a populated database is a no-op.
	roleIDs := make(map[models.RoleName]string)
	for priority, name := range []models.RoleName{
		models.RoleBoomerang,
		models.RoleResearcher,
		models.RoleArchitect,
		models.RoleSeniorDeveloper,
		models.RoleCodeReview,
		models.RoleIntegrationEngineer,
	} {
		if existing, err := store.GetRoleByName(ctx, name); err == nil {
			logger.Info("Found existing role %s", name)
			roleIDs[name] = existing.ID
			continue
		}
		role := &models.WorkflowRole{
			ID:        uuid.New().String(),
			Name:      name,
			Priority:  priority + 1,
			CreatedAt: time.Now(),
		}
		if err := store.CreateRole(ctx, role); err != nil {
			log.Fatalf("Failed to create role %s: %v", name, err)
		}
		roleIDs[name] = role.ID
		logger.Info("Seeded role %s", name)

		for seq, spec := range roleSteps(name, roleIDs) {
			step := &models.WorkflowStep{
				ID:                 uuid.New().String(),
				RoleID:             role.ID,
				Name:               spec.name,
				SequenceNumber:     seq + 1,
				StepType:           spec.stepType,
				BehavioralGuidance: spec.guidance,
				CreatedAt:          time.Now(),
			}
			for i := range spec.conditions {
				spec.conditions[i].ID = uuid.New().String()
				spec.conditions[i].StepID = step.ID
			}
			step.Conditions = spec.conditions
			for i, action := range spec.actions {
				step.Actions = append(step.Actions, models.StepAction{
					ID:            uuid.New().String(),
					StepID:        step.ID,
					Name:          action,
					ActionType:    "guidance",
					SequenceOrder: i + 1,
				})
			}
			if err := store.CreateStep(ctx, step); err != nil {
				log.Fatalf("Failed to create step %s/%s: %v", name, spec.name, err)
			}
		}
	}

	// 2. Seed a demo task to drive through the pipeline.
	slug := "demo-auth-feature"
	if _, err := store.GetTaskBySlug(ctx, slug); err == nil {
		logger.Info("Found existing demo task, seeding complete")
		return
	}
	task := &models.Task{
		ID:        uuid.New().String(),
		Slug:      slug,
		Name:      "Add authentication to the demo app",
		Status:    models.TaskStatusNotStarted,
		Priority:  models.TaskPriorityMedium,
		OwnerRole: string(models.RoleBoomerang),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.CreateTask(ctx, task); err != nil {
		log.Fatalf("Failed to create demo task: %v", err)
	}
	logger.Info("Seeded demo task %s", slug)
	logger.Info("Seeding complete!")
}

// roleSteps returns the ordered step definitions for a role. Conditions
// reference earlier roles by id, so roles must be seeded in pipeline
// order.
func roleSteps(name models.RoleName, roleIDs map[models.RoleName]string) []stepSpec {
	required := func(condName string, condType models.ConditionType, logic models.ConditionLogic) models.StepCondition {
		return models.StepCondition{Name: condName, Type: condType, Required: true, Logic: logic}
	}

	switch name {
	case models.RoleBoomerang:
		return []stepSpec{
			{
				name:     "intake-task",
				stepType: models.StepTypeAnalysis,
				guidance: "Understand the request and record its scope in the execution context.",
				actions:  []string{"summarize-request", "record-scope"},
			},
			{
				name:     "delegate-research",
				stepType: models.StepTypeAction,
				guidance: "Hand the task to the researcher with the recorded scope.",
				conditions: []models.StepCondition{
					required("scope recorded", models.ConditionContextCheck, models.ConditionLogic{
						ContextCheck: &models.ContextCheckLogic{RequiredKeys: []string{"scope"}},
					}),
				},
				actions: []string{"handoff-to-researcher"},
			},
		}
	case models.RoleResearcher:
		return []stepSpec{
			{
				name:     "gather-context",
				stepType: models.StepTypeAnalysis,
				guidance: "Collect the code, docs and constraints relevant to the task.",
				actions:  []string{"search-codebase", "collect-docs"},
			},
			{
				name:     "write-findings",
				stepType: models.StepTypeAction,
				guidance: "Write findings to the research document for the architect.",
				actions:  []string{"write-research-doc"},
			},
		}
	case models.RoleArchitect:
		return []stepSpec{
			{
				name:     "analyze-requirements",
				stepType: models.StepTypeAnalysis,
				guidance: "Derive the technical requirements from the research findings.",
				conditions: []models.StepCondition{
					required("research handed off", models.ConditionPreviousStepCompleted, models.ConditionLogic{
						PreviousStep: &models.PreviousStepLogic{
							StepName: "write-findings",
							RoleID:   roleIDs[models.RoleResearcher],
						},
					}),
				},
				actions: []string{"derive-requirements"},
			},
			{
				name:     "draft-design",
				stepType: models.StepTypeDecision,
				guidance: "Produce the design document and the implementation plan with batched subtasks.",
				actions:  []string{"write-design-doc", "create-implementation-plan"},
			},
			{
				name:     "handoff-to-developer",
				stepType: models.StepTypeAction,
				guidance: "Hand the plan to the senior developer.",
				conditions: []models.StepCondition{
					required("design doc exists", models.ConditionFileExists, models.ConditionLogic{
						FileExists: &models.FileExistsLogic{Paths: []string{"docs/design.md"}},
					}),
				},
				actions: []string{"handoff-to-developer"},
			},
		}
	case models.RoleSeniorDeveloper:
		return []stepSpec{
			{
				name:     "load-plan",
				stepType: models.StepTypeAnalysis,
				guidance: "Load the implementation plan and pick the next incomplete batch.",
				conditions: []models.StepCondition{
					required("task in progress", models.ConditionTaskStatus, models.ConditionLogic{
						TaskStatus: &models.TaskStatusLogic{RequiredStatus: models.TaskStatusInProgress},
					}),
				},
				actions: []string{"load-plan", "select-batch"},
			},
			{
				name:     "implement-batch",
				stepType: models.StepTypeAction,
				guidance: "Implement every subtask of the selected batch, updating subtask status as you go.",
				actions:  []string{"implement-subtasks", "update-subtask-status"},
			},
			{
				name:     "run-tests",
				stepType: models.StepTypeValidation,
				guidance: "Run the test suite; failures send the batch back to implementation.",
				actions:  []string{"run-tests"},
			},
		}
	case models.RoleCodeReview:
		return []stepSpec{
			{
				name:     "review-diff",
				stepType: models.StepTypeValidation,
				guidance: "Review the change set for correctness and style.",
				conditions: []models.StepCondition{
					required("task awaiting review", models.ConditionTaskStatus, models.ConditionLogic{
						TaskStatus: &models.TaskStatusLogic{RequiredStatus: models.TaskStatusNeedsReview},
					}),
				},
				actions: []string{"review-diff"},
			},
			{
				name:     "record-verdict",
				stepType: models.StepTypeDecision,
				guidance: "Approve or request changes; record the verdict on the task.",
				actions:  []string{"record-verdict"},
			},
		}
	case models.RoleIntegrationEngineer:
		return []stepSpec{
			{
				name:     "verify-clean-tree",
				stepType: models.StepTypeValidation,
				guidance: "Ensure the working tree is clean before merging.",
				conditions: []models.StepCondition{
					required("clean working tree", models.ConditionGitStatus, models.ConditionLogic{
						GitStatus: &models.GitStatusLogic{RequireCleanWorkingTree: true},
					}),
				},
				actions: []string{"check-working-tree"},
			},
			{
				name:     "merge-branch",
				stepType: models.StepTypeAction,
				guidance: "Merge the feature branch and close out the task.",
				conditions: []models.StepCondition{
					required("verdict recorded", models.ConditionPreviousStepCompleted, models.ConditionLogic{
						PreviousStep: &models.PreviousStepLogic{
							StepName: "record-verdict",
							RoleID:   roleIDs[models.RoleCodeReview],
						},
					}),
				},
				actions: []string{"merge-branch", "complete-task"},
			},
		}
	}
	return nil
}
