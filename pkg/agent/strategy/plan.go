package strategy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
)

// planDoc is the JSON shape the planning turn must produce.
type planDoc struct {
	AnalysisGoal string     `json:"analysis_goal"`
	Tasks        []planTask `json:"tasks"`
}

type planTask struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// planAttempts bounds how many malformed planning replies are tolerated.
const planAttempts = 2

// planCodeOwnedTasks runs the JSON-mode planning turn and installs the
// parsed tasks as a code-owned list. One malformed reply gets a retry;
// a second one fails the run.
func planCodeOwnedTasks(ctx context.Context, ec *agent.ExecutionContext, conv *conversation, profile string) error {
	ec.Publisher.PhaseChange("planning")
	conv.add(models.UserMessage(jsonPlanningPrompt(profile)))

	for attempt := 0; attempt < planAttempts; attempt++ {
		resp, _, err := turn(ctx, ec, llm.ChatRequest{Messages: conv.messages(), JSONMode: true})
		if err != nil {
			return err
		}
		conv.add(models.AssistantMessage(resp.Content, nil))

		doc, err := parsePlan(resp.Content)
		if err != nil || len(doc.Tasks) == 0 {
			conv.add(models.UserMessage("That was not a valid plan. Respond with the JSON object only, with at least one task."))
			continue
		}

		tasks := make([]models.Task, 0, len(doc.Tasks))
		for i, pt := range doc.Tasks {
			tasks = append(tasks, models.Task{
				ID:          i + 1,
				Name:        pt.Name,
				Description: pt.Description,
				Type:        planTaskType(pt),
				Status:      models.TaskStatusPending,
			})
		}
		if err := ec.State.ReplaceTasks(tasks); err != nil {
			return err
		}
		ec.Publisher.TasksPlanned(tasks, doc.AnalysisGoal)
		ec.Publisher.TasksUpdated(tasks, events.TaskSourceCode)
		return nil
	}
	return models.NewError(models.KindLLMFailed, "planning did not produce a valid task list after %d attempts", planAttempts)
}

// parsePlan decodes a planning reply, tolerating a Markdown code fence
// around the JSON object.
func parsePlan(content string) (*planDoc, error) {
	text := strings.TrimSpace(content)
	if after, found := strings.CutPrefix(text, "```json"); found {
		text = after
	} else if after, found := strings.CutPrefix(text, "```"); found {
		text = after
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))

	var doc planDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// planTaskType trusts a valid declared type and infers one from the name
// otherwise.
func planTaskType(pt planTask) models.TaskType {
	if t := models.TaskType(pt.Type); t.IsValid() {
		return t
	}
	name := strings.ToLower(pt.Name + " " + pt.Description)
	switch {
	case strings.Contains(name, "explor") || strings.Contains(name, "inspect") || strings.Contains(name, "schema"):
		return models.TaskTypeDataExploration
	case strings.Contains(name, "plot") || strings.Contains(name, "chart") || strings.Contains(name, "visual") || strings.Contains(name, "graph"):
		return models.TaskTypeVisualization
	case strings.Contains(name, "report") || strings.Contains(name, "summar"):
		return models.TaskTypeReport
	default:
		return models.TaskTypeAnalysis
	}
}
