package decomposer

import "fmt"

// builtinStrategies is the minimum named-strategy set spec.md §4.5 requires.
var builtinStrategies = map[string]Strategy{
	"compression_analysis": compressionAnalysisStrategy,
	"code_review":           codeReviewStrategy,
	"data_pipeline":         dataPipelineStrategy,
	"research_synthesis":    researchSynthesisStrategy,
	"multi_step":            multiStepStrategy,
}

// compressionAnalysisStrategy emits analyze_content and analyze_structure
// in parallel, select_algorithm depending on both, and compress depending
// on select_algorithm. Dependents reference prior results via the
// placeholder syntax (spec.md §4.6.3).
func compressionAnalysisStrategy(input map[string]interface{}) []Subtask {
	return []Subtask{
		{
			ID:       "analyze_content",
			TaskType: "analyze_content",
			Input:    map[string]interface{}{"content": input["content"]},
		},
		{
			ID:       "analyze_structure",
			TaskType: "analyze_structure",
			Input:    map[string]interface{}{"content": input["content"]},
		},
		{
			ID:       "select_algorithm",
			TaskType: "select_algorithm",
			Input: map[string]interface{}{
				"content_profile":   "{{analyze_content.result}}",
				"structure_profile": "{{analyze_structure.result}}",
			},
			Dependencies: []string{"analyze_content", "analyze_structure"},
		},
		{
			ID:       "compress",
			TaskType: "compress",
			Input: map[string]interface{}{
				"content":   input["content"],
				"algorithm": "{{select_algorithm.result}}",
			},
			Dependencies: []string{"select_algorithm"},
		},
	}
}

// codeReviewStrategy runs analyze_code and check_patterns in parallel,
// then generate_review depending on both.
func codeReviewStrategy(input map[string]interface{}) []Subtask {
	return []Subtask{
		{
			ID:       "analyze_code",
			TaskType: "analyze_code",
			Input:    map[string]interface{}{"code": input["code"]},
		},
		{
			ID:       "check_patterns",
			TaskType: "check_patterns",
			Input:    map[string]interface{}{"code": input["code"]},
		},
		{
			ID:       "generate_review",
			TaskType: "generate_review",
			Input: map[string]interface{}{
				"analysis": "{{analyze_code.result}}",
				"patterns": "{{check_patterns.result}}",
			},
			Dependencies: []string{"analyze_code", "check_patterns"},
		},
	}
}

// dataPipelineStrategy is a strictly sequential extract -> transform ->
// load -> validate chain.
func dataPipelineStrategy(input map[string]interface{}) []Subtask {
	return []Subtask{
		{
			ID:       "extract",
			TaskType: "extract",
			Input:    map[string]interface{}{"data_source": input["data_source"]},
		},
		{
			ID:           "transform",
			TaskType:     "transform",
			Input:        map[string]interface{}{"data": "{{extract.result}}"},
			Dependencies: []string{"extract"},
		},
		{
			ID:           "load",
			TaskType:     "load",
			Input:        map[string]interface{}{"data": "{{transform.result}}"},
			Dependencies: []string{"transform"},
		},
		{
			ID:           "validate",
			TaskType:     "validate",
			Input:        map[string]interface{}{"data": "{{load.result}}"},
			Dependencies: []string{"load"},
		},
	}
}

// researchSynthesisStrategy fans out one research subtask per topic in
// input["topics"] (falling back to a single "general" topic if absent),
// followed by a synthesis subtask depending on every research subtask.
func researchSynthesisStrategy(input map[string]interface{}) []Subtask {
	topics, _ := input["topics"].([]string)
	if len(topics) == 0 {
		if raw, ok := input["topics"].([]interface{}); ok {
			for _, t := range raw {
				if s, ok := t.(string); ok {
					topics = append(topics, s)
				}
			}
		}
	}
	if len(topics) == 0 {
		topics = []string{"general"}
	}

	subtasks := make([]Subtask, 0, len(topics)+1)
	researchIDs := make([]string, 0, len(topics))
	synthesisInput := map[string]interface{}{}

	for i, topic := range topics {
		id := fmt.Sprintf("research_%d", i)
		researchIDs = append(researchIDs, id)
		subtasks = append(subtasks, Subtask{
			ID:       id,
			TaskType: "research",
			Input:    map[string]interface{}{"topic": topic},
		})
		synthesisInput[id] = "{{" + id + ".result}}"
	}

	subtasks = append(subtasks, Subtask{
		ID:           "synthesize",
		TaskType:     "synthesize",
		Input:        synthesisInput,
		Dependencies: researchIDs,
	})

	return subtasks
}

// multiStepStrategy builds a generic sequential chain from input["steps"],
// where each step is a map with "task_type" and optional "input". Each
// step's subtask id is "step_<n>" and depends on the preceding step.
func multiStepStrategy(input map[string]interface{}) []Subtask {
	rawSteps, _ := input["steps"].([]interface{})
	subtasks := make([]Subtask, 0, len(rawSteps))

	var prev string
	for i, raw := range rawSteps {
		step, _ := raw.(map[string]interface{})
		taskType, _ := step["task_type"].(string)
		if taskType == "" {
			taskType = "step"
		}
		stepInput, _ := step["input"].(map[string]interface{})
		if stepInput == nil {
			stepInput = map[string]interface{}{}
		}

		id := fmt.Sprintf("step_%d", i)
		var deps []string
		if prev != "" {
			deps = []string{prev}
			stepInput["previous"] = "{{" + prev + ".result}}"
		}

		subtasks = append(subtasks, Subtask{
			ID:           id,
			TaskType:     taskType,
			Input:        stepInput,
			Dependencies: deps,
		})
		prev = id
	}

	return subtasks
}
