package orchestrator

import "sort"

// AggregateResult is the shape §4.6.5 requires for the final orchestration
// outcome.
type AggregateResult struct {
	Status               string
	TotalSubtasks        int
	Successful           int
	Failed               int
	SuccessRate          float64
	TotalDurationSeconds float64
	AvgDurationSeconds   float64
	Results              map[string]map[string]interface{}
	AggregatedResult     map[string]interface{}
	Errors               []string
}

// aggregate folds per-subtask results into the final outcome
// (spec.md §4.6.5): partitions successful/failed, computes rates and
// durations, merges successful results' "result" payloads left-to-right in
// subtask-id order for determinism, and derives the overall status.
func aggregate(results map[string]map[string]interface{}) AggregateResult {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	merged := map[string]interface{}{}
	var errs []string
	successful, failed := 0, 0
	var totalDuration float64

	for _, id := range ids {
		r := results[id]
		status, _ := r["status"].(string)

		if d, ok := r["execution_time_seconds"].(float64); ok {
			totalDuration += d
		}

		if status == "completed" {
			successful++
			if payload, ok := r["result"].(map[string]interface{}); ok {
				for k, v := range payload {
					merged[k] = v
				}
			}
		} else {
			failed++
			if errMsg, ok := r["error"].(string); ok && errMsg != "" {
				errs = append(errs, errMsg)
			}
		}
	}

	total := len(results)
	var status string
	switch {
	case total == 0:
		status = "completed"
	case failed == 0:
		status = "completed"
	case successful == 0:
		status = "failed"
	default:
		status = "partial"
	}

	successRate := 0.0
	avgDuration := 0.0
	if total > 0 {
		successRate = float64(successful) / float64(total)
		avgDuration = totalDuration / float64(total)
	}

	return AggregateResult{
		Status:               status,
		TotalSubtasks:        total,
		Successful:           successful,
		Failed:               failed,
		SuccessRate:          successRate,
		TotalDurationSeconds: totalDuration,
		AvgDurationSeconds:   avgDuration,
		Results:              results,
		AggregatedResult:     merged,
		Errors:               errs,
	}
}
