// Package config provides centralized configuration management for the
// Taskmesh orchestration core through an optional TOML file and environment
// variables, with sensible defaults matching spec.md §6.
//
// # Overview
//
// Load resolves configuration in three layers, later layers winning:
//  1. Default() — spec.md §6's enumerated defaults.
//  2. An optional TOML file, if one exists at the given path.
//  3. Environment variables, always applied last.
//
// A deployment can therefore check in a taskmesh.toml for its tuning knobs
// and still override any single value with an environment variable in a
// specific environment, without touching the file.
//
// # Quick Start
//
//	cfg, err := config.Load("taskmesh.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("max_parallel_tasks: %d\n", cfg.MaxParallelTasks)
//
// # Configuration Fields
//
// **Orchestrator tuning** (spec.md §6):
//   - TASKMESH_MAX_PARALLEL_TASKS (default: 10)
//   - TASKMESH_TASK_TIMEOUT_SECONDS (default: 300)
//   - TASKMESH_DELEGATION_TIMEOUT_SECONDS (default: 30.0)
//   - TASKMESH_MAX_RETRIES (default: 3)
//   - TASKMESH_RETRY_BACKOFF_BASE_SECONDS (default: 1.0)
//   - selection_weight_success, selection_weight_speed, selection_weight_load
//     (TOML only, default 0.5/0.3/0.2)
//
// **Observability stack**:
//   - SERVICE_NAME, SERVICE_VERSION, ENVIRONMENT, LOG_LEVEL
//   - JAEGER_ENDPOINT, PROMETHEUS_PORT, TASKMESH_HEALTH_PORT
package config
