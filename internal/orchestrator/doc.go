// Package orchestrator turns free-text requests into executed task graphs.
//
// The Engine asks a Planner for a structured plan, routes untyped steps to a
// worker type with the capability router, validates the resulting dependency
// graph and hands it to the Scheduler. The Scheduler dispatches every ready
// task concurrently up to a ceiling, settles tasks whether they succeed or
// fail, and records each transition in the coordination store before
// publishing it on the event channel.
//
// Example usage:
//
//	store := coord.Open(ctx, backend)
//	engine, err := orchestrator.New(orchestrator.RequiredConfig{
//		Planner: plan.NewTranslator(client),
//		Store:   store,
//		Workers: worker.NewPool(registry),
//	}, orchestrator.WithMaxConcurrentTasks(5))
//	resp := engine.ProcessRequest(ctx, "", "Compare three databases", nil)
package orchestrator
