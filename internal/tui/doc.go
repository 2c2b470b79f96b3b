// Package tui provides the terminal user interface for nexus.
//
// App shows every session seen on the event channel with its tasks and their
// status. In interactive mode it also has an input field; each submitted
// request is handed to the submit callback, which normally runs it through
// the engine in the background.
//
// Usage:
//
//	app := tui.NewApp(tui.WithSubmit(func(text string) {
//	    go engine.ProcessRequest(ctx, "", text, nil)
//	}))
//	program := tea.NewProgram(app)
//	events, stop := engine.Watch(256)
//	defer stop()
//	go tui.Forward(program, events)
//	program.Run()
package tui
