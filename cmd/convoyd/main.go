// Command convoyd serves the inbound webhook/WS gateway, runs the debounce
// orchestrator and AI pipeline, and hosts the routerctl operator TUI.
package main

func main() {
	Execute()
}
