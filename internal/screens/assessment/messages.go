package assessment

import "github.com/abhisek/cogtest/internal/orchestrator"

// startedMsg is sent when the orchestrator finished starting.
type startedMsg struct {
	Err error
}

// submittedMsg is sent when a submission round-trip finished.
type submittedMsg struct {
	Err error
}

// gateMsg is sent after an idle notification was handled.
type gateMsg struct {
	Kind orchestrator.GateKind
}

// gateActionMsg is sent when Restart or Go Home finished.
type gateActionMsg struct {
	Err error
}
