package toolreg

import (
	"context"
	"encoding/json"
	"testing"
)

func TestEnterPlanModeSwitchesAgent(t *testing.T) {
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", Agent: "build"}
	out, err := EnterPlanModeTool{}.Execute(tc, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Metadata["agent"] != planAgentID {
		t.Fatalf("got agent %v, want %s", out.Metadata["agent"], planAgentID)
	}
	if out.Metadata["previous_agent"] != "build" {
		t.Fatalf("got previous_agent %v, want build", out.Metadata["previous_agent"])
	}
}

func TestExitPlanModeRestoresBuildAgent(t *testing.T) {
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", Agent: planAgentID}
	tool := ExitPlanModeTool{BuildAgentID: "build"}
	out, err := tool.Execute(tc, json.RawMessage(`{"plan": "do the thing"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Metadata["agent"] != "build" {
		t.Fatalf("got agent %v, want build", out.Metadata["agent"])
	}
	if out.Metadata["plan"] != "do the thing" {
		t.Fatalf("got plan %v", out.Metadata["plan"])
	}
}
