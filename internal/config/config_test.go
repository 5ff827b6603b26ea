package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/permission"
)

func TestDefaultMatchesTeacherBaseline(t *testing.T) {
	c := Default()
	if c.Server.ListenAddr == "" {
		t.Fatal("expected a non-empty default listen address")
	}
	if c.Storage.ReplayBufSize <= 0 {
		t.Fatal("expected a positive default replay buffer size")
	}
	if c.Sandbox.Driver != "passthrough" {
		t.Fatalf("Driver = %q, want passthrough", c.Sandbox.Driver)
	}
}

func TestApplyOverridesInOrder(t *testing.T) {
	c := Apply(
		WithListenAddr(":9999"),
		WithStorageRoot("/tmp/wonopcore-test"),
		WithAllowAllInSandbox(true),
		WithSandboxDriver("docker"),
		WithProvider("anthropic", "claude-opus-4", "sk-test"),
	)
	if c.Server.ListenAddr != ":9999" {
		t.Fatalf("ListenAddr = %q, want :9999", c.Server.ListenAddr)
	}
	if c.Storage.Root != "/tmp/wonopcore-test" {
		t.Fatalf("Storage.Root = %q", c.Storage.Root)
	}
	if !c.Permission.AllowAllInSandbox {
		t.Fatal("expected AllowAllInSandbox to be true")
	}
	if c.Sandbox.Driver != "docker" {
		t.Fatalf("Sandbox.Driver = %q, want docker", c.Sandbox.Driver)
	}
	if c.Provider.Kind != "anthropic" || c.Provider.APIKey != "sk-test" {
		t.Fatalf("Provider = %+v", c.Provider)
	}
}

func TestLoadOverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wonopcore.yaml")
	yamlBody := "server:\n  listen_addr: \":8080\"\nprovider:\n  kind: anthropic\n  api_key: ${TEST_WONOPCORE_KEY}\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_WONOPCORE_KEY", "sk-from-env")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q, want :8080", c.Server.ListenAddr)
	}
	if c.Provider.APIKey != "sk-from-env" {
		t.Fatalf("APIKey = %q, want env-expanded value", c.Provider.APIKey)
	}
	// Unset fields keep their Default() value.
	if c.Storage.ReplayBufSize != Default().Storage.ReplayBufSize {
		t.Fatalf("Storage.ReplayBufSize = %d, want default to survive overlay", c.Storage.ReplayBufSize)
	}
}

func TestLoadPermissionRulesRegistersConfigOriginRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	body := "rules:\n  - tool: bash\n    matcher: \"git *\"\n    decision: allow\n  - tool: bash\n    matcher: \"rm -rf *\"\n    decision: deny\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr := permission.NewManager(bus.New())
	if err := LoadPermissionRules(path, mgr); err != nil {
		t.Fatal(err)
	}

	if d, _, _ := mgr.Decide("ses_1", "bash", "git status"); d != permission.Allow {
		t.Fatalf("Decide(git status) = %s, want Allow", d)
	}
	if d, _, _ := mgr.Decide("ses_1", "bash", "rm -rf /tmp/x"); d != permission.Deny {
		t.Fatalf("Decide(rm -rf) = %s, want Deny", d)
	}
}

func TestLoadPermissionRulesRejectsInvalidDecision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	body := "rules:\n  - tool: bash\n    matcher: \"*\"\n    decision: maybe\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	mgr := permission.NewManager(bus.New())
	if err := LoadPermissionRules(path, mgr); err == nil {
		t.Fatal("expected an error for an invalid decision")
	}
}

func TestValidateVersion(t *testing.T) {
	if err := ValidateVersion(0); err != nil {
		t.Fatalf("unversioned config should be accepted: %v", err)
	}
	if err := ValidateVersion(CurrentVersion); err != nil {
		t.Fatalf("current version should be accepted: %v", err)
	}
	if err := ValidateVersion(CurrentVersion + 1); err == nil {
		t.Fatal("expected an error for a config version newer than this build")
	}
}
