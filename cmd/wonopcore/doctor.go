package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wonop-io/wonopcore/internal/config"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that storage, sandbox, and provider configuration are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runDoctor(cfg)
		},
	}
}

func runDoctor(cfg config.Config) error {
	var problems []string

	probe := filepath.Join(cfg.Storage.Root, ".doctor-probe")
	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		problems = append(problems, fmt.Sprintf("storage root %s is not creatable: %v", cfg.Storage.Root, err))
	} else if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		problems = append(problems, fmt.Sprintf("storage root %s is not writable: %v", cfg.Storage.Root, err))
	} else {
		_ = os.Remove(probe)
	}

	if cfg.Sandbox.Driver == "docker" {
		if _, err := exec.LookPath("docker"); err != nil {
			problems = append(problems, "sandbox.driver is docker but the docker CLI was not found on PATH")
		}
	}

	if cfg.Provider.Kind == "anthropic" && cfg.Provider.APIKey == "" {
		problems = append(problems, "provider.kind is anthropic but provider.api_key is empty")
	}

	if len(problems) == 0 {
		fmt.Println("ok: storage, sandbox, and provider configuration look usable")
		return nil
	}
	fmt.Println("found problems:")
	for _, p := range problems {
		fmt.Println("  -", p)
	}
	return fmt.Errorf("doctor: %d problem(s) found", len(problems))
}
