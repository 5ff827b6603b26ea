package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonop-io/wonopcore/internal/permission"
)

// Load reads a YAML config file, expanding ${VAR}/$VAR references against
// the process environment the way the teacher's config.LoadRaw does,
// and overlays it onto Default().
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return c, nil
}

// ruleDoc is the YAML-origin shape for a config-supplied Permission
// Manager rule; Origin is always forced to permission.OriginConfig and
// Scope to permission.ScopePersistent regardless of what the file says,
// since config rules outlive any one session by definition.
type ruleDoc struct {
	Tool     string `yaml:"tool"`
	Matcher  string `yaml:"matcher"`
	Decision string `yaml:"decision"`
}

type rulesDoc struct {
	Rules []ruleDoc `yaml:"rules"`
}

// LoadPermissionRules reads a YAML rules file (PermissionConfig.RulesFile)
// and registers every entry into mgr as an OriginConfig/ScopePersistent
// rule, per §11's "config-origin permission rules are authored as YAML"
// wiring.
func LoadPermissionRules(path string, mgr *permission.Manager) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading rules file %s: %w", path, err)
	}
	var doc rulesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parsing rules file %s: %w", path, err)
	}
	for i, rd := range doc.Rules {
		decision := permission.Decision(rd.Decision)
		switch decision {
		case permission.Allow, permission.Deny, permission.Ask:
		default:
			return fmt.Errorf("config: rules file %s: rule %d has invalid decision %q", path, i, rd.Decision)
		}
		mgr.AddRule(permission.Rule{
			ID:       fmt.Sprintf("config-%d", i),
			Tool:     rd.Tool,
			Matcher:  rd.Matcher,
			Decision: decision,
			Scope:    permission.ScopePersistent,
			Origin:   permission.OriginConfig,
		})
	}
	return nil
}
