package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted sequence of observations of one source.
type Scenario struct {
	// Name uniquely identifies this scenario. It prefixes run ids and names
	// the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Source configures detection and retention.
	Source SourceSpec `yaml:"source"`

	// Steps are the observed record lists, one cycle each.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store and the dispatched events.
	Assertions []Assertion `yaml:"assertions"`
}

// SourceSpec is the monitored source of a scenario.
type SourceSpec struct {
	Name          string   `yaml:"name"`
	KeyFields     []string `yaml:"key_fields"`
	CompareFields []string `yaml:"compare_fields,omitempty"`
	PriceField    string   `yaml:"price_field,omitempty"`
	Retention     int      `yaml:"retention,omitempty"`

	RequiredFields  []string `yaml:"required_fields,omitempty"`
	NormalizeFields []string `yaml:"normalize_fields,omitempty"`
	DedupeByKey     bool     `yaml:"dedupe_by_key,omitempty"`
	SkipEmpty       bool     `yaml:"skip_empty,omitempty"`
}

// Step is one monitor cycle.
type Step struct {
	// Records is the observed list. An empty or missing list is a valid
	// observation of zero items.
	Records []map[string]any `yaml:"records"`

	// Fail injects a storage error: "latest", "save" or "prune".
	Fail string `yaml:"fail,omitempty"`

	// Expect validates the cycle. If nil, nothing is checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step. List fields are checked
// only when present; an explicit empty list requires an empty bucket.
type Expect struct {
	Status   string   `yaml:"status"`
	New      []string `yaml:"new,omitempty"`
	Removed  []string `yaml:"removed,omitempty"`
	Modified []string `yaml:"modified,omitempty"`
	Summary  string   `yaml:"summary,omitempty"`
}

// Assertion validates state after all steps ran.
type Assertion struct {
	// Type specifies the assertion type:
	// - "snapshot_count": stored snapshots equal Count
	// - "latest_ids": identifiers of the latest snapshot equal IDs
	// - "notification_count": events of Kind equal Count
	// - "status_sequence": step statuses equal Statuses
	Type string `yaml:"type"`

	Count    int      `yaml:"count,omitempty"`
	IDs      []string `yaml:"ids,omitempty"`
	Kind     string   `yaml:"kind,omitempty"`
	Statuses []string `yaml:"statuses,omitempty"`
}

// Assertion type constants.
const (
	AssertSnapshotCount     = "snapshot_count"
	AssertLatestIDs         = "latest_ids"
	AssertNotificationCount = "notification_count"
	AssertStatusSequence    = "status_sequence"
)

// Injectable storage failures.
const (
	FailLatest = "latest"
	FailSave   = "save"
	FailPrune  = "prune"
)

var validStatuses = map[string]bool{
	"baseline":  true,
	"changed":   true,
	"unchanged": true,
	"skipped":   true,
	"failed":    true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Source.Name == "" {
		return fmt.Errorf("source.name is required")
	}
	if len(s.Source.KeyFields) == 0 {
		return fmt.Errorf("source.key_fields is required and must be non-empty")
	}
	if s.Source.Retention < 0 {
		return fmt.Errorf("source.retention must be positive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Fail {
		case "", FailLatest, FailSave, FailPrune:
		default:
			return fmt.Errorf("steps[%d]: unknown fail mode %q", i, step.Fail)
		}
		if step.Expect != nil && !validStatuses[step.Expect.Status] {
			return fmt.Errorf("steps[%d].expect: status must be one of baseline, changed, unchanged, skipped, failed", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertSnapshotCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for snapshot_count", index)
		}
	case AssertLatestIDs:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for latest_ids", index)
		}
	case AssertNotificationCount:
		if a.Kind != "baseline" && a.Kind != "report" {
			return fmt.Errorf("assertions[%d]: kind must be baseline or report for notification_count", index)
		}
	case AssertStatusSequence:
		if len(a.Statuses) == 0 {
			return fmt.Errorf("assertions[%d]: statuses list is required for status_sequence", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
