package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/stream"
)

// Scenario defines a replication scenario: orders written to one or more
// store nodes, feeds delivered to a shared master, and assertions on the
// resulting tables.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Region is rendered into every store's feed. Defaults to DefaultRegion.
	Region string `yaml:"region,omitempty"`

	// Stores lists the store node ids. Defaults to [DefaultStore]. Steps
	// that omit a store address the first one.
	Stores []string `yaml:"stores,omitempty"`

	// DualWrite makes strict submissions also upsert the master
	// synchronously, as the service does. Off by default so that only
	// replication fills the master.
	DualWrite bool `yaml:"dual_write,omitempty"`

	// KeyAttribute is the processor's key attribute. Defaults to order_id.
	KeyAttribute string `yaml:"key_attribute,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Defaults applied by LoadScenario.
const (
	DefaultRegion = "local"
	DefaultStore  = "store-1"
)

// Step operations.
const (
	OpSubmit    = "submit"     // strict intake
	OpSubmitRaw = "submit_raw" // permissive intake
	OpDelete    = "delete"
	OpReplicate = "replicate" // drain the store's feed into the master
	OpApply     = "apply"     // hand-built records straight to the processor
)

// Step is one operation.
type Step struct {
	Op    string `yaml:"op"`
	Store string `yaml:"store,omitempty"`

	// Order is the submitted payload (submit, submit_raw).
	Order map[string]any `yaml:"order,omitempty"`

	// OrderID is the order to delete (delete).
	OrderID string `yaml:"order_id,omitempty"`

	// BatchSize and Once tune the relay (replicate). Once delivers a
	// single batch instead of draining.
	BatchSize int  `yaml:"batch_size,omitempty"`
	Once      bool `yaml:"once,omitempty"`

	// Records are applied as one batch (apply).
	Records []RecordSpec `yaml:"records,omitempty"`

	// ExpectError names the order error kind the step must fail with:
	// validation or not_found.
	ExpectError string `yaml:"expect_error,omitempty"`

	// ExpectFailures is the number of records an apply or replicate must
	// report as failed.
	ExpectFailures int `yaml:"expect_failures,omitempty"`
}

// RecordSpec describes a feed record in plain YAML. Image is a bare
// object; it is wrapped into the attribute envelope when applied.
type RecordSpec struct {
	Event string         `yaml:"event"`
	Seq   string         `yaml:"seq"`
	Key   string         `yaml:"key,omitempty"`
	Image map[string]any `yaml:"image,omitempty"`
	Old   map[string]any `yaml:"old,omitempty"`
}

// Assertion validates the final tables.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Store selects the store node (store_contains, store_absent, feed_count).
	Store string `yaml:"store,omitempty"`

	// Key is the order id.
	Key string `yaml:"key,omitempty"`

	// Expect holds expected field values (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Sequence is the expected master sequence number (master_sequence).
	Sequence string `yaml:"sequence,omitempty"`

	// Count is the expected number of live master rows (master_count) or
	// feed records (feed_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertMasterContains = "master_contains"
	AssertMasterAbsent   = "master_absent"
	AssertMasterSequence = "master_sequence"
	AssertMasterCount    = "master_count"
	AssertStoreContains  = "store_contains"
	AssertStoreAbsent    = "store_absent"
	AssertFeedCount      = "feed_count"
	AssertConverged      = "converged"
)

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

// ParseScenario parses scenario YAML and fills in defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Region == "" {
		scenario.Region = DefaultRegion
	}
	if len(scenario.Stores) == 0 {
		scenario.Stores = []string{DefaultStore}
	}
	if scenario.KeyAttribute == "" {
		scenario.KeyAttribute = order.FieldOrderID
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Stores))
	for _, id := range s.Stores {
		if id == "" {
			return fmt.Errorf("stores: empty store id")
		}
		if seen[id] {
			return fmt.Errorf("stores: duplicate store id %q", id)
		}
		seen[id] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, seen); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, stores map[string]bool) error {
	if step.Store != "" && !stores[step.Store] {
		return fmt.Errorf("steps[%d]: unknown store %q", index, step.Store)
	}
	switch step.ExpectError {
	case "", string(order.KindValidation), string(order.KindNotFound):
	default:
		return fmt.Errorf("steps[%d]: expect_error must be validation or not_found, got %q", index, step.ExpectError)
	}

	switch step.Op {
	case OpSubmit, OpSubmitRaw:
		if step.Order == nil && step.ExpectError == "" {
			return fmt.Errorf("steps[%d]: order is required for %s", index, step.Op)
		}
	case OpDelete:
		if step.OrderID == "" {
			return fmt.Errorf("steps[%d]: order_id is required for delete", index)
		}
	case OpReplicate:
		if step.BatchSize < 0 {
			return fmt.Errorf("steps[%d]: batch_size must be non-negative", index)
		}
	case OpApply:
		if len(step.Records) == 0 {
			return fmt.Errorf("steps[%d]: records are required for apply", index)
		}
		for j, rec := range step.Records {
			if !slices.Contains([]string{string(stream.Insert), string(stream.Modify), string(stream.Remove)}, rec.Event) {
				return fmt.Errorf("steps[%d].records[%d]: unknown event %q", index, j, rec.Event)
			}
			if rec.Event == string(stream.Remove) && rec.Key == "" && rec.Old == nil {
				return fmt.Errorf("steps[%d].records[%d]: REMOVE needs key or old", index, j)
			}
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	return nil
}

func validateAssertion(index int, a Assertion, stores map[string]bool) error {
	if a.Store != "" && !stores[a.Store] {
		return fmt.Errorf("assertions[%d]: unknown store %q", index, a.Store)
	}

	switch a.Type {
	case AssertMasterContains, AssertStoreContains:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
	case AssertMasterAbsent, AssertStoreAbsent:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
	case AssertMasterSequence:
		if a.Key == "" || a.Sequence == "" {
			return fmt.Errorf("assertions[%d]: key and sequence are required for master_sequence", index)
		}
	case AssertMasterCount, AssertFeedCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertConverged:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
