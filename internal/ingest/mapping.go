package ingest

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Mapping binds tabular columns to record fields. Identity and Attributes
// map the target field name to the source column header.
type Mapping struct {
	RecordID   string            `yaml:"record_id"`
	Identity   map[string]string `yaml:"identity"`
	Quantity   string            `yaml:"quantity,omitempty"`
	UnitCost   string            `yaml:"unit_cost,omitempty"`
	TotalCost  string            `yaml:"total_cost,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// LoadMapping reads a column mapping from a YAML file.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read mapping %s", path)
	}

	// The YAML has a top-level "mapping" key.
	var wrapper struct {
		Mapping Mapping `yaml:"mapping"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "ingest: parse mapping")
	}

	m := &wrapper.Mapping
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that the mapping can yield usable records.
func (m *Mapping) Validate() error {
	if m.RecordID == "" {
		return eris.New("ingest: mapping needs a record_id column")
	}
	if len(m.Identity) == 0 {
		return eris.New("ingest: mapping needs at least one identity column")
	}
	if m.TotalCost == "" && (m.Quantity == "" || m.UnitCost == "") {
		return eris.New("ingest: mapping needs total_cost or both quantity and unit_cost")
	}
	return nil
}
