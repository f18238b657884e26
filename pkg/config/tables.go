package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// tablesFile is the on-disk shape of AIRTABLE_TABLES_FILE:
//
//	tables:
//	  leave-requests: "Leave Requests"
//	  payroll: "Payroll 2025"
type tablesFile struct {
	Tables map[string]string `yaml:"tables"`
}

// LoadTableOverrides reads a resource-to-table mapping from a YAML file.
// An empty path yields no overrides.
func LoadTableOverrides(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}

	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tables file %s: %w", path, err)
	}

	for resource, table := range f.Tables {
		if table == "" {
			return nil, fmt.Errorf("tables file %s: empty table name for %q", path, resource)
		}
	}

	return f.Tables, nil
}
