package cluster

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	appLog "campusmap/internal/log"
	"campusmap/internal/model"
)

// LoadDirectory reads the building directory from a YAML (or JSON) list.
// File order is preserved; matching relies on it.
func LoadDirectory(path string) ([]model.Building, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read building directory: %w", err)
	}
	return ParseDirectory(data)
}

// ParseDirectory decodes a directory document. Entries without an id or
// name are dropped.
func ParseDirectory(data []byte) ([]model.Building, error) {
	var raw []model.Building
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse building directory: %w", err)
	}

	out := make([]model.Building, 0, len(raw))
	for i, b := range raw {
		b.ID = strings.TrimSpace(b.ID)
		b.Name = strings.TrimSpace(b.Name)
		b.Code = strings.TrimSpace(b.Code)
		if b.ID == "" || b.Name == "" {
			appLog.Warn("skipping building entry without id or name", "index", i)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
