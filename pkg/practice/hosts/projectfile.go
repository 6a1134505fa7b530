package hosts

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/james-see/practicetrack/pkg/timemap"
)

// LoadProject reads a project from a TOML file
func LoadProject(path string) (*Project, error) {
	var p Project
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("failed to read project %s: %w", path, err)
	}
	if len(p.Tempo) == 0 {
		p.Tempo = []timemap.TempoPoint{{Time: 0, BPM: 120, Numerator: 4, Denominator: 4}}
	}
	p.Normalize()
	if _, err := timemap.New(p.Tempo); err != nil {
		return nil, fmt.Errorf("project %s: %w", path, err)
	}
	return &p, nil
}

// SaveProject writes a project as TOML
func SaveProject(path string, p *Project) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("failed to encode project: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write project %s: %w", path, err)
	}
	return nil
}
