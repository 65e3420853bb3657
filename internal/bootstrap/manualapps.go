package bootstrap

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sidecar is an optional structured alternative to the plain-text
// manual-apps whitelist: a YAML file listing manual apps and excluded
// patterns together, for setups that already manage configuration as
// YAML (spec.md's own format is plain text, one path per line).
type Sidecar struct {
	ManualApps       []string `yaml:"manual_apps"`
	ExcludedPatterns []string `yaml:"excluded_patterns"`
}

// LoadManualAppsFile parses the plain-text whitelist: one absolute
// path per line, blank lines and '#'-prefixed comments ignored.
func LoadManualAppsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// LoadSidecar parses an optional YAML sidecar. A missing file is not
// an error — the sidecar is always optional, layered on top of the
// plain-text whitelist rather than replacing it.
func LoadSidecar(path string) (Sidecar, error) {
	if path == "" {
		return Sidecar{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Sidecar{}, nil
		}
		return Sidecar{}, fmt.Errorf("bootstrap: read sidecar: %w", err)
	}
	var s Sidecar
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Sidecar{}, fmt.Errorf("bootstrap: parse sidecar: %w", err)
	}
	return s, nil
}
