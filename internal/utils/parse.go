package utils

import (
	"fmt"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// LoadTOMLFile decodes a TOML file into v. Keys that v has no field for are
// reported and skipped.
func LoadTOMLFile(path string, v any) error {
	md, err := toml.DecodeFile(path, v)
	if err != nil {
		log.Warnf("TOML parsing error in config file %s: %v. Attempting partial recovery...", path, err)
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		log.Warnf("Ignoring unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ParseTOMLWithRecovery decodes a TOML file into a generic map so that the
// values of the right type can be picked out of a file that failed to decode
// into its struct.
func ParseTOMLWithRecovery(path string) (map[string]any, error) {
	raw := make(map[string]any)
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return raw, nil
}

// ExtractSection extracts a table from parsed TOML data
func ExtractSection(data map[string]any, sectionName string) (map[string]any, bool) {
	section, ok := data[sectionName].(map[string]any)
	return section, ok
}

// ExtractInt64 extracts an integer value. TOML integers decode as int64.
func ExtractInt64(data map[string]any, key string) (int, bool) {
	val, ok := data[key].(int64)
	if !ok || val < math.MinInt32 || val > math.MaxInt32 {
		return 0, false
	}
	return int(val), true
}

// ExtractBool extracts a bool value from a map
func ExtractBool(data map[string]any, key string) (bool, bool) {
	val, ok := data[key].(bool)
	return val, ok
}
