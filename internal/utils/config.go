package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMergeConflict reports two variable sources assigning different values
// to the same key.
var ErrMergeConflict = errors.New("conflicting values for configuration key")

// Variables is a nested map of configuration values loaded from YAML
// variable files and command line overrides.
type Variables map[string]interface{}

// DeepMerge merges the variable sets left to right. Nested maps merge
// recursively; identical leaf values are allowed, differing leaf values
// are a conflict.
func DeepMerge(sets ...Variables) (Variables, error) {
	merged := Variables{}
	for _, set := range sets {
		if err := mergeInto(merged, set, ""); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func mergeInto(dst, src Variables, path string) error {
	for key, value := range src {
		keyPath := key
		if path != "" {
			keyPath = path + "." + key
		}

		existing, ok := dst[key]
		if !ok {
			dst[key] = value
			continue
		}

		existingMap, existingIsMap := asVariables(existing)
		valueMap, valueIsMap := asVariables(value)
		if existingIsMap && valueIsMap {
			merged := Variables{}
			if err := mergeInto(merged, existingMap, keyPath); err != nil {
				return err
			}
			if err := mergeInto(merged, valueMap, keyPath); err != nil {
				return err
			}
			dst[key] = merged
			continue
		}

		if fmt.Sprintf("%v", existing) == fmt.Sprintf("%v", value) {
			continue
		}
		return fmt.Errorf("%w: %v (%v vs %v)", ErrMergeConflict, keyPath, existing, value)
	}
	return nil
}

func asVariables(v interface{}) (Variables, bool) {
	switch m := v.(type) {
	case Variables:
		return m, true
	case map[string]interface{}:
		return Variables(m), true
	default:
		return nil, false
	}
}

// LoadVariablesFile reads one YAML variable file.
func LoadVariablesFile(path string) (Variables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable file: %w", err)
	}

	var vars Variables
	if err := yaml.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("failed to parse variable file %v: %w", path, err)
	}
	return vars, nil
}

// ParseOverrides converts KEY=VALUE command line arguments into a variable
// set.
func ParseOverrides(pairs []string) (Variables, error) {
	vars := Variables{}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid variable override %q, expected KEY=VALUE", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// MergeFilesAndOverrides loads each variable file in order and merges the
// command line overrides on top.
func MergeFilesAndOverrides(files []string, overrides []string) (Variables, error) {
	sets := make([]Variables, 0, len(files)+1)
	for _, path := range files {
		vars, err := LoadVariablesFile(path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, vars)
	}

	parsed, err := ParseOverrides(overrides)
	if err != nil {
		return nil, err
	}
	sets = append(sets, parsed)

	return DeepMerge(sets...)
}

// Config layers variable sets: global values, per-environment values, and
// per-environment-deployment values. ForEDP flattens the layers for one
// service instance.
type Config struct {
	global         Variables
	environments   map[string]Variables
	envDeployments map[string]Variables
}

// NewConfig creates a Config from a global variable set.
func NewConfig(global Variables) *Config {
	if global == nil {
		global = Variables{}
	}
	return &Config{
		global:         global,
		environments:   map[string]Variables{},
		envDeployments: map[string]Variables{},
	}
}

// AddEnvironment merges a variable set into the named environment overlay.
func (c *Config) AddEnvironment(environment string, vars Variables) error {
	merged, err := DeepMerge(c.environments[environment], vars)
	if err != nil {
		return fmt.Errorf("environment %v: %w", environment, err)
	}
	c.environments[environment] = merged
	return nil
}

// AddEnvDeployment merges a variable set into the overlay for an
// environment-deployment pair such as "stage-edx".
func (c *Config) AddEnvDeployment(envDeployment string, vars Variables) error {
	merged, err := DeepMerge(c.envDeployments[envDeployment], vars)
	if err != nil {
		return fmt.Errorf("environment-deployment %v: %w", envDeployment, err)
	}
	c.envDeployments[envDeployment] = merged
	return nil
}

// Global returns the unscoped variable layer.
func (c *Config) Global() Variables {
	return c.global
}

// ForEDP merges the global, environment, and environment-deployment layers
// for the given EDP.
func (c *Config) ForEDP(edp EDP) (Variables, error) {
	merged, err := DeepMerge(c.global, c.environments[edp.Environment], c.envDeployments[edp.EnvDeployment()])
	if err != nil {
		return nil, fmt.Errorf("configuration for %v: %w", edp, err)
	}
	return merged, nil
}

// String returns the named value as a string. Missing keys are an error so
// that installer scripts fail fast instead of writing empty values into the
// server configuration.
func (v Variables) String(key string) (string, error) {
	value, ok := v[key]
	if !ok {
		return "", fmt.Errorf("missing required configuration key %q", key)
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Sprintf("%v", value), nil
	}
	return s, nil
}

// StringOr returns the named value, or fallback when the key is absent.
func (v Variables) StringOr(key, fallback string) string {
	if _, ok := v[key]; !ok {
		return fallback
	}
	s, _ := v.String(key)
	return s
}

// Bool returns the named value as a bool; absent keys are false.
func (v Variables) Bool(key string) bool {
	value, ok := v[key]
	if !ok {
		return false
	}
	switch b := value.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}

// Map returns the named value as a nested variable set. Absent keys return
// an empty set.
func (v Variables) Map(key string) (Variables, error) {
	value, ok := v[key]
	if !ok {
		return Variables{}, nil
	}
	m, ok := asVariables(value)
	if !ok {
		return nil, fmt.Errorf("configuration key %q is not a map", key)
	}
	return m, nil
}

// Slice returns the named value as a list of nested variable sets. Absent
// keys return an empty list.
func (v Variables) Slice(key string) ([]Variables, error) {
	value, ok := v[key]
	if !ok {
		return nil, nil
	}
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("configuration key %q is not a list", key)
	}

	sets := make([]Variables, 0, len(list))
	for i, item := range list {
		m, ok := asVariables(item)
		if !ok {
			return nil, fmt.Errorf("configuration key %q entry %d is not a map", key, i)
		}
		sets = append(sets, m)
	}
	return sets, nil
}

// StringMap returns the named value as a flat map of strings, for feeding
// environment variable blocks.
func (v Variables) StringMap(key string) (map[string]string, error) {
	nested, err := v.Map(key)
	if err != nil {
		return nil, err
	}
	flat := make(map[string]string, len(nested))
	for name, value := range nested {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprintf("%v", value)
		}
		flat[name] = s
	}
	return flat, nil
}
