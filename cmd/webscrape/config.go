package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAMLConfig is a kong.ConfigurationLoader reading flag defaults from a YAML
// mapping. Keys are flag names, with dashes or underscores:
//
//	delay: 2s
//	user_agent: [agent-a, agent-b]
//	workers: 4
//
// Flags of a single command may be nested under the command name.
func YAMLConfig(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return kong.ResolverFunc(func(_ *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		scopes := []map[string]any{values}
		if parent != nil && parent.Command != nil {
			if nested, ok := values[parent.Command.Name].(map[string]any); ok {
				scopes = append([]map[string]any{nested}, scopes...)
			}
		}
		for _, scope := range scopes {
			if raw, ok := lookup(scope, flag.Name); ok {
				return raw, nil
			}
		}
		return nil, nil
	}), nil
}

func lookup(values map[string]any, name string) (any, bool) {
	if raw, ok := values[name]; ok {
		return raw, true
	}
	raw, ok := values[strings.ReplaceAll(name, "-", "_")]
	return raw, ok
}
