package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Suite is one named benchmark definition of a config file together with all
// runs its matrix expands to.
type Suite struct {
	Name string
	Type BenchmarkType
	Runs []Run
}

// Run is one concrete benchmark execution. Single runs carry one config,
// parallel runs carry two, each paired with its side name.
type Run struct {
	Names   []string
	Configs []Config
}

type rawSide struct {
	Args   map[string]any   `yaml:"args"`
	Matrix map[string][]any `yaml:"matrix"`
}

// LoadFile reads a suite file. Every config starts from defaults before the
// benchmark arguments are applied.
func LoadFile(path string, defaults Config) ([]Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	suites, err := Load(f, defaults)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	return suites, nil
}

// Load parses suites from r, keeping the order in which benchmarks appear.
func Load(r io.Reader, defaults Config) ([]Suite, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: config contains no benchmarks", ErrInvalidArgument)
		}

		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidArgument, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	if root.Kind != yaml.MappingNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: config must map benchmark names to definitions",
			ErrInvalidArgument)
	}

	suites := make([]Suite, 0, len(root.Content)/2)

	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value

		suite, err := parseSuite(name, root.Content[i+1], defaults)
		if err != nil {
			return nil, fmt.Errorf("benchmark %q: %w", name, err)
		}

		suites = append(suites, suite)
	}

	return suites, nil
}

func parseSuite(name string, node *yaml.Node, defaults Config) (Suite, error) {
	if err := checkKeys(node, "type", "args", "matrix", "parallel"); err != nil {
		return Suite{}, err
	}

	var def struct {
		Type     string           `yaml:"type"`
		Args     map[string]any   `yaml:"args"`
		Matrix   map[string][]any `yaml:"matrix"`
		Parallel yaml.Node        `yaml:"parallel"`
	}
	if err := node.Decode(&def); err != nil {
		return Suite{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	typeName := def.Type
	if typeName == "" {
		typeName = "single"
	}

	bmType, err := ParseBenchmarkType(typeName)
	if err != nil {
		return Suite{}, err
	}

	suite := Suite{Name: name, Type: bmType}

	switch bmType {
	case Single:
		if def.Parallel.Kind != 0 {
			return Suite{}, fmt.Errorf("%w: parallel section on a single benchmark",
				ErrInvalidArgument)
		}

		configs, err := expand(defaults, rawSide{Args: def.Args, Matrix: def.Matrix})
		if err != nil {
			return Suite{}, err
		}

		for _, cfg := range configs {
			suite.Runs = append(suite.Runs, Run{
				Names:   []string{name},
				Configs: []Config{cfg},
			})
		}

	case Parallel:
		runs, err := parseParallel(&def.Parallel, defaults)
		if err != nil {
			return Suite{}, err
		}

		suite.Runs = runs
	}

	return suite, nil
}

func parseParallel(node *yaml.Node, defaults Config) ([]Run, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 4 {
		return nil, fmt.Errorf("%w: parallel benchmarks need exactly two named sides",
			ErrInvalidArgument)
	}

	var (
		names [2]string
		sides [2][]Config
	)

	for i := 0; i < 2; i++ {
		names[i] = node.Content[2*i].Value
		sideNode := node.Content[2*i+1]

		if err := checkKeys(sideNode, "args", "matrix"); err != nil {
			return nil, fmt.Errorf("side %q: %w", names[i], err)
		}

		var side rawSide
		if err := sideNode.Decode(&side); err != nil {
			return nil, fmt.Errorf("side %q: %w: %v", names[i], ErrInvalidArgument, err)
		}

		configs, err := expand(defaults, side)
		if err != nil {
			return nil, fmt.Errorf("side %q: %w", names[i], err)
		}

		sides[i] = configs
	}

	if names[0] == names[1] {
		return nil, fmt.Errorf("%w: parallel sides share the name %q",
			ErrInvalidArgument, names[0])
	}

	runs := make([]Run, 0, len(sides[0])*len(sides[1]))
	for _, first := range sides[0] {
		for _, second := range sides[1] {
			runs = append(runs, Run{
				Names:   []string{names[0], names[1]},
				Configs: []Config{first.Clone(), second.Clone()},
			})
		}
	}

	return runs, nil
}

// expand applies args plus every combination of matrix values to defaults.
// Matrix keys are expanded in sorted order so run order is stable.
func expand(defaults Config, side rawSide) ([]Config, error) {
	keys := make([]string, 0, len(side.Matrix))
	for k, values := range side.Matrix {
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: matrix key %q has no values", ErrInvalidArgument, k)
		}
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var configs []Config

	combo := make(map[string]any, len(keys))

	var walk func(depth int) error
	walk = func(depth int) error {
		if depth == len(keys) {
			cfg, err := decodeArgs(defaults, side.Args, combo)
			if err != nil {
				return err
			}

			configs = append(configs, cfg)

			return nil
		}

		key := keys[depth]
		for _, v := range side.Matrix[key] {
			combo[key] = v
			if err := walk(depth + 1); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk(0); err != nil {
		return nil, err
	}

	return configs, nil
}

func decodeArgs(defaults Config, args, combo map[string]any) (Config, error) {
	merged := make(map[string]any, len(args)+len(combo))
	for k, v := range args {
		merged[k] = v
	}
	for k, v := range combo {
		merged[k] = v
	}

	data, err := yaml.Marshal(merged)
	if err != nil {
		return Config{}, fmt.Errorf("%w: encode args: %v", ErrInvalidArgument, err)
	}

	cfg := defaults.Clone()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func checkKeys(node *yaml.Node, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: expected a mapping at line %d", ErrInvalidArgument, node.Line)
	}

	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value

		known := false
		for _, a := range allowed {
			if key == a {
				known = true

				break
			}
		}

		if !known {
			return fmt.Errorf("%w: unknown key %q at line %d",
				ErrInvalidArgument, key, node.Content[i].Line)
		}
	}

	return nil
}
