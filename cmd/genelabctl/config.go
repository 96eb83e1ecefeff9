package main

import (
	"encoding/json"
	"fmt"
	"os"

	"genelab/pkg/genelab"
)

// loadRunRequestFromConfig applies a run config JSON file on top of base. The
// optional "evolution" block is read first, so top-level keys win.
func loadRunRequestFromConfig(path string, base genelab.RunRequest) (genelab.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return genelab.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return genelab.RunRequest{}, err
	}

	req := base
	if evolution, ok := raw["evolution"].(map[string]any); ok {
		if v, ok := asInt(evolution["population_size"]); ok {
			req.Population = v
		}
		if v, ok := asInt(evolution["max_generations"]); ok {
			req.Generations = v
		}
		if v, ok := asFloat64(evolution["mutation_rate"]); ok {
			req.MutationProbability = v
		}
	}

	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asInt(raw["population"]); ok {
		req.Population = v
	}
	if v, ok := asInt(raw["generations"]); ok {
		req.Generations = v
	}
	if v, ok := asInt(raw["genes_per_genome"]); ok {
		req.GenesPerGenome = v
	}
	if v, ok := asFloat64(raw["crossover_rate"]); ok {
		req.CrossoverRate = v
	}
	if v, ok := asFloat64(raw["mutation_probability"]); ok {
		req.MutationProbability = v
	}
	if v, ok := asFloat64(raw["selection_pressure"]); ok {
		req.SelectionPressure = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asString(raw["selection"]); ok {
		req.Selection = v
	}
	if v, ok := asInt(raw["top_count"]); ok {
		req.TopCount = v
	}
	return req, nil
}

func loadOrDefaultRunRequest(configPath string) (genelab.RunRequest, error) {
	if configPath == "" {
		return genelab.DefaultRunRequest(), nil
	}
	req, err := loadRunRequestFromConfig(configPath, genelab.DefaultRunRequest())
	if err != nil {
		return genelab.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

// overrideFromFlags applies explicitly set flags on top of a config file.
func overrideFromFlags(req *genelab.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "pop":
			req.Population = v.(int)
		case "gens":
			req.Generations = v.(int)
		case "genes":
			req.GenesPerGenome = v.(int)
		case "crossover-rate":
			req.CrossoverRate = v.(float64)
		case "mutation-probability":
			req.MutationProbability = v.(float64)
		case "selection-pressure":
			req.SelectionPressure = v.(float64)
		case "seed":
			req.Seed = v.(int64)
		case "selection":
			req.Selection = v.(string)
		case "top":
			req.TopCount = v.(int)
		}
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
