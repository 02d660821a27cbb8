// Command dashgen generates the Grafana dashboard and Prometheus rule
// files under deploy/ from the definitions in this package. Run it after
// changing a panel or rule; CI compares the committed files against a
// fresh generation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pricewatch/tools/dashgen/dashboards"
	"pricewatch/tools/dashgen/rules"
	"pricewatch/tools/dashgen/validate"
)

// generatedHeader marks rule files as machine-written.
const generatedHeader = "# Code generated by dashgen. DO NOT EDIT.\n"

func main() {
	validateOnly := flag.Bool("validate", false, "validate generated artifacts without writing files")
	outputDir := flag.String("output", "", "override output directory")
	flag.Parse()

	cfg := DefaultConfig()
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *validateOnly); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// artifact is a generated file relative to the output directory.
type artifact struct {
	path string
	data []byte
}

func run(cfg Config, validateOnly bool) error {
	artifacts, result, err := generate(cfg)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if !result.Ok() {
		return fmt.Errorf("validation failed:\n  %s", strings.Join(result.Errors, "\n  "))
	}
	if validateOnly {
		fmt.Println("validation passed")
		return nil
	}

	for _, a := range artifacts {
		full := filepath.Join(cfg.OutputDir, a.path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, a.data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", full, err)
		}
		fmt.Printf("wrote %s\n", full)
	}
	return nil
}

// generate builds every enabled artifact and validates all PromQL in it
// against KnownMetrics.
func generate(cfg Config) ([]artifact, validate.Result, error) {
	var artifacts []artifact
	var result validate.Result

	if cfg.DashboardEnabled {
		dash, err := dashboards.BuildOverview().Build()
		if err != nil {
			return nil, result, fmt.Errorf("building overview dashboard: %w", err)
		}
		result.Merge(validate.Dashboard(dash, KnownMetrics))

		data, err := json.MarshalIndent(dash, "", "  ")
		if err != nil {
			return nil, result, fmt.Errorf("marshaling overview dashboard: %w", err)
		}
		artifacts = append(artifacts, artifact{
			path: filepath.Join("grafana", "data", "pw-overview.json"),
			data: append(data, '\n'),
		})
	}

	if cfg.RulesEnabled {
		for _, cr := range []struct {
			file string
			rule rules.PrometheusRule
		}{
			{"pw-recording-rules.yaml", rules.RecordingRules()},
			{"pw-alerts.yaml", rules.AlertRules()},
		} {
			for _, group := range cr.rule.Spec.Groups {
				for _, r := range group.Rules {
					name := r.Record
					if name == "" {
						name = r.Alert
					}
					result.Merge(validate.Expr(fmt.Sprintf("rule %q", name), r.Expr, KnownMetrics))
				}
			}

			data, err := yaml.Marshal(cr.rule)
			if err != nil {
				return nil, result, fmt.Errorf("marshaling %s: %w", cr.file, err)
			}
			artifacts = append(artifacts, artifact{
				path: filepath.Join("prometheus", cr.file),
				data: append([]byte(generatedHeader), data...),
			})
		}
	}

	return artifacts, result, nil
}
