package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/ogsolve/internal/solver"
)

// Load reads a YAML parameter file, overlays it on Default and computes the
// derived parameters. An empty path returns the computed defaults.
func Load(path string) (*Specifications, error) {
	return LoadFrom(Default(), path)
}

// LoadFrom overlays the YAML file at path on base and computes the derived
// parameters. base is modified in place and returned.
func LoadFrom(base *Specifications, path string) (*Specifications, error) {
	p := base
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read parameters %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parse parameters %s: %w", path, err)
		}
	}
	if err := p.Compute(); err != nil {
		return nil, fmt.Errorf("parameters %s: %w", path, err)
	}
	return p, nil
}

// Preset returns the named raw calibration: "default" (or empty) or "small".
func Preset(name string) (*Specifications, error) {
	switch name {
	case "", "default":
		return Default(), nil
	case "small":
		return Small(), nil
	default:
		return nil, &solver.ConfigurationError{Field: "preset", Reason: fmt.Sprintf("unknown preset %q", name)}
	}
}

// Update applies a revision of raw parameters (keys as in the YAML file)
// and recomputes. Age and ability schedules that no longer fit the new
// dimensions are rebuilt from defaults.
func (p *Specifications) Update(revision map[string]any) error {
	data, err := yaml.Marshal(revision)
	if err != nil {
		return fmt.Errorf("encode revision: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("apply revision: %w", err)
	}
	p.dropStaleSchedules(revision)
	return p.Compute()
}

func (p *Specifications) dropStaleSchedules(revision map[string]any) {
	_, setRho := revision["rho"]
	if !setRho && len(p.Rho) != p.S {
		p.Rho = nil
	}
	if _, ok := revision["e"]; !ok {
		if len(p.E) != p.S || (len(p.E) > 0 && len(p.E[0]) != p.J()) {
			p.E = nil
		}
	}
	if len(p.ChiN) != 1 && len(p.ChiN) != p.S {
		p.ChiN = p.ChiN[:1]
	}
	if len(p.ChiB) != 1 && len(p.ChiB) != p.J() {
		p.ChiB = p.ChiB[:1]
	}
	if _, ok := revision["S"]; ok && !p.ConstantDemographics {
		p.Omega, p.OmegaSS, p.OmegaSPreTP = nil, nil, nil
	}
	for key, arr := range map[string]*[][][]float64{
		"etr_params":  &p.ETRParams,
		"mtrx_params": &p.MTRxParams,
		"mtry_params": &p.MTRyParams,
		"tau_c":       &p.TauC,
	} {
		if _, ok := revision[key]; ok {
			continue
		}
		a := *arr
		if len(a) == 0 || len(a[0]) == 0 || len(a[0][0]) == 0 {
			continue
		}
		// collapse to the first cell, which Compute broadcasts again
		if key == "tau_c" && (len(a[0]) != p.S || len(a[0][0]) != p.J()) {
			*arr = [][][]float64{{{a[0][0][0]}}}
		} else if len(a[0]) != p.S {
			*arr = [][][]float64{{clone1(a[0][0])}}
		}
	}
}
