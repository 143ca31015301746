// Package scenarios serves the embedded trial designs and true-parameter
// scenarios used by the CLI and the tests.
package scenarios

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"gotrial/domain/trial"
)

//go:embed presets/designs/*.yaml presets/scenarios/*.yaml
var presetFS embed.FS

const (
	designDir   = "presets/designs"
	scenarioDir = "presets/scenarios"
)

// byGroup is a per-dose vector for each immune stratum
type byGroup struct {
	NoImmune []float64 `yaml:"no_immune"`
	Immune   []float64 `yaml:"immune"`
}

type copulaFile struct {
	NoImmune float64 `yaml:"no_immune"`
	Immune   float64 `yaml:"immune"`
}

type scenarioFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Calibration string     `yaml:"calibration"`
	Immune      []float64  `yaml:"immune"`
	Toxicity    byGroup    `yaml:"toxicity"`
	Efficacy    byGroup    `yaml:"efficacy"`
	Copula      copulaFile `yaml:"copula"`
}

type utilityRow struct {
	Efficacy int     `yaml:"efficacy"`
	Toxicity int     `yaml:"toxicity"`
	NoImmune float64 `yaml:"no_immune"`
	Immune   float64 `yaml:"immune"`
}

type designFile struct {
	Name             string           `yaml:"name"`
	Description      string           `yaml:"description"`
	DoseLabels       []string         `yaml:"dose_labels"`
	NumDoses         int              `yaml:"num_doses"`
	NumStages        int              `yaml:"num_stages"`
	CohortSize       int              `yaml:"cohort_size"`
	CohortSizes      []int            `yaml:"cohort_sizes"`
	Thresholds       trial.Thresholds `yaml:"thresholds"`
	PoC              trial.PoCParams  `yaml:"poc"`
	EarlyTermination bool             `yaml:"early_termination"`
	NumSamples       int              `yaml:"num_samples"`
	Utility          []utilityRow     `yaml:"utility"`
}

// Info describes one preset for listings
type Info struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Calibration string `json:"calibration,omitempty"`
}

// LoadScenario reads a scenario preset by name
func LoadScenario(name string) (*trial.Scenario, error) {
	f, err := readScenario(name)
	if err != nil {
		return nil, err
	}
	return f.toScenario()
}

// LoadDesign reads a design preset by name and validates it
func LoadDesign(name string) (*trial.Configuration, error) {
	data, err := presetFS.ReadFile(path.Join(designDir, name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("design %q not found (available: %s): %w",
			name, strings.Join(ListDesigns(), ", "), err)
	}
	var f designFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse design %q: %w", name, err)
	}
	cfg, err := f.toConfiguration()
	if err != nil {
		return nil, fmt.Errorf("design %q: %w", name, err)
	}
	return cfg, nil
}

// ListScenarios returns the names of all embedded scenarios, sorted
func ListScenarios() []string { return list(scenarioDir) }

// ListDesigns returns the names of all embedded designs, sorted
func ListDesigns() []string { return list(designDir) }

// Catalog describes every embedded preset, designs first
func Catalog() ([]Info, error) {
	var out []Info
	for _, name := range ListDesigns() {
		data, err := presetFS.ReadFile(path.Join(designDir, name+".yaml"))
		if err != nil {
			return nil, err
		}
		var f designFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse design %q: %w", name, err)
		}
		out = append(out, Info{Name: name, Kind: "design", Description: f.Description})
	}
	for _, name := range ListScenarios() {
		f, err := readScenario(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Info{Name: name, Kind: "scenario", Description: f.Description, Calibration: f.Calibration})
	}
	return out, nil
}

func readScenario(name string) (*scenarioFile, error) {
	data, err := presetFS.ReadFile(path.Join(scenarioDir, name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("scenario %q not found (available: %s): %w",
			name, strings.Join(ListScenarios(), ", "), err)
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenario %q: %w", name, err)
	}
	return &f, nil
}

func list(dir string) []string {
	entries, _ := presetFS.ReadDir(dir)
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

func (f *scenarioFile) toScenario() (*trial.Scenario, error) {
	n := len(f.Immune)
	for _, col := range [][]float64{f.Toxicity.NoImmune, f.Toxicity.Immune, f.Efficacy.NoImmune, f.Efficacy.Immune} {
		if len(col) != n {
			return nil, fmt.Errorf("scenario %q: group vectors must have %d doses", f.Name, n)
		}
	}
	s := &trial.Scenario{
		Name:     f.Name,
		Immune:   append([]float64(nil), f.Immune...),
		Toxicity: make([][trial.NumImmuneGroups]float64, n),
		Efficacy: make([][trial.NumImmuneGroups]float64, n),
		Copula:   [trial.NumImmuneGroups]float64{f.Copula.NoImmune, f.Copula.Immune},
	}
	for d := 0; d < n; d++ {
		s.Toxicity[d] = [trial.NumImmuneGroups]float64{f.Toxicity.NoImmune[d], f.Toxicity.Immune[d]}
		s.Efficacy[d] = [trial.NumImmuneGroups]float64{f.Efficacy.NoImmune[d], f.Efficacy.Immune[d]}
	}
	if err := s.Validate(n); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", f.Name, err)
	}
	return s, nil
}

func (f *designFile) toConfiguration() (*trial.Configuration, error) {
	cfg := &trial.Configuration{
		DoseLabels:       f.DoseLabels,
		NumDoses:         f.NumDoses,
		NumStages:        f.NumStages,
		CohortSize:       f.CohortSize,
		CohortSizes:      f.CohortSizes,
		Thresholds:       f.Thresholds,
		PoC:              f.PoC,
		EarlyTermination: f.EarlyTermination,
		NumSamples:       f.NumSamples,
	}
	if cfg.NumDoses == 0 {
		cfg.NumDoses = len(f.DoseLabels)
	}
	seen := map[[2]int]bool{}
	for _, row := range f.Utility {
		if row.Efficacy < 0 || row.Efficacy > 1 || row.Toxicity < 0 || row.Toxicity > 1 {
			return nil, fmt.Errorf("utility row (%d,%d) out of range", row.Efficacy, row.Toxicity)
		}
		cfg.Utility[row.Efficacy][row.Toxicity][trial.GroupNoImmune] = row.NoImmune
		cfg.Utility[row.Efficacy][row.Toxicity][trial.GroupImmune] = row.Immune
		seen[[2]int{row.Efficacy, row.Toxicity}] = true
	}
	if len(seen) != 4 {
		return nil, fmt.Errorf("utility table needs all four (efficacy, toxicity) rows, have %d", len(seen))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
