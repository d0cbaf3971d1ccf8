package jobs

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // exchange time zones on hosts without zoneinfo

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Target is one product root rebuilt on a schedule
type Target struct {
	Root         string   `yaml:"root" validate:"required,alpha"`
	Lines        []int    `yaml:"lines" validate:"required,dive,min=1"`
	Months       []string `yaml:"months"`
	LookbackDays int      `yaml:"lookback_days" validate:"min=1"`
	Schedule     string   `yaml:"schedule" validate:"required"`
}

// File is the schedule file read by the scheduler process
//
//	timezone: America/New_York
//	prune_after_days: 30
//	targets:
//	  - root: KC
//	    lines: [1, 2]
//	    lookback_days: 365
//	    schedule: "0 30 18 * * 1-5"
type File struct {
	Timezone       string `yaml:"timezone"`
	PruneAfterDays int    `yaml:"prune_after_days" validate:"min=0"`
	PruneSchedule  string `yaml:"prune_schedule"`
	// UniverseSchedule refreshes contract listings of every target root
	UniverseSchedule string   `yaml:"universe_schedule"`
	Targets          []Target `yaml:"targets" validate:"required,min=1,dive"`
}

// Roots returns the distinct target roots in file order
func (f *File) Roots() []string {
	seen := make(map[string]bool, len(f.Targets))
	var roots []string
	for _, t := range f.Targets {
		if !seen[t.Root] {
			seen[t.Root] = true
			roots = append(roots, t.Root)
		}
	}
	return roots
}

// Location resolves Timezone; empty means UTC
func (f *File) Location() (*time.Location, error) {
	if f.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", f.Timezone, err)
	}
	return loc, nil
}

// LoadFile reads and validates a schedule file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes and validates schedule YAML
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schedule file: %w", err)
	}
	for i := range f.Targets {
		f.Targets[i].Root = strings.ToUpper(strings.TrimSpace(f.Targets[i].Root))
		if f.Targets[i].LookbackDays == 0 {
			f.Targets[i].LookbackDays = 365
		}
	}
	if f.PruneSchedule == "" {
		f.PruneSchedule = "0 0 3 * * *"
	}
	if f.UniverseSchedule == "" {
		f.UniverseSchedule = "0 0 6 * * 1-5"
	}

	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid schedule file: %w", err)
	}
	if _, err := f.Location(); err != nil {
		return nil, err
	}
	return &f, nil
}
