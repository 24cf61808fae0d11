package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/meterload/internal/core"
	"github.com/JonMunkholm/meterload/internal/core/mappers"
)

var profileValidate *validator.Validate

func init() {
	profileValidate = validator.New()
	_ = profileValidate.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		return core.ValidTimeOfDay(fl.Field().String())
	})
}

// MeterProfile describes how one meter's files are read and checked.
type MeterProfile struct {
	Name   string `yaml:"name" validate:"required"`
	Mapper string `yaml:"mapper" validate:"required"`

	HasHeader bool   `yaml:"hasHeader"`
	Delimiter string `yaml:"delimiter" validate:"omitempty,len=1"`

	TimeSort         string `yaml:"timeSort" validate:"omitempty,oneof=increasing decreasing"`
	RepetitionFactor int    `yaml:"repetitionFactor" validate:"omitempty,min=1"`

	Cumulative      bool             `yaml:"cumulative"`
	CumulativeReset bool             `yaml:"cumulativeReset"`
	ResetWindow     core.ResetWindow `yaml:"resetWindow"`

	GapTolerance    time.Duration `yaml:"gapTolerance" validate:"min=0"`
	LengthTolerance time.Duration `yaml:"lengthTolerance" validate:"min=0"`

	EndOnly      bool `yaml:"endOnly"`
	ShouldUpdate bool `yaml:"update"`

	Conditions *core.ConditionSet `yaml:"conditions"`
}

// Profiles is the parsed profile file.
type Profiles struct {
	Meters []MeterProfile `yaml:"meters" validate:"dive"`

	byName map[string]MeterProfile
}

// LoadProfiles reads and validates a profile file.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	p, err := ParseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProfiles decodes and validates profile YAML.
func ParseProfiles(data []byte) (*Profiles, error) {
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.byName = make(map[string]MeterProfile, len(p.Meters))
	for _, m := range p.Meters {
		p.byName[m.Name] = m
	}
	return &p, nil
}

// Validate checks every profile and reports all failures at once.
func (p *Profiles) Validate() error {
	var errs []string

	if err := profileValidate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate profiles: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	seen := make(map[string]bool)
	for i, m := range p.Meters {
		if m.Name == "" {
			continue
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Sprintf("meters[%d]: duplicate meter %q", i, m.Name))
		}
		seen[m.Name] = true

		if m.Mapper == "" {
			continue
		}
		if _, err := m.Params(1); err != nil {
			errs = append(errs, fmt.Sprintf("meters[%d] (%s): %v", i, m.Name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid profiles:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Get returns the profile of the named meter.
func (p *Profiles) Get(name string) (MeterProfile, bool) {
	m, ok := p.byName[name]
	return m, ok
}

// Resolve returns the profile named name, or the one named after the
// meter when name is empty.
func (p *Profiles) Resolve(meterName, name string) (MeterProfile, error) {
	if name == "" {
		name = meterName
	}
	m, ok := p.Get(name)
	if !ok {
		return MeterProfile{}, fmt.Errorf("unknown profile %q", name)
	}
	return m, nil
}

// Names lists the configured meters in file order.
func (p *Profiles) Names() []string {
	names := make([]string, len(p.Meters))
	for i, m := range p.Meters {
		names[i] = m.Name
	}
	return names
}

// Definition resolves the profile's row mapper.
func (m MeterProfile) Definition() (mappers.Definition, error) {
	return mappers.Lookup(m.Mapper)
}

// Comma returns the field delimiter, defaulting to ','.
func (m MeterProfile) Comma() rune {
	if m.Delimiter == "" {
		return ','
	}
	r, _ := utf8.DecodeRuneInString(m.Delimiter)
	return r
}

// Params converts the profile into validated processor parameters.
func (m MeterProfile) Params(meterID int64) (core.Params, error) {
	def, err := m.Definition()
	if err != nil {
		return core.Params{}, err
	}
	if m.EndOnly && !def.EndOnly {
		return core.Params{}, fmt.Errorf("mapper %q yields interval rows and cannot be used with endOnly", def.Name)
	}

	p := core.DefaultParams(meterID)
	if m.TimeSort != "" {
		p.TimeSort = core.TimeSort(m.TimeSort)
	}
	if m.RepetitionFactor > 0 {
		p.RepetitionFactor = m.RepetitionFactor
	}
	p.Cumulative = m.Cumulative
	p.CumulativeReset = m.CumulativeReset
	if m.ResetWindow.Start != "" || m.ResetWindow.End != "" {
		w := core.DefaultResetWindow()
		if m.ResetWindow.Start != "" {
			w.Start = m.ResetWindow.Start
		}
		if m.ResetWindow.End != "" {
			w.End = m.ResetWindow.End
		}
		p.ResetWindow = w
	}
	p.ReadingGapTolerance = m.GapTolerance
	p.ReadingLengthTolerance = m.LengthTolerance
	p.EndOnly = m.EndOnly || def.EndOnly
	p.ShouldUpdate = m.ShouldUpdate
	p.Conditions = m.Conditions

	if err := p.Validate(); err != nil {
		return core.Params{}, err
	}
	return p, nil
}

// Request builds an ingest request that loads src into meterName using
// this profile. size is the source length in bytes, or negative if unknown.
func (m MeterProfile) Request(meterName, fileName string, src io.Reader, size int64) (core.IngestRequest, error) {
	def, err := m.Definition()
	if err != nil {
		return core.IngestRequest{}, err
	}
	// The service replaces the placeholder ID with the stored meter's.
	params, err := m.Params(1)
	if err != nil {
		return core.IngestRequest{}, err
	}
	return core.IngestRequest{
		MeterName: meterName,
		FileName:  fileName,
		Source:    src,
		Size:      size,
		HasHeader: m.HasHeader,
		Comma:     m.Comma(),
		Mapper:    def.Map,
		Params:    params,
	}, nil
}
