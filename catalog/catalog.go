// ABOUTME: Read-only deal type catalog loaded from YAML
// ABOUTME: Validates pipeline configuration and serves lookups by type ID
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/harperreed/closer/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var ErrDealTypeNotFound = errors.New("deal type not found")

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	types map[string]*models.DealType
}

type fileFormat struct {
	DealTypes []dealTypeEntry `yaml:"deal_types"`
}

type dealTypeEntry struct {
	ID                    string          `yaml:"id"`
	TypeCode              string          `yaml:"type_code"`
	Name                  string          `yaml:"name"`
	Active                *bool           `yaml:"active"`
	DefaultCommissionRate string          `yaml:"default_commission_rate"`
	TriggerStage          string          `yaml:"trigger_stage"`
	WonStages             []string        `yaml:"won_stages"`
	LostStages            []string        `yaml:"lost_stages"`
	Stages                []stageEntry    `yaml:"stages"`
	Milestones            []templateEntry `yaml:"milestones"`
}

type stageEntry struct {
	Code  string `yaml:"code"`
	Name  string `yaml:"name"`
	Order int    `yaml:"order"`
}

type templateEntry struct {
	Type       string `yaml:"type"`
	Name       string `yaml:"name"`
	DaysOffset int    `yaml:"days_offset"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultsYAML)
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Load returns the file catalog when path is set, else the embedded one.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	return New(file.toModels()...)
}

// New builds a catalog from already-decoded deal types.
func New(dealTypes ...*models.DealType) (*Catalog, error) {
	c := &Catalog{types: make(map[string]*models.DealType, len(dealTypes))}
	for _, dt := range dealTypes {
		if err := Validate(dt); err != nil {
			return nil, err
		}
		if _, exists := c.types[dt.ID]; exists {
			return nil, fmt.Errorf("duplicate deal type id: %s", dt.ID)
		}
		c.types[dt.ID] = dt
	}
	return c, nil
}

// Get returns the active deal type with the given ID.
func (c *Catalog) Get(typeID string) (*models.DealType, error) {
	dt, ok := c.types[typeID]
	if !ok || !dt.Active {
		return nil, fmt.Errorf("%w: %s", ErrDealTypeNotFound, typeID)
	}
	return dt, nil
}

// List returns active deal types sorted by ID.
func (c *Catalog) List() []*models.DealType {
	out := make([]*models.DealType, 0, len(c.types))
	for _, dt := range c.types {
		if dt.Active {
			out = append(out, dt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks a deal type's internal consistency.
func Validate(dt *models.DealType) error {
	if dt == nil || strings.TrimSpace(dt.ID) == "" {
		return fmt.Errorf("deal type id is required")
	}
	if dt.TypeCode == "" {
		return fmt.Errorf("deal type %s: type_code is required", dt.ID)
	}
	if len(dt.Stages) == 0 {
		return fmt.Errorf("deal type %s: at least one stage is required", dt.ID)
	}

	codes := make(map[string]bool, len(dt.Stages))
	orders := make(map[int]bool, len(dt.Stages))
	for _, s := range dt.Stages {
		if s.Code == "" {
			return fmt.Errorf("deal type %s: stage code is required", dt.ID)
		}
		if codes[s.Code] {
			return fmt.Errorf("deal type %s: duplicate stage code %s", dt.ID, s.Code)
		}
		if orders[s.Order] {
			return fmt.Errorf("deal type %s: duplicate stage order %d", dt.ID, s.Order)
		}
		codes[s.Code] = true
		orders[s.Order] = true
	}
	if !orders[0] {
		return fmt.Errorf("deal type %s: no stage with order 0", dt.ID)
	}

	if dt.TriggerStage != "" && !codes[dt.TriggerStage] {
		return fmt.Errorf("deal type %s: trigger stage %s is not a stage", dt.ID, dt.TriggerStage)
	}
	for _, code := range dt.WonStages {
		if !codes[code] {
			return fmt.Errorf("deal type %s: won stage %s is not a stage", dt.ID, code)
		}
	}
	for _, code := range dt.LostStages {
		if !codes[code] {
			return fmt.Errorf("deal type %s: lost stage %s is not a stage", dt.ID, code)
		}
		if dt.IsWon(code) {
			return fmt.Errorf("deal type %s: stage %s is both won and lost", dt.ID, code)
		}
	}
	if dt.IsTerminal(dt.InitialStage().Code) {
		return fmt.Errorf("deal type %s: initial stage cannot be terminal", dt.ID)
	}

	if dt.DefaultCommissionRate.IsNegative() || dt.DefaultCommissionRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("deal type %s: default commission rate out of range", dt.ID)
	}

	for _, m := range dt.Milestones {
		if m.MilestoneType == "" || m.Name == "" {
			return fmt.Errorf("deal type %s: milestone templates need a type and name", dt.ID)
		}
	}

	return nil
}

func (f fileFormat) toModels() []*models.DealType {
	out := make([]*models.DealType, 0, len(f.DealTypes))
	for _, e := range f.DealTypes {
		dt := &models.DealType{
			ID:           e.ID,
			TypeCode:     e.TypeCode,
			Name:         e.Name,
			Active:       e.Active == nil || *e.Active,
			TriggerStage: e.TriggerStage,
			WonStages:    e.WonStages,
			LostStages:   e.LostStages,
		}
		if dt.TypeCode == "" {
			dt.TypeCode = dt.ID
		}
		if dt.Name == "" {
			dt.Name = dt.ID
		}
		// unparseable rates surface as a negative rate and fail validation
		dt.DefaultCommissionRate = decimal.NewFromInt(-1)
		if rate, err := decimal.NewFromString(strings.TrimSpace(e.DefaultCommissionRate)); err == nil {
			dt.DefaultCommissionRate = rate
		} else if e.DefaultCommissionRate == "" {
			dt.DefaultCommissionRate = decimal.Zero
		}

		for _, s := range e.Stages {
			name := s.Name
			if name == "" {
				name = s.Code
			}
			dt.Stages = append(dt.Stages, models.PipelineStage{Code: s.Code, Name: name, Order: s.Order})
		}
		for _, m := range e.Milestones {
			dt.Milestones = append(dt.Milestones, models.MilestoneTemplate{
				MilestoneType: m.Type,
				Name:          m.Name,
				DaysOffset:    m.DaysOffset,
			})
		}
		out = append(out, dt)
	}
	return out
}
