package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioYAML = `
deal_types:
  - id: residential_sale
    default_commission_rate: 3
    trigger_stage: contract
    won_stages: [closed]
    stages:
      - { code: lead, name: Lead, order: 0 }
      - { code: contract, name: Contract, order: 1 }
      - { code: closed, name: Closed, order: 2 }
    milestones:
      - { type: inspection, name: Inspection, days_offset: 10 }
      - { type: closing, name: Closing, days_offset: 30 }
  - id: retired_type
    active: false
    stages:
      - { code: lead, order: 0 }
`

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	types := c.List()
	require.Len(t, types, 4)
	assert.Equal(t, "commercial_sale", types[0].ID)

	dt, err := c.Get("residential_sale")
	require.NoError(t, err)
	assert.Equal(t, "lead", dt.InitialStage().Code)
	assert.Equal(t, "under_contract", dt.TriggerStage)
	assert.True(t, dt.IsWon("closed"))
	assert.Len(t, dt.Milestones, 4)
	assert.Equal(t, "3", dt.DefaultCommissionRate.String())
}

func TestParseScenario(t *testing.T) {
	c, err := Parse([]byte(scenarioYAML))
	require.NoError(t, err)

	dt, err := c.Get("residential_sale")
	require.NoError(t, err)
	assert.Equal(t, "residential_sale", dt.TypeCode)
	assert.Equal(t, []string{"lead", "contract", "closed"}, dt.StageCodes())
	assert.Equal(t, 30, dt.Milestones[1].DaysOffset)
	assert.Equal(t, "Closed", dt.Stages[2].Name)
}

func TestGetInactiveOrMissing(t *testing.T) {
	c, err := Parse([]byte(scenarioYAML))
	require.NoError(t, err)

	_, err = c.Get("retired_type")
	assert.ErrorIs(t, err, ErrDealTypeNotFound)

	_, err = c.Get("nope")
	assert.ErrorIs(t, err, ErrDealTypeNotFound)

	assert.Len(t, c.List(), 1)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	_, err = c.Get("residential_sale")
	assert.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidationFailures(t *testing.T) {
	tests := map[string]string{
		"no initial stage": `
deal_types:
  - id: x
    stages: [{ code: a, order: 1 }]`,
		"duplicate code": `
deal_types:
  - id: x
    stages: [{ code: a, order: 0 }, { code: a, order: 1 }]`,
		"duplicate order": `
deal_types:
  - id: x
    stages: [{ code: a, order: 0 }, { code: b, order: 0 }]`,
		"unknown trigger": `
deal_types:
  - id: x
    trigger_stage: z
    stages: [{ code: a, order: 0 }]`,
		"won and lost overlap": `
deal_types:
  - id: x
    won_stages: [b]
    lost_stages: [b]
    stages: [{ code: a, order: 0 }, { code: b, order: 1 }]`,
		"terminal initial stage": `
deal_types:
  - id: x
    lost_stages: [a]
    stages: [{ code: a, order: 0 }]`,
		"bad rate": `
deal_types:
  - id: x
    default_commission_rate: lots
    stages: [{ code: a, order: 0 }]`,
		"rate above 100": `
deal_types:
  - id: x
    default_commission_rate: "150"
    stages: [{ code: a, order: 0 }]`,
		"template without name": `
deal_types:
  - id: x
    stages: [{ code: a, order: 0 }]
    milestones: [{ type: inspection, days_offset: 3 }]`,
		"duplicate type": `
deal_types:
  - id: x
    stages: [{ code: a, order: 0 }]
  - id: x
    stages: [{ code: a, order: 0 }]`,
		"malformed yaml": `deal_types: [`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
