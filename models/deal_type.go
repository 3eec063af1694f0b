// ABOUTME: Deal type configuration model
// ABOUTME: Stage lists, milestone templates and terminal stage lookups
package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

type PipelineStage struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type MilestoneTemplate struct {
	MilestoneType string `json:"milestone_type"`
	Name          string `json:"name"`
	DaysOffset    int    `json:"days_offset"`
}

// DealType is immutable pipeline configuration. It is loaded, never computed.
type DealType struct {
	ID                    string              `json:"id"`
	TypeCode              string              `json:"type_code"`
	Name                  string              `json:"name"`
	Active                bool                `json:"active"`
	Stages                []PipelineStage     `json:"stages"`
	Milestones            []MilestoneTemplate `json:"milestones"`
	TriggerStage          string              `json:"trigger_stage,omitempty"`
	WonStages             []string            `json:"won_stages"`
	LostStages            []string            `json:"lost_stages"`
	DefaultCommissionRate decimal.Decimal     `json:"default_commission_rate"`
}

// Stage returns the stage with the given code.
func (dt *DealType) Stage(code string) (PipelineStage, bool) {
	for _, s := range dt.Stages {
		if s.Code == code {
			return s, true
		}
	}
	return PipelineStage{}, false
}

// HasStage reports whether code is one of the type's stage codes.
func (dt *DealType) HasStage(code string) bool {
	_, ok := dt.Stage(code)
	return ok
}

// InitialStage returns the order-0 stage.
func (dt *DealType) InitialStage() PipelineStage {
	for _, s := range dt.Stages {
		if s.Order == 0 {
			return s
		}
	}
	return PipelineStage{}
}

// OrderedStages returns a copy of the stages sorted by Order.
func (dt *DealType) OrderedStages() []PipelineStage {
	out := make([]PipelineStage, len(dt.Stages))
	copy(out, dt.Stages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// StageCodes returns the stage codes in pipeline order.
func (dt *DealType) StageCodes() []string {
	stages := dt.OrderedStages()
	codes := make([]string, len(stages))
	for i, s := range stages {
		codes[i] = s.Code
	}
	return codes
}

func (dt *DealType) IsWon(code string) bool {
	return contains(dt.WonStages, code)
}

func (dt *DealType) IsLost(code string) bool {
	return contains(dt.LostStages, code)
}

func (dt *DealType) IsTerminal(code string) bool {
	return dt.IsWon(code) || dt.IsLost(code)
}

// IsTrigger reports whether reaching code fires milestone generation.
func (dt *DealType) IsTrigger(code string) bool {
	return dt.TriggerStage != "" && dt.TriggerStage == code
}

// LostStage returns the first declared lost terminal stage.
func (dt *DealType) LostStage() (string, bool) {
	if len(dt.LostStages) == 0 {
		return "", false
	}
	return dt.LostStages[0], true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
