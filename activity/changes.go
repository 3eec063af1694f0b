// ABOUTME: Field-level diff between two versions of a deal
// ABOUTME: Feeds field_update activities with before and after values
package activity

import (
	"fmt"
	"time"

	"github.com/harperreed/closer/models"
	"github.com/shopspring/decimal"
)

// Change is one field that differs between two deal versions.
type Change struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %s → %s", c.Field, orNone(c.Before), orNone(c.After))
}

// Changes compares the caller-editable fields of two deal versions in a
// fixed order. Derived commission fields are included so the trail records
// the recomputed amounts.
func Changes(before, after *models.Deal) []Change {
	var changes []Change

	add := func(field, b, a string) {
		if b != a {
			changes = append(changes, Change{Field: field, Before: b, After: a})
		}
	}

	add("title", before.Title, after.Title)
	add("client_id", before.ClientID, after.ClientID)
	add("assigned_to", before.AssignedTo, after.AssignedTo)
	add("deal_value", money(before.DealValue), money(after.DealValue))
	add("commission_rate", before.CommissionRate.String(), after.CommissionRate.String())
	add("commission_split_percent", nullDecimal(before.CommissionSplitPercent), nullDecimal(after.CommissionSplitPercent))
	add("commission_amount", money(before.CommissionAmount), money(after.CommissionAmount))
	add("agent_commission", money(before.AgentCommission), money(after.AgentCommission))
	add("expected_close_date", date(before.ExpectedCloseDate), date(after.ExpectedCloseDate))
	add("actual_close_date", date(before.ActualCloseDate), date(after.ActualCloseDate))
	add("lost_reason", str(before.LostReason), str(after.LostReason))
	add("notes", before.Notes, after.Notes)

	return changes
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
