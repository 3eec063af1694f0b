// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for deals, milestones and the audit trail
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS deals (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	deal_type_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	assigned_to TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	current_stage TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'closed_won', 'closed_lost')),
	deal_value TEXT NOT NULL DEFAULT '0',
	commission_rate TEXT NOT NULL DEFAULT '0',
	commission_split_percent TEXT,
	commission_amount TEXT NOT NULL DEFAULT '0',
	agent_commission TEXT NOT NULL DEFAULT '0',
	expected_close_date DATE,
	actual_close_date DATE,
	closed_at DATETIME,
	lost_reason TEXT,
	notes TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	last_activity_at DATETIME NOT NULL,
	deleted_at DATETIME,
	CHECK(status != 'closed_lost' OR (lost_reason IS NOT NULL AND length(lost_reason) >= 10 AND closed_at IS NOT NULL)),
	CHECK(status != 'closed_won' OR (closed_at IS NOT NULL AND actual_close_date IS NOT NULL)),
	CHECK(status = 'closed_lost' OR lost_reason IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_deals_owner ON deals(owner_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_deals_owner_status ON deals(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_deals_client ON deals(client_id);
CREATE INDEX IF NOT EXISTS idx_deals_type_stage ON deals(deal_type_id, current_stage);

CREATE TABLE IF NOT EXISTS milestones (
	id TEXT PRIMARY KEY,
	deal_id TEXT NOT NULL,
	milestone_type TEXT NOT NULL,
	name TEXT NOT NULL,
	scheduled_date DATE NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'completed', 'cancelled')),
	completed_date DATE,
	source TEXT NOT NULL DEFAULT 'manual' CHECK(source IN ('template', 'manual')),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (deal_id) REFERENCES deals(id),
	CHECK(status = 'completed' OR completed_date IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_milestones_deal ON milestones(deal_id, scheduled_date);

CREATE TABLE IF NOT EXISTS milestone_generations (
	deal_id TEXT NOT NULL,
	trigger_stage TEXT NOT NULL,
	milestone_count INTEGER NOT NULL,
	generated_at DATETIME NOT NULL,
	PRIMARY KEY (deal_id, trigger_stage),
	FOREIGN KEY (deal_id) REFERENCES deals(id)
);

CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	deal_id TEXT NOT NULL,
	activity_type TEXT NOT NULL CHECK(activity_type IN (
		'stage_change', 'note', 'call', 'email', 'meeting', 'showing',
		'document_upload', 'document_delete', 'milestone_complete', 'field_update', 'other'
	)),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	old_stage TEXT,
	new_stage TEXT,
	author_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (deal_id) REFERENCES deals(id),
	CHECK(activity_type != 'stage_change' OR (old_stage IS NOT NULL AND new_stage IS NOT NULL AND old_stage != new_stage))
);

CREATE INDEX IF NOT EXISTS idx_activities_deal ON activities(deal_id, created_at);

CREATE TRIGGER IF NOT EXISTS activities_no_update
BEFORE UPDATE ON activities
BEGIN
	SELECT RAISE(ABORT, 'activities are append-only');
END;

CREATE TRIGGER IF NOT EXISTS activities_no_delete
BEFORE DELETE ON activities
BEGIN
	SELECT RAISE(ABORT, 'activities are append-only');
END;
`

// Tables lists every table InitSchema creates.
var Tables = []string{"deals", "milestones", "milestone_generations", "activities"}

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
