package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CandidateSlotRow is a candidate interval intersecting unit and agent
// availability, excluding anything overlapping an unavailable block.
type CandidateSlotRow struct {
	UnitID    uuid.UUID
	AgentID   uuid.UUID
	AgentName string
	StartsAt  time.Time
	EndsAt    time.Time
	Timezone  string
	Mode      string
	Priority  int
}

// FetchCandidateSlots returns candidate showing windows for a unit on the
// given date, ordered by assignment mode (active before passive), then
// priority ascending, then candidate start time. When includePassive is
// false, only active assignments are considered.
func (q *Queries) FetchCandidateSlots(ctx context.Context, unitID uuid.UUID, date time.Time, includePassive bool) ([]CandidateSlotRow, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := q.db.Query(ctx, `
		SELECT uas.unit_id, uas.agent_id, a.display_name,
			GREATEST(u.starts_at, g.starts_at) AS starts_at,
			LEAST(u.ends_at, g.ends_at) AS ends_at,
			u.timezone, uas.assignment_mode, uas.priority
		FROM unit_agent_assignments uas
		JOIN availability_slots u ON u.unit_id = uas.unit_id AND u.status = 'available'
		JOIN agent_availability_slots g ON g.agent_id = uas.agent_id AND g.status = 'available'
			AND g.starts_at < u.ends_at AND g.ends_at > u.starts_at
		JOIN agents a ON a.id = uas.agent_id
		WHERE uas.unit_id = $1
		  AND u.starts_at < $3 AND u.ends_at > $2
		  AND ($4 OR uas.assignment_mode = 'active')
		  AND NOT EXISTS (
			SELECT 1 FROM availability_slots x
			WHERE x.unit_id = uas.unit_id AND x.status = 'unavailable'
			  AND x.starts_at < u.ends_at AND x.ends_at > u.starts_at
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM agent_availability_slots y
			WHERE y.agent_id = uas.agent_id AND y.status = 'unavailable'
			  AND y.starts_at < g.ends_at AND y.ends_at > g.starts_at
		  )
		ORDER BY (uas.assignment_mode = 'active') DESC, uas.priority ASC, starts_at ASC`,
		unitID, dayStart, dayEnd, includePassive)
	if err != nil {
		return nil, fmt.Errorf("fetching candidate slots: %w", err)
	}
	defer rows.Close()

	var out []CandidateSlotRow
	for rows.Next() {
		var r CandidateSlotRow
		if err := rows.Scan(&r.UnitID, &r.AgentID, &r.AgentName, &r.StartsAt, &r.EndsAt,
			&r.Timezone, &r.Mode, &r.Priority); err != nil {
			return nil, fmt.Errorf("scanning candidate slot: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AgentActiveAssignment returns the agent holding the active assignment for
// (unitId, priority), and whether one exists, used to enforce "at most one
// active record per (unitId, priority)" at the application layer before insert.
func (q *Queries) AgentActiveAssignment(ctx context.Context, unitID uuid.UUID, priority int) (uuid.UUID, bool, error) {
	var agentID uuid.UUID
	err := q.db.QueryRow(ctx, `
		SELECT agent_id FROM unit_agent_assignments
		WHERE unit_id = $1 AND priority = $2 AND assignment_mode = 'active'`, unitID, priority,
	).Scan(&agentID)
	if err != nil {
		if isNoRows(err) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("looking up active assignment: %w", err)
	}
	return agentID, true, nil
}
