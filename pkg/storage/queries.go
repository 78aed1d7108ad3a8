package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CommandQuery represents query parameters for retrieving commands
type CommandQuery struct {
	Limit   int
	Offset  int
	Since   *time.Time
	Rig     string // "A", "B", or "" for both
	Origin  string // "auto", "manual", or "" for both
	Outcome string // "sent", "failed", or "" for both
}

// CommandStats represents database statistics
type CommandStats struct {
	TotalSent   int        `json:"total_sent"`
	TotalFailed int        `json:"total_failed"`
	Stored      int        `json:"stored"`
	LastCleanup *time.Time `json:"last_cleanup,omitempty"`
}

// GetCommands retrieves commands newest first
func (cs *CommandStore) GetCommands(query CommandQuery) ([]CommandRecord, error) {
	var args []interface{}

	sqlQuery := `
		SELECT id, timestamp, rig, command, origin, outcome, reason
		FROM commands
		WHERE 1=1
	`

	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.Since.UTC())
	}
	if query.Rig != "" {
		sqlQuery += " AND rig = ?"
		args = append(args, query.Rig)
	}
	if query.Origin != "" {
		sqlQuery += " AND origin = ?"
		args = append(args, query.Origin)
	}
	if query.Outcome != "" {
		sqlQuery += " AND outcome = ?"
		args = append(args, query.Outcome)
	}

	sqlQuery += " ORDER BY timestamp DESC, rowid DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)

		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := cs.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	commands := []CommandRecord{}
	for rows.Next() {
		var rec CommandRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.Rig,
			&rec.Command,
			&rec.Origin,
			&rec.Outcome,
			&rec.Reason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		commands = append(commands, rec)
	}

	return commands, rows.Err()
}

// Recent retrieves the most recent commands
func (cs *CommandStore) Recent(limit int) ([]CommandRecord, error) {
	return cs.GetCommands(CommandQuery{Limit: limit})
}

// GetCommandCount returns the number of stored commands
func (cs *CommandStore) GetCommandCount() (int, error) {
	var count int
	err := cs.db.QueryRow("SELECT COUNT(*) FROM commands").Scan(&count)
	return count, err
}

// GetCommandStats retrieves lifetime statistics
func (cs *CommandStore) GetCommandStats() (*CommandStats, error) {
	var stats CommandStats
	var lastCleanup sql.NullTime

	err := cs.db.QueryRow(`
		SELECT total_sent, total_failed, last_cleanup
		FROM command_stats WHERE id = 1
	`).Scan(&stats.TotalSent, &stats.TotalFailed, &lastCleanup)
	if err != nil {
		return nil, fmt.Errorf("failed to get command stats: %w", err)
	}
	if lastCleanup.Valid {
		stats.LastCleanup = &lastCleanup.Time
	}

	stats.Stored, err = cs.GetCommandCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count commands: %w", err)
	}
	return &stats, nil
}
