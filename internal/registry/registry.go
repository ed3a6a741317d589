// Package registry is the rescue-team registry adapter. It answers the one
// question the matcher asks: which standby teams sit within a radius of the
// event, ordered by distance then capability level. Backed by SQLite through
// the pure-Go driver so the registry works without cgo.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// StatusStandby is the only status the matcher considers deployable.
const StatusStandby = "standby"

// teamTypeToResource translates registry team types to canonical resource
// type codes. Unknown types map to RESCUE_TEAM.
var teamTypeToResource = map[string]string{
	"fire_rescue":   "FIRE_TEAM",
	"medical":       "MEDICAL_TEAM",
	"search_rescue": "RESCUE_TEAM",
	"hazmat":        "HAZMAT_TEAM",
	"engineering":   "ENGINEERING_TEAM",
	"aviation":      "AVIATION_TEAM",
	"flood_rescue":  "FLOOD_TEAM",
}

// ResourceTypeFor returns the canonical resource type for a team type.
func ResourceTypeFor(teamType string) string {
	if rt, ok := teamTypeToResource[teamType]; ok {
		return rt
	}
	return "RESCUE_TEAM"
}

// Registry holds the team database connection. Safe for concurrent use.
type Registry struct {
	db      *sql.DB
	mu      sync.RWMutex
	dbPath  string
	timeout time.Duration
}

// Open initializes the SQLite team registry at the given path, creating the
// schema if needed.
func Open(path string, timeout time.Duration) (*Registry, error) {
	timer := logging.StartTimer(logging.CategoryRegistry, "Open")
	defer timer.Stop()

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open team database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.RegistryDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.RegistryDebug("failed to set journal_mode=WAL: %v", err)
	}

	r := &Registry{db: db, dbPath: path, timeout: timeout}
	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Registry("team registry ready at %s", path)
	return r, nil
}

func (r *Registry) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		team_type TEXT NOT NULL,
		base_lat REAL,
		base_lng REAL,
		base_address TEXT NOT NULL DEFAULT '',
		total_personnel INTEGER NOT NULL DEFAULT 0,
		available_personnel INTEGER NOT NULL DEFAULT 0,
		capability_level INTEGER NOT NULL DEFAULT 1,
		response_time_minutes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'standby',
		capabilities TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_teams_status ON teams(status);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create teams schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// UpsertTeam inserts or replaces one team row.
func (r *Registry) UpsertTeam(ctx context.Context, team types.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	caps, err := json.Marshal(team.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO teams
		(id, name, team_type, base_lat, base_lng, base_address,
		 total_personnel, available_personnel, capability_level,
		 response_time_minutes, status, capabilities)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		team.ID, team.Name, team.TeamType, team.BaseLat, team.BaseLng,
		team.BaseAddress, team.TotalPersonnel, team.AvailablePersonnel,
		team.CapabilityLevel, team.ResponseTimeMinutes, team.Status, string(caps),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert team %s: %w", team.ID, err)
	}
	return nil
}

// QueryTeams returns standby teams with a known base location within
// maxDistanceKM of the event, ordered by distance ascending then capability
// level descending, limited to maxTeams rows. Distances are geodesic
// (haversine over WGS84 mean radius) and reported in meters on each Team.
func (r *Registry) QueryTeams(ctx context.Context, eventLat, eventLng, maxDistanceKM float64, maxTeams int) ([]types.Team, error) {
	timer := logging.StartTimer(logging.CategoryRegistry, "QueryTeams")
	defer timer.Stop()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, team_type, base_lat, base_lng, base_address,
		       total_personnel, available_personnel, capability_level,
		       response_time_minutes, status, capabilities
		FROM teams
		WHERE status = ? AND base_lat IS NOT NULL AND base_lng IS NOT NULL`,
		StatusStandby,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	var teams []types.Team
	for rows.Next() {
		var t types.Team
		var capsJSON string
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.Name, &t.TeamType, &lat, &lng, &t.BaseAddress,
			&t.TotalPersonnel, &t.AvailablePersonnel, &t.CapabilityLevel,
			&t.ResponseTimeMinutes, &t.Status, &capsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", err)
		}
		if !lat.Valid || !lng.Valid {
			continue
		}
		t.BaseLat, t.BaseLng = lat.Float64, lng.Float64
		if capsJSON != "" {
			if err := json.Unmarshal([]byte(capsJSON), &t.Capabilities); err != nil {
				logging.RegistryDebug("team %s has malformed capabilities, treating as none: %v", t.ID, err)
				t.Capabilities = nil
			}
		}
		t.ResourceType = ResourceTypeFor(t.TeamType)
		t.DistanceM = HaversineM(eventLat, eventLng, t.BaseLat, t.BaseLng)
		if t.DistanceM <= maxDistanceKM*1000 {
			teams = append(teams, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read team rows: %w", err)
	}

	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].DistanceM != teams[j].DistanceM {
			return teams[i].DistanceM < teams[j].DistanceM
		}
		return teams[i].CapabilityLevel > teams[j].CapabilityLevel
	})
	if maxTeams > 0 && len(teams) > maxTeams {
		teams = teams[:maxTeams]
	}

	logging.RegistryDebug("QueryTeams(%.4f, %.4f, %.0fkm, cap %d) -> %d teams",
		eventLat, eventLng, maxDistanceKM, maxTeams, len(teams))
	return teams, nil
}

// Count returns the number of team rows.
func (r *Registry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM teams").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count teams: %w", err)
	}
	return n, nil
}

const earthRadiusM = 6371008.8

// HaversineM returns the great-circle distance in meters between two WGS84
// coordinates.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lng2 - lng1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
