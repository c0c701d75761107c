package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/creasty/defaults"
)

// SnapshotVersion is the current persisted snapshot schema version.
// Version 1 predates per-worker risk settings in BotConfig and stored the
// loss counter as "failed_trades"; the loader migrates it.
const SnapshotVersion = 2

// Snapshot is the serializable projection of one worker, keyed by bot ID.
type Snapshot struct {
	Version      int             `json:"version"`
	BotID        string          `json:"bot_id"`
	Config       BotConfig       `json:"config"`
	Runtime      RuntimeSnapshot `json:"runtime"`
	Risk         RiskState       `json:"risk"`
	LastActivity time.Time       `json:"last_activity"`
	SavedAt      time.Time       `json:"saved_at"`
}

// UnmarshalJSON decodes the current schema and migrates recognizable older
// shapes. Unrecognized versions fail, letting the loader drop the entry.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	type alias Snapshot
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	switch a.Version {
	case SnapshotVersion:
	case 1:
		var legacy struct {
			Risk struct {
				FailedTrades int     `json:"failed_trades"`
				SessionPnl   float64 `json:"session_pnl"`
			} `json:"risk"`
		}
		if err := json.Unmarshal(b, &legacy); err != nil {
			return err
		}
		a.Risk.ConsecutiveLosses = legacy.Risk.FailedTrades
		a.Risk.SessionPnl = legacy.Risk.SessionPnl
		// v1 configs predate per-worker risk settings.
		if err := defaults.Set(&a.Config); err != nil {
			return fmt.Errorf("migrate snapshot config: %w", err)
		}
		a.Version = SnapshotVersion
	default:
		return fmt.Errorf("unrecognized snapshot version %d", a.Version)
	}
	*s = Snapshot(a)
	return nil
}
