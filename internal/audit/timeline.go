package audit

import "time"

// TimelineFilters menampung filter dasar untuk audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	Action   string
	Page     int
	PageSize int
}

func (f TimelineFilters) query() TimelineQuery {
	return TimelineQuery{
		From:    f.From,
		To:      f.To,
		ActorID: f.ActorID,
		Entity:  f.Entity,
		Action:  f.Action,
	}
}

// TimelineQuery adalah filter yang diteruskan ke repository. Rentang waktu
// memakai batas atas eksklusif.
type TimelineQuery struct {
	From    time.Time
	To      time.Time
	ActorID int64
	Entity  string
	Action  string
	Limit   int
	Offset  int
}

// TimelineRow mewakili satu baris jejak audit.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}
