package state

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/batcom/engine/internal/model"
)

// AOPhase is the AO lifecycle position.
type AOPhase string

const (
	AOIdle    AOPhase = "idle"
	AORunning AOPhase = "running"
	AOEnded   AOPhase = "ended"
)

// maxRetainedAOs bounds the in-memory history of sealed AO records.
const maxRetainedAOs = 3

// Contribution point values per event type.
const (
	pointsCommanderKilled   = 30
	pointsCommanderCaptured = 40
	pointsHVTKilled         = 25
	pointsHVTCaptured       = 35
	pointsTowerJammer       = 20
	pointsDepot             = 15
	pointsSmallObjective    = 5
	pointsProximity         = 10
)

// HVTWeights are the composite player score weights.
type HVTWeights struct {
	Kills         float64
	Contributions float64
	ProximityTime float64
	CaptureEvents float64
}

// DefaultHVTWeights weighs confirmed kills and capture events above
// presence scores.
func DefaultHVTWeights() HVTWeights {
	return HVTWeights{Kills: 2.0, Contributions: 1.0, ProximityTime: 0.5, CaptureEvents: 3.0}
}

// AOConfig tunes the AO manager.
type AOConfig struct {
	Weights HVTWeights
	// TopPlayers and TopGroups size the HVT designation sets.
	TopPlayers int
	TopGroups  int
	// ProximityRadius bounds the nearby-player bonus, capped at 100 m.
	ProximityRadius float64
}

func (c *AOConfig) normalize() {
	if c.Weights == (HVTWeights{}) {
		c.Weights = DefaultHVTWeights()
	}
	if c.TopPlayers <= 0 {
		c.TopPlayers = 3
	}
	if c.TopGroups <= 0 {
		c.TopGroups = 2
	}
	if c.ProximityRadius <= 0 || c.ProximityRadius > 100 {
		c.ProximityRadius = 100
	}
}

// PlayerScore accumulates one player's standing within an AO.
type PlayerScore struct {
	UID           string  `json:"uid"`
	Name          string  `json:"name"`
	Kills         int     `json:"kills"`
	Contributions int     `json:"contributions"`
	ProximityTime float64 `json:"proximity_time"`
	CaptureEvents int     `json:"capture_events"`
	Composite     float64 `json:"composite"`
}

// GroupScore tracks casualties inflicted by one controlled group.
type GroupScore struct {
	GroupID            string `json:"group_id"`
	CasualtiesInflicted int   `json:"casualties_inflicted"`
}

// CycleRecord is one sealed decision cycle.
type CycleRecord struct {
	Cycle       int               `json:"cycle"`
	MissionTime float64           `json:"mission_time"`
	WallTime    time.Time         `json:"wall_time"`
	Commentary  string            `json:"commentary"`
	Accepted    []model.Command   `json:"accepted"`
	Rejected    []string          `json:"rejected"`
	Objectives  []model.Objective `json:"objectives"`
	Usage       model.TokenUsage  `json:"usage"`
}

// AORecord is one area of operations, live or sealed.
type AORecord struct {
	ID          string    `json:"id"`
	WorldName   string    `json:"world_name"`
	MissionName string    `json:"mission_name"`
	Index       int       `json:"index"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`

	Cycles      []CycleRecord           `json:"cycles"`
	TotalOrders int                     `json:"total_orders"`
	Players     map[string]*PlayerScore `json:"players"`
	Groups      map[string]*GroupScore  `json:"groups"`
	Objectives  []model.Objective       `json:"objectives"`
}

// AnalysisData is the sealed-AO report handed back to the host on end_ao.
type AnalysisData struct {
	AO          *AORecord     `json:"ao"`
	TotalCycles int           `json:"total_cycles"`
	TotalOrders int           `json:"total_orders"`
	HVTPlayers  []PlayerScore `json:"hvt_players"`
	HVTGroups   []GroupScore  `json:"hvt_groups"`
}

// AOManager runs the Idle/Running/Ended lifecycle and scores player and
// group contributions for HVT designation. Sealed records are retained in an
// LRU so the next AO can be seeded with an intel summary.
type AOManager struct {
	cfg      AOConfig
	phase    AOPhase
	current  *AORecord
	lastCycle int
	retained *lru.Cache[string, *AORecord]
	manualHVT []string
	logger   *slog.Logger
}

// NewAOManager creates an idle manager.
func NewAOManager(cfg AOConfig, logger *slog.Logger) (*AOManager, error) {
	cfg.normalize()
	retained, err := lru.New[string, *AORecord](maxRetainedAOs)
	if err != nil {
		return nil, err
	}
	return &AOManager{cfg: cfg, phase: AOIdle, retained: retained, logger: logger}, nil
}

// Phase returns the lifecycle position.
func (m *AOManager) Phase() AOPhase { return m.phase }

// Current returns the live AO record, or nil outside Running.
func (m *AOManager) Current() *AORecord {
	if m.phase != AORunning {
		return nil
	}
	return m.current
}

// StartAO opens a fresh AO record. Valid from Idle or Ended only.
func (m *AOManager) StartAO(id, worldName, missionName string, index int) error {
	if m.phase == AORunning {
		return fmt.Errorf("ao %s already running", m.current.ID)
	}
	m.current = &AORecord{
		ID:          id,
		WorldName:   worldName,
		MissionName: missionName,
		Index:       index,
		StartedAt:   time.Now().UTC(),
		Players:     make(map[string]*PlayerScore),
		Groups:      make(map[string]*GroupScore),
	}
	m.phase = AORunning
	m.lastCycle = 0
	m.manualHVT = nil
	m.logger.Info("ao started", "ao", id, "world", worldName, "mission", missionName, "index", index)
	return nil
}

// EndAO seals the running AO and returns its analysis. Valid from Running.
func (m *AOManager) EndAO() (*AnalysisData, error) {
	if m.phase != AORunning {
		return nil, fmt.Errorf("no ao running")
	}
	ao := m.current
	ao.EndedAt = time.Now().UTC()

	analysis := &AnalysisData{
		AO:          ao,
		TotalCycles: len(ao.Cycles),
		TotalOrders: ao.TotalOrders,
		HVTPlayers:  m.topPlayers(ao),
		HVTGroups:   m.topGroups(ao),
	}
	m.retained.Add(ao.ID, ao)
	m.phase = AOEnded
	m.logger.Info("ao ended", "ao", ao.ID,
		"cycles", analysis.TotalCycles, "orders", analysis.TotalOrders,
		"hvt_players", len(analysis.HVTPlayers), "hvt_groups", len(analysis.HVTGroups))
	return analysis, nil
}

// RecordCycle appends a sealed decision cycle. Cycle numbers must be
// strictly increasing within an AO; outside Running the record is dropped.
func (m *AOManager) RecordCycle(rec CycleRecord) error {
	if m.phase != AORunning {
		m.logger.Debug("cycle record dropped outside running ao", "cycle", rec.Cycle)
		return nil
	}
	if rec.Cycle <= m.lastCycle {
		return fmt.Errorf("cycle %d not after %d", rec.Cycle, m.lastCycle)
	}
	m.lastCycle = rec.Cycle
	m.current.Cycles = append(m.current.Cycles, rec)
	m.current.TotalOrders += len(rec.Accepted)
	if len(rec.Objectives) > 0 {
		m.current.Objectives = rec.Objectives
	}
	return nil
}

func (m *AOManager) player(uid, name string) *PlayerScore {
	p := m.current.Players[uid]
	if p == nil {
		p = &PlayerScore{UID: uid, Name: name}
		m.current.Players[uid] = p
	}
	if name != "" {
		p.Name = name
	}
	return p
}

// RecordCasualties folds a snapshot's casualty deltas into kill and group
// scores. Kills by controlled groups against friendly sides count toward
// group HVT standing; player kills are credited by UID.
func (m *AOManager) RecordCasualties(events []model.CasualtyEvent, snap *model.Snapshot) {
	if m.phase != AORunning {
		return
	}
	for _, ev := range events {
		if ev.KillerID == "" {
			continue
		}
		if snap != nil && snap.IsControlledSide(ev.KillerSide) {
			g := m.current.Groups[ev.KillerID]
			if g == nil {
				g = &GroupScore{GroupID: ev.KillerID}
				m.current.Groups[ev.KillerID] = g
			}
			g.CasualtiesInflicted++
			continue
		}
		// Killer on a friendly (player) side: credit the player.
		m.player(ev.KillerID, "").Kills++
	}
}

// RecordProximity adds presence time for players inside an active
// objective's radius, capped by the configured proximity radius.
func (m *AOManager) RecordProximity(snap *model.Snapshot, dt float64) {
	if m.phase != AORunning || snap == nil || dt <= 0 {
		return
	}
	for _, obj := range snap.Objectives {
		if obj.State.Terminal() {
			continue
		}
		radius := obj.Radius
		if radius <= 0 || radius > m.cfg.ProximityRadius {
			radius = m.cfg.ProximityRadius
		}
		for _, pl := range snap.Players {
			if pl.Position.Distance2D(obj.Position) <= radius {
				m.player(pl.UID, pl.Name).ProximityTime += dt
			}
		}
	}
}

// contributionPoints maps an aoProgress event type to its point value.
func contributionPoints(eventType string) (points int, capture bool, err error) {
	switch strings.ToLower(eventType) {
	case "commander_killed":
		return pointsCommanderKilled, true, nil
	case "commander_captured":
		return pointsCommanderCaptured, true, nil
	case "hvt_killed":
		return pointsHVTKilled, true, nil
	case "hvt_captured":
		return pointsHVTCaptured, true, nil
	case "tower_destroyed", "jammer_destroyed":
		return pointsTowerJammer, false, nil
	case "depot_destroyed":
		return pointsDepot, false, nil
	case "small_objective":
		return pointsSmallObjective, false, nil
	default:
		return 0, false, fmt.Errorf("unknown progress event %q", eventType)
	}
}

// RecordProgress credits an objective progress event to a player, with the
// proximity bonus for listed nearby players.
func (m *AOManager) RecordProgress(eventType, playerUID string, nearbyPlayers []string) error {
	if m.phase != AORunning {
		return fmt.Errorf("no ao running")
	}
	points, capture, err := contributionPoints(eventType)
	if err != nil {
		return err
	}
	p := m.player(playerUID, "")
	p.Contributions += points
	if capture {
		p.CaptureEvents++
	}
	for _, uid := range nearbyPlayers {
		if uid == playerUID {
			continue
		}
		m.player(uid, "").Contributions += pointsProximity
	}
	return nil
}

// SetHVT records a manual HVT designation from the host.
func (m *AOManager) SetHVT(uids []string) {
	m.manualHVT = append([]string(nil), uids...)
}

// ManualHVT returns host-designated HVT UIDs for the current AO.
func (m *AOManager) ManualHVT() []string {
	return append([]string(nil), m.manualHVT...)
}

func (m *AOManager) composite(p *PlayerScore) float64 {
	w := m.cfg.Weights
	return w.Kills*float64(p.Kills) +
		w.Contributions*float64(p.Contributions) +
		w.ProximityTime*p.ProximityTime +
		w.CaptureEvents*float64(p.CaptureEvents)
}

func (m *AOManager) topPlayers(ao *AORecord) []PlayerScore {
	scores := make([]PlayerScore, 0, len(ao.Players))
	for _, p := range ao.Players {
		p.Composite = m.composite(p)
		scores = append(scores, *p)
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Composite != scores[j].Composite {
			return scores[i].Composite > scores[j].Composite
		}
		return scores[i].UID < scores[j].UID
	})
	if len(scores) > m.cfg.TopPlayers {
		scores = scores[:m.cfg.TopPlayers]
	}
	return scores
}

func (m *AOManager) topGroups(ao *AORecord) []GroupScore {
	scores := make([]GroupScore, 0, len(ao.Groups))
	for _, g := range ao.Groups {
		scores = append(scores, *g)
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].CasualtiesInflicted != scores[j].CasualtiesInflicted {
			return scores[i].CasualtiesInflicted > scores[j].CasualtiesInflicted
		}
		return scores[i].GroupID < scores[j].GroupID
	})
	if len(scores) > m.cfg.TopGroups {
		scores = scores[:m.cfg.TopGroups]
	}
	return scores
}

// PreviousAOSummary renders the retained AO records as an intel block for
// the first consultation of a new AO. Empty when nothing is retained.
func (m *AOManager) PreviousAOSummary() string {
	keys := m.retained.Keys()
	if len(keys) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("PREVIOUS AO INTEL:\n")
	for _, key := range keys {
		ao, ok := m.retained.Peek(key)
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("- %s (%s/%s): %d cycles, %d orders issued",
			ao.ID, ao.WorldName, ao.MissionName, len(ao.Cycles), ao.TotalOrders))
		hvt := m.topPlayers(ao)
		if len(hvt) > 0 {
			names := make([]string, 0, len(hvt))
			for _, p := range hvt {
				if p.Name != "" {
					names = append(names, p.Name)
				} else {
					names = append(names, p.UID)
				}
			}
			b.WriteString("; high-value targets: " + strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Progress reports the live AO standing for the host progress query.
func (m *AOManager) Progress() (map[string]any, error) {
	if m.phase != AORunning {
		return nil, fmt.Errorf("no ao running")
	}
	ao := m.current
	return map[string]any{
		"ao_id":        ao.ID,
		"cycles":       len(ao.Cycles),
		"total_orders": ao.TotalOrders,
		"players":      len(ao.Players),
		"manual_hvt":   m.ManualHVT(),
	}, nil
}
