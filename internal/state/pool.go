// Package state holds the per-session engine state: commander settings,
// the resource pool, and the AO lifecycle with its analysis records.
package state

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/batcom/engine/internal/model"
	"github.com/batcom/engine/internal/util"
)

// Asset is one spawnable asset type for a side.
type Asset struct {
	Classnames  []string `json:"classnames"`
	Max         int      `json:"max"`
	Used        int      `json:"used"`
	DefenseOnly bool     `json:"defense_only,omitempty"`
	Description string   `json:"description,omitempty"`
	// Class drives the vehicle check; derived from the asset type tag when
	// the guardrails record does not name one.
	Class model.TacticalClass `json:"class,omitempty"`
}

// ResourcePool tracks remaining spawn capacity per (side, asset type). It
// satisfies the sandbox pool contract.
type ResourcePool struct {
	mu     sync.Mutex
	assets map[model.Side]map[string]*Asset
	logger *slog.Logger
}

// NewResourcePool creates an empty pool.
func NewResourcePool(logger *slog.Logger) *ResourcePool {
	return &ResourcePool{
		assets: make(map[model.Side]map[string]*Asset),
		logger: logger,
	}
}

// classForAsset derives the tactical class from an asset type tag like
// "armor_platoon" or "transport_helicopter".
func classForAsset(assetType string) model.TacticalClass {
	t := strings.ToLower(assetType)
	switch {
	case strings.Contains(t, "heli") || strings.Contains(t, "rotary"):
		return model.ClassAirRotary
	case strings.Contains(t, "jet") || strings.Contains(t, "plane") || strings.Contains(t, "cas") || strings.Contains(t, "fixed"):
		return model.ClassAirFixed
	case strings.Contains(t, "armor") || strings.Contains(t, "tank"):
		return model.ClassArmor
	case strings.Contains(t, "mech") || strings.Contains(t, "apc") || strings.Contains(t, "ifv"):
		return model.ClassMechanized
	case strings.Contains(t, "motor") || strings.Contains(t, "truck") || strings.Contains(t, "car") || strings.Contains(t, "transport"):
		return model.ClassMotorized
	case strings.Contains(t, "boat") || strings.Contains(t, "naval"):
		return model.ClassNaval
	default:
		return model.ClassInfantry
	}
}

// LoadGuardrails replaces the pool contents from a guardrails resource_pool
// record: side → asset_type → {classnames, max, defense_only?, description?}.
func (p *ResourcePool) LoadGuardrails(pool map[string]map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	assets := make(map[model.Side]map[string]*Asset)
	for sideName, entries := range pool {
		side, ok := model.NormalizeSide(sideName)
		if !ok {
			return fmt.Errorf("resource pool: unknown side %q", sideName)
		}
		assets[side] = make(map[string]*Asset)
		for assetType, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("resource pool: asset %s/%s is not a record", sideName, assetType)
			}
			a := &Asset{Class: classForAsset(assetType)}
			if cn, ok := entry["classnames"].([]any); ok {
				for _, c := range cn {
					if s, ok := util.ToString(c); ok {
						a.Classnames = append(a.Classnames, s)
					}
				}
			}
			if v, ok := entry["max"]; ok {
				a.Max, _ = util.ToInt(v)
			}
			// max 0 is a legal way to list an asset while refusing every
			// deploy of it
			if a.Max < 0 {
				return fmt.Errorf("resource pool: asset %s/%s has negative capacity", sideName, assetType)
			}
			if v, ok := entry["defense_only"]; ok {
				a.DefenseOnly, _ = util.ToBool(v)
			}
			if v, ok := entry["description"]; ok {
				a.Description, _ = util.ToString(v)
			}
			if v, ok := entry["class"]; ok {
				if s, ok := util.ToString(v); ok {
					a.Class = model.NormalizeClass(s)
				}
			}
			assets[side][strings.ToLower(assetType)] = a
		}
	}
	p.assets = assets
	return nil
}

// AddAsset registers or tops up an asset type for a side.
func (p *ResourcePool) AddAsset(side model.Side, assetType string, classnames []string, max int, defenseOnly bool, description string) error {
	if max <= 0 {
		return fmt.Errorf("asset %s/%s: max must be positive", side, assetType)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(assetType)
	if p.assets[side] == nil {
		p.assets[side] = make(map[string]*Asset)
	}
	if a, ok := p.assets[side][key]; ok {
		a.Max += max
		if len(classnames) > 0 {
			a.Classnames = classnames
		}
		return nil
	}
	p.assets[side][key] = &Asset{
		Classnames:  classnames,
		Max:         max,
		DefenseOnly: defenseOnly,
		Description: description,
		Class:       classForAsset(key),
	}
	return nil
}

// RemoveAsset deletes an asset type from a side.
func (p *ResourcePool) RemoveAsset(side model.Side, assetType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(assetType)
	if p.assets[side] == nil || p.assets[side][key] == nil {
		return fmt.Errorf("asset %s/%s not in pool", side, assetType)
	}
	delete(p.assets[side], key)
	return nil
}

// ClearSide removes every asset for a side.
func (p *ResourcePool) ClearSide(side model.Side) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assets, side)
}

func (p *ResourcePool) lookup(side model.Side, assetType string) *Asset {
	if p.assets[side] == nil {
		return nil
	}
	return p.assets[side][strings.ToLower(assetType)]
}

// Remaining returns the unreserved capacity for (side, assetType).
func (p *ResourcePool) Remaining(side model.Side, assetType string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.lookup(side, assetType)
	if a == nil {
		return 0, false
	}
	return a.Max - a.Used, true
}

// DefenseOnly reports whether the asset is restricted to the defense phase.
func (p *ResourcePool) DefenseOnly(side model.Side, assetType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.lookup(side, assetType)
	return a != nil && a.DefenseOnly
}

// IsVehicle reports whether the asset spawns as a vehicle group.
func (p *ResourcePool) IsVehicle(side model.Side, assetType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.lookup(side, assetType)
	return a != nil && a.Class.IsVehicle()
}

// Reserve consumes one unit of capacity.
func (p *ResourcePool) Reserve(side model.Side, assetType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.lookup(side, assetType)
	if a == nil {
		return fmt.Errorf("asset %s/%s not in pool", side, assetType)
	}
	if a.Used >= a.Max {
		return fmt.Errorf("asset %s/%s exhausted", side, assetType)
	}
	a.Used++
	return nil
}

// Classnames returns the spawn classnames configured for the asset.
func (p *ResourcePool) Classnames(side model.Side, assetType string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.lookup(side, assetType)
	if a == nil {
		return nil
	}
	out := make([]string, len(a.Classnames))
	copy(out, a.Classnames)
	return out
}

// Describe renders the pool as nested maps for admin responses, sides and
// asset types in stable order.
func (p *ResourcePool) Describe() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]any, len(p.assets))
	sides := make([]model.Side, 0, len(p.assets))
	for s := range p.assets {
		sides = append(sides, s)
	}
	sort.Slice(sides, func(i, j int) bool { return sides[i] < sides[j] })
	for _, s := range sides {
		entries := make(map[string]any, len(p.assets[s]))
		for name, a := range p.assets[s] {
			entries[name] = map[string]any{
				"classnames":   append([]string(nil), a.Classnames...),
				"max":          a.Max,
				"used":         a.Used,
				"remaining":    a.Max - a.Used,
				"defense_only": a.DefenseOnly,
				"description":  a.Description,
				"class":        string(a.Class),
			}
		}
		out[string(s)] = entries
	}
	return out
}
