// Package evaluate classifies objective posture from a world snapshot and
// computes dynamic priorities. Evaluation is a pure function of its inputs.
package evaluate

import (
	"sort"

	"github.com/batcom/engine/internal/model"
)

// Posture is the derived tactical state of an objective.
type Posture string

const (
	Secured    Posture = "secured"
	Threatened Posture = "threatened"
	Contested  Posture = "contested"
	Undefended Posture = "undefended"
)

// priority modifiers per posture
var modifiers = map[Posture]float64{
	Secured:    0.8,
	Undefended: 1.0,
	Contested:  1.2,
	Threatened: 1.5,
}

// ObjectiveEval is the evaluation record for one objective.
type ObjectiveEval struct {
	Objective       model.Objective
	Posture         Posture
	DynamicPriority float64
	FriendlyCount   int
	EnemyCount      int
}

// Evaluate classifies each objective and orders the result by tactical
// urgency: dynamic priority descending, then smaller radius, then ID.
func Evaluate(snap *model.Snapshot, objectives []model.Objective) []ObjectiveEval {
	out := make([]ObjectiveEval, 0, len(objectives))
	for _, obj := range objectives {
		out = append(out, evaluateOne(snap, obj))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DynamicPriority != b.DynamicPriority {
			return a.DynamicPriority > b.DynamicPriority
		}
		if a.Objective.Radius != b.Objective.Radius {
			return a.Objective.Radius < b.Objective.Radius
		}
		return a.Objective.ID < b.Objective.ID
	})
	return out
}

func evaluateOne(snap *model.Snapshot, obj model.Objective) ObjectiveEval {
	var friendly, enemy int
	for _, g := range snap.Groups {
		if g.Position.Distance2D(obj.Position) > obj.Radius {
			continue
		}
		switch {
		case snap.IsControlledSide(g.Side):
			friendly += g.UnitCount
		case snap.IsFriendlySide(g.Side) || (!g.IsControlled && g.IsFriendly):
			// allies count toward neither side of the ratio
		default:
			enemy += g.UnitCount
		}
	}

	posture := classify(friendly, enemy)

	dyn := obj.Priority * modifiers[posture]
	limit := 100.0
	if obj.Priority <= 10 {
		limit = 10
	}
	if dyn > limit {
		dyn = limit
	}
	if dyn < 0 {
		dyn = 0
	}

	return ObjectiveEval{
		Objective:       obj,
		Posture:         posture,
		DynamicPriority: dyn,
		FriendlyCount:   friendly,
		EnemyCount:      enemy,
	}
}

// classify applies the posture rules in order.
func classify(friendly, enemy int) Posture {
	switch {
	case enemy == 0 && friendly > 0:
		return Secured
	case enemy > 0 && enemy >= 2*friendly:
		return Threatened
	case enemy > 0:
		return Contested
	default:
		return Undefended
	}
}
