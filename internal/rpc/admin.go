package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/batcom/engine/internal/config"
	"github.com/batcom/engine/internal/dispatcher"
	"github.com/batcom/engine/internal/model"
	"github.com/batcom/engine/internal/pairlist"
	"github.com/batcom/engine/internal/state"
	"github.com/batcom/engine/internal/util"
)

// handleAdmin routes one admin command. Args are [name, params, flag]; the
// params payload is a pair list and may be absent for no-argument commands.
func (s *Service) handleAdmin(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 {
		return fail(errors.New("missing admin command name"))
	}
	name := util.CleanBridgeString(e.Args[0])

	params := pairlist.NewMap()
	if len(e.Args) > 1 && util.CleanBridgeString(e.Args[1]) != "" {
		m, err := pairlist.Decode(e.Args[1])
		if err != nil {
			return fail(fmt.Errorf("bad admin params: %w", err))
		}
		params = m
	}
	flag := false
	if len(e.Args) > 2 {
		flag, _ = util.ToBool(e.Args[2])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return fail(errors.New("engine not initialized"))
	}

	resp, err := s.dispatchAdmin(name, params, flag)
	if err != nil {
		s.deps.Logger.Warn("admin command failed", "command", name, "error", err)
		return fail(err)
	}
	return reply(resp)
}

// dispatchAdmin applies one admin command. Commands that fail validate
// without mutating session state.
func (s *Service) dispatchAdmin(name string, p *pairlist.Map, flag bool) (*pairlist.Map, error) {
	ctx := context.Background()

	switch name {
	case "commanderBrief":
		intent, _ := p.String("intent")
		clear, _ := p.Bool("clear_memory")
		s.deps.Engine.SetBrief(intent, clear)
		if clear && s.manager != nil {
			s.manager.ClearCaches(ctx)
		}
		return pairlist.OK(), nil

	case "commanderSides":
		sides, ok := p.StringSlice("sides")
		if !ok {
			return nil, errors.New("sides must be a list of side names")
		}
		if err := s.deps.Engine.SetSides(sides); err != nil {
			return nil, err
		}
		return pairlist.OK(), nil

	case "commanderAllies":
		sides, ok := p.StringSlice("sides")
		if !ok {
			return nil, errors.New("sides must be a list of side names")
		}
		if err := s.deps.Engine.SetAllies(sides); err != nil {
			return nil, err
		}
		return pairlist.OK(), nil

	case "commanderTask":
		obj, err := objectiveFromParams(p)
		if err != nil {
			return nil, err
		}
		if err := s.deps.Engine.InjectObjective(obj); err != nil {
			return nil, err
		}
		s.deps.Engine.Task = p.ToAny()
		return pairlist.OK("objective_id", obj.ID), nil

	case "deployCommander":
		s.deps.Engine.Deployed = flag
		if flag && s.manager != nil {
			s.manager.Redeploy()
		}
		return pairlist.OK("deployed", flag), nil

	case "commanderControlGroups":
		ids, ok := p.StringSlice("group_ids")
		if !ok {
			return nil, errors.New("group_ids must be a list")
		}
		s.deps.Engine.SetControlledGroups(ids)
		return pairlist.OK("controlled", len(ids)), nil

	case "commanderGuardrails":
		if err := s.applyGuardrails(p); err != nil {
			return nil, err
		}
		return pairlist.OK(), nil

	case "setLLMConfig":
		if p.Len() == 0 {
			return nil, errors.New("empty llm config")
		}
		if err := applyLLMConfig(p); err != nil {
			return nil, err
		}
		if err := s.reconfigureLLM(ctx); err != nil {
			return nil, err
		}
		return pairlist.OK(), nil

	case "setLLMApiKey":
		provider, _ := p.String("provider")
		key, _ := p.String("api_key")
		if provider == "" || key == "" {
			return nil, errors.New("provider and api_key are required")
		}
		s.deps.Engine.SetAPIKey(provider, key)
		if err := s.reconfigureLLM(ctx); err != nil {
			return nil, err
		}
		return pairlist.OK(), nil

	case "commanderStartAO":
		aoID, _ := p.String("ao_id")
		if aoID == "" {
			return nil, errors.New("ao_id is required")
		}
		worldName, _ := p.String("world_name")
		missionName, _ := p.String("mission_name")
		if err := s.startAO(aoID, worldName, missionName); err != nil {
			return nil, err
		}
		return pairlist.OK("ao_id", aoID, "ao_index", s.aoIndex), nil

	case "commanderEndAO":
		analysis, err := s.deps.Commander.EndAO()
		if err != nil {
			return nil, err
		}
		hvtPlayers := make([]any, 0, len(analysis.HVTPlayers))
		for _, ps := range analysis.HVTPlayers {
			hvtPlayers = append(hvtPlayers, ps.UID)
		}
		hvtGroups := make([]any, 0, len(analysis.HVTGroups))
		for _, gs := range analysis.HVTGroups {
			hvtGroups = append(hvtGroups, gs.GroupID)
		}
		return pairlist.OK(
			"ao_id", analysis.AO.ID,
			"total_cycles", analysis.TotalCycles,
			"total_orders", analysis.TotalOrders,
			"hvt_players", hvtPlayers,
			"hvt_groups", hvtGroups,
		), nil

	case "commanderSetHVT":
		uids, ok := p.StringSlice("player_uids")
		if !ok {
			return nil, errors.New("player_uids must be a list")
		}
		s.deps.AO.SetHVT(uids)
		return pairlist.OK(), nil

	case "aoProgress":
		eventType, _ := p.String("event_type")
		playerUID, _ := p.String("player_uid")
		if eventType == "" || playerUID == "" {
			return nil, errors.New("event_type and player_uid are required")
		}
		nearby, _ := p.StringSlice("nearby_players")
		if err := s.deps.AO.RecordProgress(eventType, playerUID, nearby); err != nil {
			return nil, err
		}
		return pairlist.OK(), nil

	case "resource_pool_add_asset":
		side, err := sideParam(p)
		if err != nil {
			return nil, err
		}
		assetType, _ := p.String("asset_type")
		classnames, _ := p.StringSlice("classnames")
		max, _ := p.Int("max")
		defenseOnly, _ := p.Bool("defense_only")
		description, _ := p.String("description")
		if err := s.deps.Pool.AddAsset(side, assetType, classnames, max, defenseOnly, description); err != nil {
			return nil, err
		}
		return pairlist.OK(), nil

	case "resource_pool_remove_asset":
		side, err := sideParam(p)
		if err != nil {
			return nil, err
		}
		assetType, _ := p.String("asset_type")
		if err := s.deps.Pool.RemoveAsset(side, assetType); err != nil {
			return nil, err
		}
		return pairlist.OK(), nil

	case "resource_pool_clear_side":
		side, err := sideParam(p)
		if err != nil {
			return nil, err
		}
		s.deps.Pool.ClearSide(side)
		return pairlist.OK(), nil

	case "load_resource_template":
		side, err := sideParam(p)
		if err != nil {
			return nil, err
		}
		template, _ := p.String("template")
		if err := s.deps.Pool.LoadResourceTemplate(template, side); err != nil {
			return nil, err
		}
		return pairlist.OK("template", template), nil

	case "list_resource_templates":
		names := state.ListResourceTemplates()
		out := make([]any, 0, len(names))
		for _, n := range names {
			out = append(out, n)
		}
		return pairlist.OK("templates", out), nil

	case "set_ao_defense_phase":
		active, ok := p.Bool("active")
		if !ok {
			active = flag
		}
		s.deps.Engine.DefensePhase = active
		return pairlist.OK("defense_phase", active), nil

	case "emergencyStop":
		if s.manager != nil {
			s.manager.EmergencyStop(ctx)
		}
		s.deps.Commander.ClearOrders()
		s.deps.Engine.Deployed = false
		return pairlist.OK(), nil

	default:
		return nil, fmt.Errorf("unknown admin command: %s", name)
	}
}

// applyLLMConfig overlays a setLLMConfig record onto the ai section.
func applyLLMConfig(p *pairlist.Map) error {
	for _, key := range p.Keys() {
		if _, ok := p.Child(key); ok {
			return fmt.Errorf("llm config value %s must be a scalar", key)
		}
	}
	config.ApplySection("ai", p)
	return nil
}

func sideParam(p *pairlist.Map) (model.Side, error) {
	raw, _ := p.String("side")
	side, ok := model.NormalizeSide(raw)
	if !ok {
		return side, fmt.Errorf("unknown side %q", raw)
	}
	return side, nil
}
