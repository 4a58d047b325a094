package state

import (
	"fmt"
	"sort"

	"github.com/batcom/engine/internal/model"
)

// templateAsset is one pool entry a template contributes.
type templateAsset struct {
	assetType   string
	classnames  []string
	max         int
	defenseOnly bool
	description string
}

// resourceTemplates are the built-in pool presets mission makers can load
// instead of hand-writing a guardrails pool. Classnames follow the vanilla
// faction sets; missions with modded factions override via guardrails.
var resourceTemplates = map[string][]templateAsset{
	"motorized_east": {
		{assetType: "infantry_squad", classnames: []string{"O_Soldier_F", "O_Soldier_AR_F", "O_Soldier_GL_F", "O_medic_F"}, max: 8, description: "rifle squad"},
		{assetType: "motorized_patrol", classnames: []string{"O_MRAP_02_hmg_F"}, max: 4, description: "armed MRAP with crew"},
		{assetType: "transport_truck", classnames: []string{"O_Truck_03_transport_F"}, max: 3, description: "troop transport"},
	},
	"mechanized_east": {
		{assetType: "infantry_squad", classnames: []string{"O_Soldier_F", "O_Soldier_AR_F", "O_Soldier_LAT_F", "O_medic_F"}, max: 6, description: "rifle squad"},
		{assetType: "mechanized_section", classnames: []string{"O_APC_Wheeled_02_rcws_v2_F"}, max: 3, description: "wheeled APC with dismounts"},
		{assetType: "armor_platoon", classnames: []string{"O_MBT_02_cannon_F"}, max: 2, defenseOnly: true, description: "main battle tank, defense phase only"},
	},
	"air_assault_east": {
		{assetType: "infantry_squad", classnames: []string{"O_Soldier_F", "O_Soldier_AR_F", "O_Soldier_GL_F"}, max: 6, description: "air assault squad"},
		{assetType: "transport_helicopter", classnames: []string{"O_Heli_Light_02_unarmed_F"}, max: 2, description: "light transport helicopter"},
		{assetType: "attack_helicopter", classnames: []string{"O_Heli_Attack_02_dynamicLoadout_F"}, max: 1, defenseOnly: true, description: "gunship, defense phase only"},
	},
	"defense_garrison": {
		{assetType: "infantry_squad", classnames: []string{"O_Soldier_F", "O_Soldier_AR_F", "O_medic_F"}, max: 10, description: "garrison squad"},
		{assetType: "static_weapons_team", classnames: []string{"O_Soldier_F", "O_HMG_01_high_F"}, max: 4, defenseOnly: true, description: "HMG team"},
		{assetType: "motorized_patrol", classnames: []string{"O_MRAP_02_hmg_F"}, max: 2, description: "armed MRAP"},
	},
}

// ListResourceTemplates returns the built-in template names in stable order.
func ListResourceTemplates() []string {
	names := make([]string, 0, len(resourceTemplates))
	for name := range resourceTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadResourceTemplate adds a template's assets to the pool for the given
// side. Existing asset types are topped up.
func (p *ResourcePool) LoadResourceTemplate(name string, side model.Side) error {
	assets, ok := resourceTemplates[name]
	if !ok {
		return fmt.Errorf("unknown resource template %q", name)
	}
	for _, a := range assets {
		if err := p.AddAsset(side, a.assetType, a.classnames, a.max, a.defenseOnly, a.description); err != nil {
			return err
		}
	}
	return nil
}
