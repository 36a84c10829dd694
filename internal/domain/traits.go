package domain

// Card is one sampled trait tuple.
type Card struct {
	Character  string `json:"character"`
	Background string `json:"background"`
	Effect     string `json:"effect"`
	Gear       string `json:"gear"`
}

// TraitPools holds the values each trait category is drawn from. EffectType is
// the trait_type used for the secondary effect in published metadata.
type TraitPools struct {
	Characters  []string
	Backgrounds []string
	Effects     []string
	Gear        []string
	EffectType  string
}

var (
	characters = []string{"Sonic", "Tails", "Knuckles", "Amy"}
	gear       = []string{"Speed Shoes", "Dash Gloves", "Power Ring", "Shield Booster"}
)

// AuraPools is used with a single fixed pack image.
func AuraPools() TraitPools {
	return TraitPools{
		Characters:  characters,
		Backgrounds: []string{"Green Hill", "Chemical Plant", "Sky Sanctuary", "Mystic Cave"},
		Effects:     []string{"Red Glow", "Blue Glow", "Yellow Glow", "Purple Glow"},
		Gear:        gear,
		EffectType:  "Aura",
	}
}

// LightningPools matches the pre-rendered card art, one file per
// character/background/lightning combination.
func LightningPools() TraitPools {
	return TraitPools{
		Characters:  characters,
		Backgrounds: []string{"Green Hill", "Blue Space"},
		Effects:     []string{"Red Lightning", "Blue Lightning"},
		Gear:        gear,
		EffectType:  "Lightning",
	}
}
