package domain

import "fmt"

type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityRare      Rarity = "Rare"
	RarityEpic      Rarity = "Epic"
	RarityLegendary Rarity = "Legendary"
)

// Rarities in declaration order. Packs are opened in this order.
var Rarities = []Rarity{RarityCommon, RarityRare, RarityEpic, RarityLegendary}

type RarityCount struct {
	Rarity Rarity `json:"rarity"`
	Count  int    `json:"count"`
}

type PackTier struct {
	Name         string        `json:"name"`
	TotalCards   int           `json:"totalCards"`
	Distribution []RarityCount `json:"distribution"`
}

// Slots expands the distribution into one rarity per card, in mint order.
func (p PackTier) Slots() []Rarity {
	slots := make([]Rarity, 0, p.TotalCards)
	for _, rc := range p.Distribution {
		for i := 0; i < rc.Count; i++ {
			slots = append(slots, rc.Rarity)
		}
	}
	return slots
}

var packTiers = []PackTier{
	{
		Name:       "Bronze",
		TotalCards: 3,
		Distribution: []RarityCount{
			{Rarity: RarityCommon, Count: 2},
			{Rarity: RarityRare, Count: 1},
		},
	},
	{
		Name:       "Silver",
		TotalCards: 5,
		Distribution: []RarityCount{
			{Rarity: RarityCommon, Count: 3},
			{Rarity: RarityRare, Count: 1},
			{Rarity: RarityEpic, Count: 1},
		},
	},
	{
		Name:       "Gold",
		TotalCards: 7,
		Distribution: []RarityCount{
			{Rarity: RarityCommon, Count: 3},
			{Rarity: RarityRare, Count: 2},
			{Rarity: RarityEpic, Count: 1},
			{Rarity: RarityLegendary, Count: 1},
		},
	},
}

// ResolvePackTier looks up a tier by its exact, case-sensitive name.
func ResolvePackTier(name string) (PackTier, error) {
	for _, tier := range packTiers {
		if tier.Name == name {
			return tier.clone(), nil
		}
	}
	return PackTier{}, fmt.Errorf("%w: %s", ErrUnknownPackTier, name)
}

func PackTiers() []PackTier {
	tiers := make([]PackTier, len(packTiers))
	for i, tier := range packTiers {
		tiers[i] = tier.clone()
	}
	return tiers
}

func (p PackTier) clone() PackTier {
	p.Distribution = append([]RarityCount(nil), p.Distribution...)
	return p
}
