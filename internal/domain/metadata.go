package domain

import "fmt"

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// CardMetadata is the ERC-721 metadata document published for each token.
// Field order here is the serialized order.
type CardMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

func BuildMetadata(collection string, tokenID uint64, packType string, card Card, effectType string, rarity Rarity, imageURI string) CardMetadata {
	return CardMetadata{
		Name:        fmt.Sprintf("%s #%d", collection, tokenID),
		Description: fmt.Sprintf("A %s pack Sonic trading card NFT (token %d).", packType, tokenID),
		Image:       imageURI,
		Attributes: []Attribute{
			{TraitType: "Character", Value: card.Character},
			{TraitType: "Background", Value: card.Background},
			{TraitType: effectType, Value: card.Effect},
			{TraitType: "Gear", Value: card.Gear},
			{TraitType: "Rarity", Value: string(rarity)},
		},
	}
}

// Attribute returns the value of the named trait, or "" if absent.
func (m CardMetadata) Attribute(traitType string) string {
	for _, a := range m.Attributes {
		if a.TraitType == traitType {
			return a.Value
		}
	}
	return ""
}
