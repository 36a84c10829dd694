package service

import (
	"math/rand/v2"
	"sync"

	"github.com/dom/pack-minter/internal/domain"
)

// TraitSampler draws each trait uniformly and independently. Traits are
// cosmetic, so a seeded PCG is enough.
type TraitSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewTraitSampler(seed1, seed2 uint64) *TraitSampler {
	return &TraitSampler{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewRandomTraitSampler seeds from the runtime's random source.
func NewRandomTraitSampler() *TraitSampler {
	return NewTraitSampler(rand.Uint64(), rand.Uint64())
}

func (s *TraitSampler) Sample(pools domain.TraitPools) domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Card{
		Character:  pick(s.rng, pools.Characters),
		Background: pick(s.rng, pools.Backgrounds),
		Effect:     pick(s.rng, pools.Effects),
		Gear:       pick(s.rng, pools.Gear),
	}
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.IntN(len(pool))]
}
