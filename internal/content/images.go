package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/dom/pack-minter/internal/domain"
)

// Asset is an image file on local disk chosen for a card.
type Asset struct {
	Path string
	Name string
}

func (a Asset) Read() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read asset %s: %v", domain.ErrPublish, a.Name, err)
	}
	return data, nil
}

// FixedImage uses one image for every card.
type FixedImage struct {
	asset Asset
	pools domain.TraitPools
}

func NewFixedImage(path string) (*FixedImage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("fixed image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("fixed image: %s is a directory", path)
	}
	return &FixedImage{
		asset: Asset{Path: path, Name: filepath.Base(path)},
		pools: domain.AuraPools(),
	}, nil
}

func (f *FixedImage) Pools() domain.TraitPools { return f.pools }

func (f *FixedImage) Resolve(domain.Card) (Asset, error) { return f.asset, nil }

// DefaultAssetAliases maps trait values to the key used in pre-rendered file
// names when the two differ.
var DefaultAssetAliases = map[string]string{
	"Blue Space": "blue_hill",
}

// AssetDirectory picks a pre-rendered image whose file name contains the
// card's character, background and effect.
type AssetDirectory struct {
	dir     string
	aliases map[string]string
	pools   domain.TraitPools
}

func NewAssetDirectory(dir string, aliases map[string]string) (*AssetDirectory, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("asset directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset directory: %s is not a directory", dir)
	}
	if aliases == nil {
		aliases = DefaultAssetAliases
	}
	return &AssetDirectory{dir: dir, aliases: aliases, pools: domain.LightningPools()}, nil
}

func (d *AssetDirectory) Pools() domain.TraitPools { return d.pools }

func (d *AssetDirectory) Resolve(card domain.Card) (Asset, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: list %s: %v", domain.ErrPublish, d.dir, err)
	}

	keys := []string{d.key(card.Character), d.key(card.Background), d.key(card.Effect)}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if matchesAll(normalize(name), keys) {
			return Asset{Path: filepath.Join(d.dir, name), Name: name}, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: %s, %s, %s", domain.ErrNoMatchingAsset, card.Character, card.Background, card.Effect)
}

func (d *AssetDirectory) key(value string) string {
	if alias, ok := d.aliases[value]; ok {
		return normalize(alias)
	}
	return normalize(value)
}

func matchesAll(name string, keys []string) bool {
	for _, k := range keys {
		if !strings.Contains(name, k) {
			return false
		}
	}
	return true
}

// normalize lowercases and drops everything but letters and digits, so
// "Green Hill", "green_hill" and "GreenHill" compare equal.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
