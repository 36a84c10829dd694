package content_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dom/pack-minter/internal/content"
	"github.com/dom/pack-minter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAssets(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	return dir
}

func TestAssetDirectory_Resolve(t *testing.T) {
	dir := writeAssets(t,
		"Sonic_Green_Hill_Red_Lightning.png",
		"sonic_blue_hill_blue_lightning.png",
		"tails-greenhill-blue-lightning.png",
		"readme.txt",
	)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sonic_green_hill_blue_lightning"), 0o755))

	assets, err := content.NewAssetDirectory(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "Lightning", assets.Pools().EffectType)

	tests := []struct {
		name    string
		card    domain.Card
		want    string
		wantErr error
	}{
		{
			name: "case and separators ignored",
			card: domain.Card{Character: "Sonic", Background: "Green Hill", Effect: "Red Lightning"},
			want: "Sonic_Green_Hill_Red_Lightning.png",
		},
		{
			name: "background alias",
			card: domain.Card{Character: "Sonic", Background: "Blue Space", Effect: "Blue Lightning"},
			want: "sonic_blue_hill_blue_lightning.png",
		},
		{
			name: "dashes",
			card: domain.Card{Character: "Tails", Background: "Green Hill", Effect: "Blue Lightning"},
			want: "tails-greenhill-blue-lightning.png",
		},
		{
			name:    "directories are not assets",
			card:    domain.Card{Character: "Sonic", Background: "Green Hill", Effect: "Blue Lightning"},
			wantErr: domain.ErrNoMatchingAsset,
		},
		{
			name:    "no file",
			card:    domain.Card{Character: "Amy", Background: "Green Hill", Effect: "Red Lightning"},
			wantErr: domain.ErrNoMatchingAsset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset, err := assets.Resolve(tt.card)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, asset.Name)

			data, err := asset.Read()
			require.NoError(t, err)
			assert.Equal(t, []byte(tt.want), data)
		})
	}
}

func TestNewAssetDirectory_Errors(t *testing.T) {
	_, err := content.NewAssetDirectory(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)

	file := filepath.Join(writeAssets(t, "a.png"), "a.png")
	_, err = content.NewAssetDirectory(file, nil)
	assert.Error(t, err)
}

func TestFixedImage(t *testing.T) {
	path := filepath.Join(writeAssets(t, "pack.png"), "pack.png")

	fixed, err := content.NewFixedImage(path)
	require.NoError(t, err)
	assert.Equal(t, "Aura", fixed.Pools().EffectType)

	for _, card := range []domain.Card{{Character: "Sonic"}, {Character: "Amy"}} {
		asset, err := fixed.Resolve(card)
		require.NoError(t, err)
		assert.Equal(t, path, asset.Path)
	}

	_, err = content.NewFixedImage(filepath.Dir(path))
	assert.Error(t, err)
	_, err = content.NewFixedImage(filepath.Join(filepath.Dir(path), "missing.png"))
	assert.Error(t, err)
}
