package storage

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/playperu/territories/internal/game"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	AdminPin        string        `yaml:"adminPin"`
	Geometry        string        `yaml:"geometry"`
	MapMode         string        `yaml:"mapMode"`
	IDPrefix        string        `yaml:"idPrefix"`
	ClaimStartDelay time.Duration `yaml:"claimStartDelay"`
	SimpleMap       struct {
		Width  float64 `yaml:"width"`
		Height float64 `yaml:"height"`
	} `yaml:"simpleMap"`
	Teams []struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Color string `yaml:"color"`
		Pin   string `yaml:"pin"`
	} `yaml:"teams"`
}

// LoadSeed reads the seed from path, or the built-in seed when path is empty.
func LoadSeed(path string) (game.Seed, error) {
	raw := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return game.Seed{}, err
		}
		raw = b
	}
	return parseSeed(raw)
}

func parseSeed(raw []byte) (game.Seed, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return game.Seed{}, fmt.Errorf("seed: %w", err)
	}
	if len(f.Teams) == 0 {
		return game.Seed{}, fmt.Errorf("seed: no teams")
	}
	if f.AdminPin == "" {
		return game.Seed{}, fmt.Errorf("seed: adminPin is required")
	}
	seen := make(map[string]bool, len(f.Teams))
	seed := game.Seed{
		AdminPin:          f.AdminPin,
		Geometry:          f.Geometry,
		MapMode:           f.MapMode,
		IDPrefix:          f.IDPrefix,
		SimpleMap:         game.SimpleMap{Width: f.SimpleMap.Width, Height: f.SimpleMap.Height},
		ClaimStartDelayMs: f.ClaimStartDelay.Milliseconds(),
	}
	for _, t := range f.Teams {
		if t.ID == "" || t.Pin == "" {
			return game.Seed{}, fmt.Errorf("seed: team %q needs an id and a pin", t.Name)
		}
		if seen[t.ID] {
			return game.Seed{}, fmt.Errorf("seed: duplicate team id %q", t.ID)
		}
		seen[t.ID] = true
		seed.Teams = append(seed.Teams, game.Team{ID: t.ID, Name: t.Name, Color: t.Color, Pin: t.Pin})
	}
	return seed, nil
}
