// Package config persists the sdbridge Config across reboots as TOML,
// using github.com/pelletier/go-toml/v2.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// fileDoc mirrors interfaces.Config's fields with toml tags; kept separate
// from interfaces.Config so the wire/on-disk shape can evolve (field
// renames, added defaults) without touching the collaborator interface.
type fileDoc struct {
	DevName      string `toml:"dev_name"`
	StaSSID      string `toml:"sta_ssid"`
	StaPSK       string `toml:"sta_psk"`
	WebPort      int    `toml:"web_port"`
	WifiBootMode string `toml:"wifi_boot_mode"`
}

// TomlStore is a ConfigStore backed by a single TOML file on disk.
type TomlStore struct {
	path string
}

// NewTomlStore creates a store reading/writing path.
func NewTomlStore(path string) *TomlStore {
	return &TomlStore{path: path}
}

// Load implements interfaces.ConfigStore. A missing file yields the zero
// Config with WebPort defaulted to 80, matching the out-of-the-box
// configuration a fresh bridge boots with.
func (s *TomlStore) Load() (interfaces.Config, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return interfaces.Config{WebPort: 80}, nil
	}
	if err != nil {
		return interfaces.Config{}, fmt.Errorf("config: read %s: %w", s.path, err)
	}

	var doc fileDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return interfaces.Config{}, fmt.Errorf("config: parse %s: %w", s.path, err)
	}

	return interfaces.Config{
		DevName:      doc.DevName,
		StaSSID:      doc.StaSSID,
		StaPSK:       doc.StaPSK,
		WebPort:      doc.WebPort,
		WifiBootMode: doc.WifiBootMode,
	}, nil
}

// Save implements interfaces.ConfigStore.
func (s *TomlStore) Save(cfg interfaces.Config) error {
	doc := fileDoc{
		DevName:      cfg.DevName,
		StaSSID:      cfg.StaSSID,
		StaPSK:       cfg.StaPSK,
		WebPort:      cfg.WebPort,
		WifiBootMode: cfg.WifiBootMode,
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", s.path, err)
	}
	return nil
}

var _ interfaces.ConfigStore = (*TomlStore)(nil)
