package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"

	"markettraveler/internal/market"
	"markettraveler/internal/traveler"
)

// Config is the full run configuration, loaded from a single yaml file.
type Config struct {
	Version  int    `yaml:"version"`
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`

	// BridgeURL is the websocket endpoint of the in-game bridge.
	BridgeURL string `yaml:"bridge_url"`
	// ServerAddr is the listen address of the local status server. Empty
	// disables it.
	ServerAddr string `yaml:"server_addr"`
	// HistoryPath is the sqlite purchase history file. Empty disables
	// history recording.
	HistoryPath string `yaml:"history_path"`

	// StepMode pauses the shopper before every transition until a step is
	// requested through the status server.
	StepMode bool `yaml:"step_mode"`

	// Worlds is the explicit visit order. When empty, Datacenter must be
	// set and the world list is resolved through the bridge at run start.
	Worlds     []string `yaml:"worlds,omitempty"`
	Datacenter string   `yaml:"datacenter,omitempty"`

	ShoppingList []ShoppingItemConfig `yaml:"shopping_list"`

	Timings TimingsConfig `yaml:"timings"`

	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// ShoppingItemConfig is one configured shopping list entry. ItemName is what
// gets typed into the search box; ItemID is the catalog id used to verify
// result windows and count inventory.
type ShoppingItemConfig struct {
	ItemName       string `yaml:"item_name"`
	ItemID         uint32 `yaml:"item_id"`
	TargetQuantity int    `yaml:"target_quantity"`
	MaxUnitPrice   int    `yaml:"max_unit_price"`
	// Filter is an optional listing expression over UnitPrice and Quantity,
	// for example "Quantity >= 10 && UnitPrice * Quantity <= 50000".
	Filter string `yaml:"filter,omitempty"`
}

// TimingsConfig overrides the shopper's pacing. Zero values keep defaults.
type TimingsConfig struct {
	SearchOpenSettleMs     int `yaml:"search_open_settle_ms"`
	TextSearchSettleMs     int `yaml:"text_search_settle_ms"`
	ResultOpenSettleMs     int `yaml:"result_open_settle_ms"`
	PriceSettleMs          int `yaml:"price_settle_ms"`
	ConfirmOpenSettleMs    int `yaml:"confirm_open_settle_ms"`
	ConfirmReadSettleMs    int `yaml:"confirm_read_settle_ms"`
	PurchaseCommitSettleMs int `yaml:"purchase_commit_settle_ms"`
	CleanupSettleMs        int `yaml:"cleanup_settle_ms"`
	RetryIntervalMs        int `yaml:"retry_interval_ms"`
	MaxRetries             int `yaml:"max_retries"`
	ItemTimeoutMs          int `yaml:"item_timeout_ms"`
	PurchaseTimeoutMs      int `yaml:"purchase_timeout_ms"`
}

type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

func defaults() Config {
	return Config{
		Version:     1,
		LogLevel:    "info",
		BridgeURL:   "ws://127.0.0.1:7357/bridge",
		ServerAddr:  "127.0.0.1:7358",
		HistoryPath: "history.db",
	}
}

// Load reads the configuration at path, applying defaults for anything the
// file does not set.
func Load(path string) (Config, error) {
	cfg := defaults()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Worlds) == 0 && strings.TrimSpace(c.Datacenter) == "" {
		return fmt.Errorf("either worlds or datacenter must be set")
	}
	if len(c.ShoppingList) == 0 {
		return fmt.Errorf("shopping_list must not be empty")
	}

	seen := map[uint32]bool{}
	for i, item := range c.ShoppingList {
		if strings.TrimSpace(item.ItemName) == "" {
			return fmt.Errorf("shopping_list[%d] item_name must not be empty", i)
		}
		if item.ItemID == 0 {
			return fmt.Errorf("shopping_list[%d] item_id must not be zero", i)
		}
		if seen[item.ItemID] {
			return fmt.Errorf("shopping_list[%d] duplicate item_id %d", i, item.ItemID)
		}
		seen[item.ItemID] = true
		if item.TargetQuantity <= 0 {
			return fmt.Errorf("shopping_list[%d] target_quantity must be > 0", i)
		}
		if item.MaxUnitPrice <= 0 {
			return fmt.Errorf("shopping_list[%d] max_unit_price must be > 0", i)
		}
		if _, err := market.CompileListingFilter(item.Filter); err != nil {
			return fmt.Errorf("shopping_list[%d] filter: %w", i, err)
		}
	}

	if c.Timings.MaxRetries < 0 {
		return fmt.Errorf("timings.max_retries must be >= 0")
	}

	if c.Discord.Enabled && (c.Discord.Token == "" || c.Discord.ChannelID == "") {
		return fmt.Errorf("discord enabled but token or channel_id missing")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram enabled but token or chat_id missing")
	}
	return nil
}

// Save writes the configuration back to path, keeping a .bkp copy of the
// previous file.
func Save(cfg Config, path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := cp.Copy(path, path+".bkp"); err != nil {
			return fmt.Errorf("backing up previous config: %w", err)
		}
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// MarketTimings converts the configured overrides into shopper timings,
// keeping defaults for zero values.
func (t TimingsConfig) MarketTimings() market.Timings {
	out := market.DefaultTimings()

	ms := func(dst *time.Duration, v int) {
		if v > 0 {
			*dst = time.Duration(v) * time.Millisecond
		}
	}
	ms(&out.SearchOpenSettle, t.SearchOpenSettleMs)
	ms(&out.TextSearchSettle, t.TextSearchSettleMs)
	ms(&out.ResultOpenSettle, t.ResultOpenSettleMs)
	ms(&out.PriceSettle, t.PriceSettleMs)
	ms(&out.ConfirmOpenSettle, t.ConfirmOpenSettleMs)
	ms(&out.ConfirmReadSettle, t.ConfirmReadSettleMs)
	ms(&out.PurchaseCommitSettle, t.PurchaseCommitSettleMs)
	ms(&out.CleanupSettle, t.CleanupSettleMs)
	ms(&out.RetryInterval, t.RetryIntervalMs)
	ms(&out.ItemTimeout, t.ItemTimeoutMs)
	ms(&out.PurchaseTimeout, t.PurchaseTimeoutMs)
	if t.MaxRetries > 0 {
		out.MaxRetries = t.MaxRetries
	}
	return out
}

// Items converts the configured shopping list into run entries. Filters are
// compiled here; Validate has already established they compile.
func (c Config) Items() ([]*traveler.ShoppingItem, error) {
	out := make([]*traveler.ShoppingItem, 0, len(c.ShoppingList))
	for _, ic := range c.ShoppingList {
		filter, err := market.CompileListingFilter(ic.Filter)
		if err != nil {
			return nil, fmt.Errorf("item %q filter: %w", ic.ItemName, err)
		}
		out = append(out, &traveler.ShoppingItem{
			ItemID:       ic.ItemID,
			TargetQty:    ic.TargetQuantity,
			MaxUnitPrice: ic.MaxUnitPrice,
			Filter:       filter,
		})
	}
	return out, nil
}

// ItemNames maps configured item ids to their cleaned display names, used as
// a catalog fallback when the bridge cannot resolve a name.
func (c Config) ItemNames() map[uint32]string {
	out := make(map[uint32]string, len(c.ShoppingList))
	for _, ic := range c.ShoppingList {
		out[ic.ItemID] = market.CleanDisplayName(ic.ItemName)
	}
	return out
}
