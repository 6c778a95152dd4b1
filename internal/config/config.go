package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// Config holds all server configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	JWT         JWTConfig         `yaml:"jwt"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Depot       DepotConfig       `yaml:"depot"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host         string  `yaml:"host"`
	Port         int     `yaml:"port"`
	TickRate     int     `yaml:"tick_rate"`     // Hz
	CommandRate  float64 `yaml:"command_rate"`  // client commands per second
	CommandBurst int     `yaml:"command_burst"` // commands allowed in a burst
}

// JWTConfig holds JWT authentication settings
type JWTConfig struct {
	Issuer              string `yaml:"issuer"`
	PublicKeyURL        string `yaml:"public_key_url"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours"`
	BlacklistCacheSecs  int    `yaml:"blacklist_cache_seconds"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	BlacklistPrefix string `yaml:"blacklist_prefix"`
}

// LoggingConfig mirrors the rotating file logger's settings
type LoggingConfig struct {
	Directory string            `yaml:"directory"`
	File      string            `yaml:"file"`
	Size      int               `yaml:"size"`
	Count     int               `yaml:"count"`
	Console   bool              `yaml:"console"`
	Levels    map[string]string `yaml:"levels"`
}

// Persistence backends
const (
	BackendNone    = "none"
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendLevelDB = "leveldb"
)

// PersistenceConfig selects where storage snapshots are written
type PersistenceConfig struct {
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`   // leveldb directory
	Prefix          string `yaml:"prefix"` // key prefix for snapshots
	AutosaveSeconds int    `yaml:"autosave_seconds"`
}

// DepotConfig describes the items and storages of the simulation
type DepotConfig struct {
	DeliveryTicks int              `yaml:"delivery_ticks"`
	Items         []storage.Item   `yaml:"items"`
	Global        StorageConfig    `yaml:"global"`
	StartItems    []QuantityConfig `yaml:"start_items"`
	Stores        []StorageConfig  `yaml:"stores"`
	Storages      []StorageConfig  `yaml:"storages"`
	Recipes       []RecipeConfig   `yaml:"recipes"`
	Modifiers     []ModifierConfig `yaml:"modifiers"`
}

// StorageConfig describes one storage and its capacity policy
type StorageConfig struct {
	ID         string           `yaml:"id"`
	Owner      string           `yaml:"owner"`
	Mode       storage.Mode     `yaml:"mode"`
	Capacity   int              `yaml:"capacity"`
	StackCount int              `yaml:"stack_count"`
	Capacities []QuantityConfig `yaml:"capacities"`
	Store      string           `yaml:"store"` // store id, Store mode only
	Orders     []OrderConfig    `yaml:"orders"`
}

// QuantityConfig names an item by key together with an amount
type QuantityConfig struct {
	Item     string `yaml:"item"`
	Quantity int    `yaml:"quantity"`
}

// OrderConfig is a standing storage order
type OrderConfig struct {
	Item  string            `yaml:"item"`
	Mode  storage.OrderMode `yaml:"mode"`
	Ratio float64           `yaml:"ratio"`
}

// RecipeConfig describes a production recipe
type RecipeConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Category string         `yaml:"category"`
	Inputs   []InputConfig  `yaml:"inputs"`
	Outputs  []OutputConfig `yaml:"outputs"`
	Duration time.Duration  `yaml:"duration"`
}

// InputConfig is a recipe input; tools are required but not consumed
type InputConfig struct {
	Item     string `yaml:"item"`
	Quantity int    `yaml:"quantity"`
	Tool     bool   `yaml:"tool"`
}

// OutputConfig is a recipe output
type OutputConfig struct {
	Item        string  `yaml:"item"`
	Quantity    int     `yaml:"quantity"`
	Probability float64 `yaml:"probability"`
}

// ModifierConfig sets production efficiency for one storage
type ModifierConfig struct {
	Storage     string  `yaml:"storage"`
	InputCost   float64 `yaml:"input_cost"`
	OutputYield float64 `yaml:"output_yield"`
	TimeSpeed   float64 `yaml:"time_speed"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration, applies defaults and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.TickRate == 0 {
		cfg.Server.TickRate = 20
	}
	if cfg.Server.CommandRate == 0 {
		cfg.Server.CommandRate = 20
	}
	if cfg.Server.CommandBurst == 0 {
		cfg.Server.CommandBurst = 40
	}
	if cfg.JWT.PublicKeyRefreshHrs == 0 {
		cfg.JWT.PublicKeyRefreshHrs = 24
	}
	if cfg.JWT.BlacklistCacheSecs == 0 {
		cfg.JWT.BlacklistCacheSecs = 30
	}
	if cfg.Redis.BlacklistPrefix == "" {
		cfg.Redis.BlacklistPrefix = "blacklist:"
	}
	if cfg.Logging.Directory == "" {
		cfg.Logging.Directory = "./logs"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "depot.log"
	}
	if cfg.Logging.Size == 0 {
		cfg.Logging.Size = 1048576
	}
	if cfg.Logging.Count == 0 {
		cfg.Logging.Count = 10
	}
	if cfg.Persistence.Backend == "" {
		cfg.Persistence.Backend = BackendNone
	}
	if cfg.Persistence.Prefix == "" {
		cfg.Persistence.Prefix = "depot:"
	}
	if cfg.Persistence.AutosaveSeconds == 0 {
		cfg.Persistence.AutosaveSeconds = 60
	}
	if cfg.Depot.DeliveryTicks == 0 {
		cfg.Depot.DeliveryTicks = 40
	}
	if cfg.Depot.Global.ID == "" {
		cfg.Depot.Global.ID = "global"
	}
	for _, list := range [][]StorageConfig{cfg.Depot.Stores, cfg.Depot.Storages} {
		for i := range list {
			for j := range list[i].Orders {
				// an empty order at ratio 0 clears the storage completely
				o := &list[i].Orders[j]
				if o.Ratio == 0 && o.Mode != storage.OrderEmpty {
					o.Ratio = 1
				}
			}
		}
	}
	for i := range cfg.Depot.Modifiers {
		m := &cfg.Depot.Modifiers[i]
		for _, f := range []*float64{&m.InputCost, &m.OutputYield, &m.TimeSpeed} {
			if *f == 0 {
				*f = 1
			}
		}
	}
	for i := range cfg.Depot.Recipes {
		for j := range cfg.Depot.Recipes[i].Outputs {
			if cfg.Depot.Recipes[i].Outputs[j].Probability == 0 {
				cfg.Depot.Recipes[i].Outputs[j].Probability = 1
			}
		}
	}
}

// Validate checks references between the depot sections
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Persistence.Backend {
	case BackendNone, BackendMemory, BackendRedis:
	case BackendLevelDB:
		if cfg.Persistence.Path == "" {
			errs = append(errs, errors.New("persistence: leveldb backend needs a path"))
		}
	default:
		errs = append(errs, fmt.Errorf("persistence: unknown backend %q", cfg.Persistence.Backend))
	}

	d := &cfg.Depot
	items := make(map[string]bool, len(d.Items))
	for i, item := range d.Items {
		switch {
		case item.Key == "":
			errs = append(errs, fmt.Errorf("items[%d]: missing key", i))
		case items[item.Key]:
			errs = append(errs, fmt.Errorf("items[%d]: duplicate key %q", i, item.Key))
		case item.UnitSize < 0:
			errs = append(errs, fmt.Errorf("item %s: negative unit size", item.Key))
		}
		items[item.Key] = true
	}
	checkItems := func(where string, list []QuantityConfig) {
		for _, q := range list {
			if !items[q.Item] {
				errs = append(errs, fmt.Errorf("%s: unknown item %q", where, q.Item))
			}
		}
	}

	if d.Global.Mode.Delegating() {
		errs = append(errs, fmt.Errorf("global: mode %s cannot be used for the global storage", d.Global.Mode))
	}
	checkItems("start_items", d.StartItems)

	ids := map[string]bool{d.Global.ID: true}
	stores := make(map[string]bool, len(d.Stores))
	checkStorage := func(kind string, sc StorageConfig) {
		where := fmt.Sprintf("%s %s", kind, sc.ID)
		switch {
		case sc.ID == "":
			errs = append(errs, fmt.Errorf("%s: missing id", kind))
		case ids[sc.ID]:
			errs = append(errs, fmt.Errorf("%s: duplicate id", where))
		}
		ids[sc.ID] = true
		checkItems(where, sc.Capacities)
		for _, o := range sc.Orders {
			if !items[o.Item] {
				errs = append(errs, fmt.Errorf("%s: order for unknown item %q", where, o.Item))
			}
		}
		if sc.Mode == storage.ModeStacked && sc.StackCount <= 0 {
			errs = append(errs, fmt.Errorf("%s: stacked storage needs stack_count", where))
		}
		if sc.Mode == storage.ModeStore && !stores[sc.Store] {
			errs = append(errs, fmt.Errorf("%s: unknown store %q", where, sc.Store))
		}
	}
	for _, sc := range d.Stores {
		if sc.Mode.Delegating() {
			errs = append(errs, fmt.Errorf("store %s: stores cannot delegate", sc.ID))
		}
		checkStorage("store", sc)
		stores[sc.ID] = true
	}
	for _, sc := range d.Storages {
		checkStorage("storage", sc)
	}

	recipes := make(map[string]bool, len(d.Recipes))
	for _, rc := range d.Recipes {
		if rc.ID == "" || recipes[rc.ID] {
			errs = append(errs, fmt.Errorf("recipe %q: missing or duplicate id", rc.ID))
		}
		recipes[rc.ID] = true
		for _, in := range rc.Inputs {
			if !items[in.Item] {
				errs = append(errs, fmt.Errorf("recipe %s: unknown input %q", rc.ID, in.Item))
			}
		}
		for _, out := range rc.Outputs {
			if !items[out.Item] {
				errs = append(errs, fmt.Errorf("recipe %s: unknown output %q", rc.ID, out.Item))
			}
		}
	}
	for _, m := range d.Modifiers {
		if !ids[m.Storage] {
			errs = append(errs, fmt.Errorf("modifier: unknown storage %q", m.Storage))
		}
	}
	return errors.Join(errs...)
}
