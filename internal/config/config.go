package config

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/Abdullah1738/tokenwell/offchain/blockfrost"
	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/offchain/wallet"
	"github.com/Abdullah1738/tokenwell/protocol"
)

const (
	defaultBlueprintPath = "plutus.json"
	defaultStorePath     = ".tokenwell/store"
	defaultListenAddr    = "127.0.0.1:8080"
	defaultExMem         = 1_000_000
	defaultExSteps       = 500_000_000

	EnvOperatorPKH = "OPERATOR_PKH"
	EnvBlueprint   = "TOKENWELL_BLUEPRINT"
)

var defaultTitle = []string{"tokenwell", "mint"}

// Wallet sources.
const (
	WalletSourceEnv           = "env"
	WalletSourceFile          = "file"
	WalletSourceSecretManager = "secretmanager"
)

type Config struct {
	Blueprint BlueprintConfig          `yaml:"blueprint"`
	Operator  OperatorConfig           `yaml:"operator"`
	Wallet    WalletConfig             `yaml:"wallet"`
	Networks  map[string]NetworkConfig `yaml:"networks"`
	Mint      MintConfig               `yaml:"mint"`
	Store     StoreConfig              `yaml:"store"`
	HTTP      HTTPConfig               `yaml:"http"`
	Logger    *LogConfig               `yaml:"logger"`
	LogFile   string                   `yaml:"logfile"`
	Debug     bool                     `yaml:"debug"`
}

type BlueprintConfig struct {
	Path string `yaml:"path"`
	// Title fragments that must all appear in the validator title.
	Title []string `yaml:"title"`
}

// OperatorConfig names the identity baked into the policy, either as a
// payment key hash or as an address whose payment key hash is used.
type OperatorConfig struct {
	PKH     string `yaml:"pkh"`
	Address string `yaml:"address"`
}

// WalletConfig says where the signing key comes from. The key itself is
// never part of the configuration.
type WalletConfig struct {
	Source     string `yaml:"source"`
	KeyFile    string `yaml:"keyFile"`
	SecretName string `yaml:"secretName"`
}

type NetworkConfig struct {
	BlockfrostURL string `yaml:"blockfrostUrl"`
	ProjectID     string `yaml:"projectId"`
}

type MintConfig struct {
	ExMem    uint64 `yaml:"exMem"`
	ExSteps  uint64 `yaml:"exSteps"`
	Evaluate bool   `yaml:"evaluate"`
	// ScriptCacheSize bounds the parameterized script cache.
	ScriptCacheSize int `yaml:"scriptCacheSize"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type HTTPConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Option overrides a setting after the file and environment are applied.
type Option func(*Config)

// WithOperatorPKH sets the operator key hash. Blank pkh leaves the loaded
// value in place.
func WithOperatorPKH(pkh string) Option {
	return func(c *Config) {
		if v := strings.TrimSpace(pkh); v != "" {
			c.Operator.PKH = v
		}
	}
}

// Load reads a YAML file, applies environment overrides, opts and defaults,
// and validates the result. An empty path starts from defaults.
func Load(path string, opts ...Option) (*Config, error) {
	var c Config
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "load config")
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return nil, errors.Wrap(err, "load config")
		}
	}
	c.ApplyEnv(os.Getenv)
	for _, opt := range opts {
		opt(&c)
	}
	out := c.WithDefaults()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyEnv overlays settings that deployments pass through the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvOperatorPKH)); v != "" {
		c.Operator.PKH = v
	}
	if v := strings.TrimSpace(getenv(EnvBlueprint)); v != "" {
		c.Blueprint.Path = v
	}
	if c.Wallet.Source == "" {
		switch {
		case strings.TrimSpace(getenv(wallet.EnvSigningKey)) != "":
			c.Wallet.Source = WalletSourceEnv
		case strings.TrimSpace(getenv(wallet.EnvSigningKeyFile)) != "":
			c.Wallet.Source = WalletSourceFile
			c.Wallet.KeyFile = strings.TrimSpace(getenv(wallet.EnvSigningKeyFile))
		}
	}
	for _, n := range []cardano.Network{cardano.NetworkPreview, cardano.NetworkPreprod} {
		v := strings.TrimSpace(getenv(blockfrost.ProjectIDEnv(n)))
		if v == "" {
			continue
		}
		if c.Networks == nil {
			c.Networks = map[string]NetworkConfig{}
		}
		key := strings.ToLower(n.String())
		nc := c.Networks[key]
		nc.ProjectID = v
		c.Networks[key] = nc
	}
}

// WithDefaults returns a copy of the Config with any missing fields set to
// their default values.
func (c Config) WithDefaults() Config {
	cpy := c
	if cpy.Blueprint.Path == "" {
		cpy.Blueprint.Path = defaultBlueprintPath
	}
	if len(cpy.Blueprint.Title) == 0 {
		cpy.Blueprint.Title = append([]string(nil), defaultTitle...)
	}
	if cpy.Wallet.Source == "" {
		cpy.Wallet.Source = WalletSourceEnv
	}
	if cpy.Mint.ExMem == 0 {
		cpy.Mint.ExMem = defaultExMem
	}
	if cpy.Mint.ExSteps == 0 {
		cpy.Mint.ExSteps = defaultExSteps
	}
	if cpy.Store.Path == "" {
		cpy.Store.Path = defaultStorePath
	}
	if cpy.HTTP.ListenAddr == "" {
		cpy.HTTP.ListenAddr = defaultListenAddr
	}
	return cpy
}

func (c Config) Validate() error {
	if _, err := c.Operator.Credential(); err != nil {
		return err
	}
	switch c.Wallet.Source {
	case WalletSourceEnv:
	case WalletSourceFile:
		if strings.TrimSpace(c.Wallet.KeyFile) == "" {
			return errors.New("wallet.keyFile required for file source")
		}
	case WalletSourceSecretManager:
		if strings.TrimSpace(c.Wallet.SecretName) == "" {
			return errors.New("wallet.secretName required for secretmanager source")
		}
	default:
		return errors.Errorf("unknown wallet source %q", c.Wallet.Source)
	}
	for name := range c.Networks {
		if _, err := cardano.ParseNetwork(name); err != nil {
			return errors.Wrap(err, "networks")
		}
	}
	return nil
}

// Credential resolves the operator identity.
func (o OperatorConfig) Credential() (protocol.Credential, error) {
	switch {
	case strings.TrimSpace(o.PKH) != "":
		c, err := protocol.ParseCredentialHex(strings.TrimSpace(o.PKH))
		return c, errors.Wrap(err, "operator pkh")
	case strings.TrimSpace(o.Address) != "":
		c, err := cardano.PaymentCredentialOf(strings.TrimSpace(o.Address))
		return c, errors.Wrap(err, "operator address")
	default:
		return protocol.Credential{}, errors.Errorf("operator identity required: set operator.pkh or %s", EnvOperatorPKH)
	}
}

// WalletSource builds the signing key source.
func (c Config) WalletSource() wallet.Source {
	switch c.Wallet.Source {
	case WalletSourceFile:
		return wallet.FromFile(c.Wallet.KeyFile)
	case WalletSourceSecretManager:
		return wallet.FromSecretManager(c.Wallet.SecretName)
	default:
		return wallet.FromEnv()
	}
}

// EnabledNetworks lists the configured networks in a stable order.
func (c Config) EnabledNetworks() []cardano.Network {
	out := make([]cardano.Network, 0, len(c.Networks))
	for name := range c.Networks {
		n, err := cardano.ParseNetwork(name)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Network returns n's settings; the map is keyed by lower-case name.
func (c Config) Network(n cardano.Network) (NetworkConfig, bool) {
	for name, nc := range c.Networks {
		if p, err := cardano.ParseNetwork(name); err == nil && p == n {
			return nc, true
		}
	}
	return NetworkConfig{}, false
}

func (m MintConfig) ExUnits() cardano.ExUnits {
	return cardano.ExUnits{Mem: m.ExMem, Steps: m.ExSteps}
}
