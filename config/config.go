// Package config loads the node configuration from a file, .env files and
// BRIDGE_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rafnixschaf/iota-sub000/committee"
	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/message"
	"github.com/rafnixschaf/iota-sub000/quorum"
)

const EnvPrefix = "BRIDGE"

type AuthorityConfig struct {
	PublicKey   string `mapstructure:"public_key" validate:"required,hexadecimal"`
	VotingPower uint64 `mapstructure:"voting_power" validate:"lte=10000"`
	URL         string `mapstructure:"url" validate:"omitempty,url"`
	Blocklisted bool   `mapstructure:"blocklisted"`
}

type Config struct {
	LogLevel            string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warning error DEBUG INFO WARNING ERROR"`
	LogJSON             bool   `mapstructure:"log_json"`
	NodeID              string `mapstructure:"node_id" validate:"required"`
	NatsAddress         string `mapstructure:"nats_address" validate:"omitempty,url"`
	KeystoreFile        string `mapstructure:"keystore_file"`
	KeystorePasswordEnv string `mapstructure:"keystore_password_env"`
	SignatureDB         string `mapstructure:"signature_db"`
	QuorumThreshold     uint64 `mapstructure:"quorum_threshold" validate:"min=1,max=10000"`

	Committee []AuthorityConfig `mapstructure:"committee" validate:"required,min=1,dive"`

	// Governance actions in the tagged JSON form, see message.MarshalJSONAction.
	ApprovedGovernanceActions []map[string]interface{} `mapstructure:"approved_governance_actions"`
}

// Configuration is the process-wide configuration set by Setup.
var Configuration Config

func GetConfig() Config {
	return Configuration
}

// Setup loads path into Configuration.
func Setup(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	Configuration = c
	return nil
}

// Load reads the config file at path. A .env file next to it, or in the
// working directory, is applied to the environment first; BRIDGE_* variables
// override file values.
func Load(path string) (Config, error) {
	for _, env := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", env, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("log_level", "info")
	v.SetDefault("quorum_threshold", quorum.DefaultThreshold)
	v.SetDefault("keystore_password_env", "BRIDGE_KEYSTORE_PASSWORD")
	v.SetDefault("signature_db", "./data/signatures.db")
	for _, key := range []string{"log_level", "log_json", "node_id", "nats_address", "keystore_file", "signature_db", "quorum_threshold"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// BuildCommittee turns the committee section into a committee.Committee.
// Construction errors are returned unchanged.
func (c Config) BuildCommittee() (*committee.Committee, error) {
	members := make([]committee.Authority, 0, len(c.Committee))
	for i, a := range c.Committee {
		pk, err := crypto.PublicKeyBytesFromHex(a.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("committee[%d]: %w", i, err)
		}
		members = append(members, committee.Authority{
			PubKey:        pk,
			VotingPower:   a.VotingPower,
			BaseURL:       a.URL,
			IsBlocklisted: a.Blocklisted,
		})
	}
	return committee.New(members)
}

// GovernanceActions decodes ApprovedGovernanceActions.
func (c Config) GovernanceActions() ([]message.BridgeAction, error) {
	out := make([]message.BridgeAction, 0, len(c.ApprovedGovernanceActions))
	for i, raw := range c.ApprovedGovernanceActions {
		bz, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("approved_governance_actions[%d]: %w", i, err)
		}
		a, err := message.UnmarshalJSONAction(bz)
		if err != nil {
			return nil, fmt.Errorf("approved_governance_actions[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// KeystorePassword reads the keystore password from the configured variable.
func (c Config) KeystorePassword() string {
	return os.Getenv(c.KeystorePasswordEnv)
}
