package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

//go:embed chains.yaml
var chainsYAML []byte

type Config struct {
	FaceAPI  FaceAPIConfig
	Liveness LivenessConfig
	Wizard   WizardConfig
	Wallet   WalletConfig
	Database DatabaseConfig
	Web      WebConfig
	Log      LogConfig
	Networks NetworksConfig
}

type FaceAPIConfig struct {
	URL          string        `default:"http://localhost:8000"`
	LivenessPath string        `default:"/detect-liveness"` // /liveness-check on older deployments
	Timeout      time.Duration `default:"30s"`
	CaptureDir   string        // directory to save API responses for debugging (optional)
}

type LivenessConfig struct {
	Enabled  bool          `default:"true"`
	Interval time.Duration `default:"2s"`
}

type WizardConfig struct {
	Animate bool `default:"true"` // false commits stage transitions without the animating delay
}

type WalletConfig struct {
	RPCURL         string        // JSON-RPC endpoint of the wallet provider; empty means no wallet
	Network        string        `default:"sepolia"`
	From           string        // sender account, defaults to the first account the provider exposes
	WaitReceipt    bool          `default:"true"`
	ReceiptTimeout time.Duration `default:"2m"`
	ProjectID      string        `default:"default_project_id"` // WalletConnect project id handed to the browser
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty keeps everything in memory
	MaxOpenConns int    `default:"25"`
	MaxIdleConns int    `default:"5"`
}

type WebConfig struct {
	Host           string `default:"0.0.0.0"`
	Port           int    `default:"8080"`
	SessionSecret  string
	AllowedOrigins []string
	SecureCookies  bool
}

type LogConfig struct {
	Level  string `default:"info"`
	Format string `default:"json"` // json or console
}

type NetworksConfig struct {
	Networks []Network `yaml:"networks"`
}

// Network describes a chain payments can be sent on.
type Network struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	ChainID     int64  `yaml:"chain_id" json:"chain_id"`
	Symbol      string `yaml:"symbol" json:"symbol"`
	ExplorerURL string `yaml:"explorer_url" json:"explorer_url"`
	Testnet     bool   `yaml:"testnet" json:"testnet"`
}

// TxURL returns the explorer link for a transaction hash.
// Returns empty string if the network has no explorer.
func (n Network) TxURL(hash string) string {
	if n.ExplorerURL == "" || hash == "" {
		return ""
	}
	return strings.TrimSuffix(n.ExplorerURL, "/") + "/tx/" + hash
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a Go duration string such as "2s" or "1m30s".
// Returns the default value if the env var is unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var networks NetworksConfig
	if err := yaml.Unmarshal(chainsYAML, &networks); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded chains.yaml: " + err.Error())
	}

	cfg := &Config{Networks: networks}
	if err := defaults.Set(cfg); err != nil {
		panic("failed to apply config defaults: " + err.Error())
	}

	cfg.FaceAPI.URL = strings.TrimSuffix(envString("FACE_API_URL", cfg.FaceAPI.URL), "/")
	cfg.FaceAPI.LivenessPath = envString("FACE_API_LIVENESS_PATH", cfg.FaceAPI.LivenessPath)
	cfg.FaceAPI.Timeout = envDuration("FACE_API_TIMEOUT", cfg.FaceAPI.Timeout)
	cfg.FaceAPI.CaptureDir = os.Getenv("FACE_API_CAPTURE_DIR")

	cfg.Liveness.Enabled = envBool("LIVENESS_ENABLED", cfg.Liveness.Enabled)
	cfg.Liveness.Interval = envDuration("LIVENESS_INTERVAL", cfg.Liveness.Interval)

	cfg.Wizard.Animate = envBool("WIZARD_ANIMATE", cfg.Wizard.Animate)

	cfg.Wallet.RPCURL = os.Getenv("WALLET_RPC_URL")
	cfg.Wallet.Network = envString("WALLET_NETWORK", cfg.Wallet.Network)
	cfg.Wallet.From = os.Getenv("WALLET_FROM")
	cfg.Wallet.WaitReceipt = envBool("WALLET_WAIT_RECEIPT", cfg.Wallet.WaitReceipt)
	cfg.Wallet.ReceiptTimeout = envDuration("WALLET_RECEIPT_TIMEOUT", cfg.Wallet.ReceiptTimeout)
	cfg.Wallet.ProjectID = envString("WALLET_CONNECT_PROJECT_ID", cfg.Wallet.ProjectID)

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.SessionSecret = os.Getenv("WEB_SESSION_SECRET")
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS")
	cfg.Web.SecureCookies = envBool("WEB_SECURE_COOKIES", cfg.Web.SecureCookies)

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)

	return cfg
}

// Network returns the network with the given name.
func (c *Config) Network(name string) (Network, bool) {
	for _, n := range c.Networks.Networks {
		if strings.EqualFold(n.Name, name) {
			return n, true
		}
	}
	return Network{}, false
}

// ActiveNetwork returns the network selected by WALLET_NETWORK.
func (c *Config) ActiveNetwork() (Network, error) {
	n, ok := c.Network(c.Wallet.Network)
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q", c.Wallet.Network)
	}
	return n, nil
}
