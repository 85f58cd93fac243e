package conf

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/manatee-project/manatee-jobs/constants"
)

var config *Config

// Config is the content of <repo>/config.toml.
type Config struct {
	API       API
	DCR       DCR
	Panel     Panel
	Cache     Cache
	Workspace Workspace
}

// API describes the manatee endpoints: where the proxy listens and where
// the panel sends its requests.
type API struct {
	Port        int
	BaseUrl     string
	Token       string
	CrtFile     string
	KeyFile     string
	EnablePprof bool
}

// DCR is the upstream data clean room API the proxy talks to.
type DCR struct {
	ServerUrl   string
	AccessToken string
	Creator     string
}

type Panel struct {
	PollIntervalSeconds   int
	PageChangeDelayMillis int
	PageSize              int
	SizeCanChange         bool
	Locale                string
}

type Cache struct {
	Type          string
	Path          string
	RedisUrl      string
	RedisPassword string
	TTLDays       int
}

type Workspace struct {
	// Dir is packed and uploaded when a job is submitted.
	Dir       string
	OutputDir string
}

func InitConfig(repoPath string) error {
	configFile := filepath.Join(repoPath, "config.toml")

	var c Config
	if _, err := toml.DecodeFile(configFile, &c); err != nil {
		return fmt.Errorf("failed load config file, path: %s, error: %w", configFile, err)
	}
	c.applyDefaults(repoPath)
	config = &c
	return nil
}

func GetConfig() *Config {
	return config
}

// RequireDCR reports the [DCR] fields needed to talk to the data clean room
// that are missing. Only the proxy needs them; the panel talks to API.BaseUrl.
func (c *Config) RequireDCR() error {
	var missing []string
	if c.DCR.ServerUrl == "" {
		missing = append(missing, "DCR.ServerUrl")
	}
	if c.DCR.Creator == "" {
		missing = append(missing, "DCR.Creator")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required field not given: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) applyDefaults(repoPath string) {
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultProxyPort
	}
	if c.API.BaseUrl == "" {
		c.API.BaseUrl = fmt.Sprintf("http://localhost:%d/", c.API.Port)
	}
	if c.DCR.ServerUrl != "" && !strings.HasPrefix(c.DCR.ServerUrl, "http://") && !strings.HasPrefix(c.DCR.ServerUrl, "https://") {
		c.DCR.ServerUrl = "http://" + c.DCR.ServerUrl
	}
	if c.Panel.PollIntervalSeconds <= 0 {
		c.Panel.PollIntervalSeconds = constants.DefaultPollIntervalSeconds
	}
	if c.Panel.PageChangeDelayMillis <= 0 {
		c.Panel.PageChangeDelayMillis = constants.DefaultPageChangeDelayMillis
	}
	if c.Panel.PageSize <= 0 {
		c.Panel.PageSize = 10
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "leveldb"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(repoPath, "cache")
	}
	if c.Cache.TTLDays <= 0 {
		c.Cache.TTLDays = constants.DefaultAttestationCacheTTLDays
	}
	if c.Workspace.Dir == "" {
		c.Workspace.Dir = "."
	}
	if c.Workspace.OutputDir == "" {
		c.Workspace.OutputDir = "."
	}
}

func (p Panel) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

func (p Panel) PageChangeDelay() time.Duration {
	return time.Duration(p.PageChangeDelayMillis) * time.Millisecond
}

func (c Cache) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}
