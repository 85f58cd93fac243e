package initializer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/filswan/go-swan-lib/logs"
	"github.com/manatee-project/manatee-jobs/conf"
	"github.com/manatee-project/manatee-jobs/internal/cache"
)

var ErrConfigExists = errors.New("config.toml already exists")

// ProjectInit loads <repoPath>/config.toml and prepares the directories it
// points at.
func ProjectInit(repoPath string) (*conf.Config, error) {
	if err := conf.InitConfig(repoPath); err != nil {
		return nil, err
	}
	cfg := conf.GetConfig()

	if err := os.MkdirAll(cfg.Workspace.OutputDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed create output dir %s, error: %w", cfg.Workspace.OutputDir, err)
	}
	if cfg.Cache.Type == cache.TypeLevelDB {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed create cache dir %s, error: %w", cfg.Cache.Path, err)
		}
	}
	return cfg, nil
}

type initConfig struct {
	API       initAPI
	DCR       conf.DCR
	Panel     conf.Panel
	Cache     initCache
	Workspace conf.Workspace
}

type initAPI struct {
	Port    int
	BaseUrl string
}

type initCache struct {
	Type    string
	TTLDays int
}

// WriteDefaultConfig creates the repo directory and a config.toml for the
// given data clean room and creator. An existing file is left untouched.
func WriteDefaultConfig(repoPath string, dcr conf.DCR) (string, error) {
	if err := os.MkdirAll(repoPath, 0700); err != nil {
		return "", err
	}
	configFile := filepath.Join(repoPath, "config.toml")
	if _, err := os.Stat(configFile); err == nil {
		return configFile, ErrConfigExists
	}

	f, err := os.OpenFile(configFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()

	c := initConfig{
		API: initAPI{Port: 8888, BaseUrl: "http://localhost:8888/"},
		DCR: dcr,
		Panel: conf.Panel{
			PollIntervalSeconds:   10,
			PageChangeDelayMillis: 1000,
			PageSize:              10,
			Locale:                "en-US",
		},
		Cache:     initCache{Type: cache.TypeLevelDB, TTLDays: 7},
		Workspace: conf.Workspace{Dir: ".", OutputDir: "."},
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return "", fmt.Errorf("failed write %s, error: %w", configFile, err)
	}
	logs.GetLogger().Infof("config written to %s", configFile)
	return configFile, nil
}
