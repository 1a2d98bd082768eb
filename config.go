package bvdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const configVersion = "1.0"

// defaultDim is the embedding dimension used when a database is created
// without an explicit dimension (Cohere's embed-multilingual-v3.0 and
// sibling models default to 1024).
const defaultDim = 1024

// Config is the persisted, immutable-after-creation database
// configuration. It is the marker file that distinguishes a valid bvdb
// directory from an arbitrary or foreign one (spec §4.4.1, §6).
type Config struct {
	Version   string    `json:"version"`
	Model     string    `json:"model"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenOptions configures Open. Only Model and Dim are meaningful at
// creation time; on a subsequent open of an existing directory the
// values recorded in config.json take precedence (spec §6).
type OpenOptions struct {
	Model  string
	Dim    int
	Oracle Oracle
	Logger Logger
}

func configPath(dir string) string {
	return filepath.Join(dir, "config.json")
}

func indexPath(dir string) string {
	return filepath.Join(dir, "index.bin")
}

func docsPath(dir string) string {
	return filepath.Join(dir, "docs.db")
}

// loadOrCreateConfig implements spec §4.4.1: an empty directory gets a
// fresh config.json; a directory already carrying one is loaded as-is;
// anything else is a foreign/corrupt directory.
func loadOrCreateConfig(dir string, opts OpenOptions) (Config, bool, error) {
	cfgPath := configPath(dir)

	if _, err := os.Stat(cfgPath); err == nil {
		data, err := os.ReadFile(cfgPath)
		if err != nil {
			return Config{}, false, newErr("open", KindCorruptOrForeignDirectory, ErrCorruptOrForeignDirectory, err.Error())
		}
		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, false, newErr("open", KindCorruptOrForeignDirectory, ErrCorruptOrForeignDirectory, "config.json is not valid JSON")
		}
		return cfg, false, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Config{}, false, wrapErr("open", KindStorageFailure, err)
			}
			entries = nil
		} else {
			return Config{}, false, wrapErr("open", KindStorageFailure, err)
		}
	}
	if len(entries) > 0 {
		return Config{}, false, newErr("open", KindCorruptOrForeignDirectory, ErrCorruptOrForeignDirectory,
			fmt.Sprintf("%s is non-empty but has no config.json", dir))
	}

	dim := opts.Dim
	if dim == 0 {
		dim = defaultDim
	}
	cfg := Config{
		Version:   configVersion,
		Model:     opts.Model,
		Dim:       dim,
		CreatedAt: time.Now(),
	}
	if err := writeConfig(dir, cfg); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}

func writeConfig(dir string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return wrapErr("open", KindStorageFailure, err)
	}
	if err := os.WriteFile(configPath(dir), data, 0o644); err != nil {
		return wrapErr("open", KindStorageFailure, err)
	}
	return nil
}
