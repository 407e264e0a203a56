package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	envAdminToken = "POLICYRAG_ADMIN_TOKEN"
	envAPIURL     = "POLICYRAG_API_URL"

	defaultAPIURL  = "http://localhost:8080"
	configFileName = "config.json"
)

// GlobalConfig is what 'policyrag auth login' stores between invocations.
type GlobalConfig struct {
	APIURL     string `json:"api_url"`
	AdminToken string `json:"admin_token,omitempty"`
}

// configDirFunc is swapped out by tests.
var configDirFunc = func() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "policyrag"), nil
}

// GetConfigDir returns the platform-specific configuration directory
func GetConfigDir() (string, error) {
	return configDirFunc()
}

// GetConfigPath returns the full path to the config.json file
func GetConfigPath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadGlobalConfig returns the stored config, or nil without error when
// nothing has been saved yet.
func LoadGlobalConfig() (*GlobalConfig, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// SaveGlobalConfig replaces config.json in one rename so a concurrent
// reader never sees a partial file. The file is readable by the owner only.
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	stored := *config
	stored.APIURL = strings.TrimRight(stored.APIURL, "/")
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, configFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, configFileName)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DeleteGlobalConfig removes config.json. A missing file is not an error.
func DeleteGlobalConfig() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// CredentialSource represents where the admin token came from
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceNone         CredentialSource = "none"
)

// Credentials is the outcome of the flag, env, global config cascade.
type Credentials struct {
	Source     CredentialSource
	AdminToken string
	APIURL     string
}

// ResolveCredentials looks up the admin token and API URL independently,
// each taking the first of flag, environment and saved config that is set.
// APIURL falls back to the local server. The returned Credentials are usable
// even when the saved config could not be read; the error reports that.
func ResolveCredentials(flagToken, flagURL string) (Credentials, error) {
	creds := Credentials{Source: SourceNone, APIURL: firstNonEmpty(flagURL, os.Getenv(envAPIURL))}

	if flagToken != "" {
		creds.Source, creds.AdminToken = SourceFlag, flagToken
	} else if token := os.Getenv(envAdminToken); token != "" {
		creds.Source, creds.AdminToken = SourceEnv, token
	}

	var err error
	if creds.AdminToken == "" || creds.APIURL == "" {
		var saved *GlobalConfig
		saved, err = LoadGlobalConfig()
		if saved != nil {
			if creds.AdminToken == "" && saved.AdminToken != "" {
				creds.Source, creds.AdminToken = SourceGlobalConfig, saved.AdminToken
			}
			creds.APIURL = firstNonEmpty(creds.APIURL, saved.APIURL)
		}
	}

	creds.APIURL = firstNonEmpty(creds.APIURL, defaultAPIURL)
	return creds, err
}

// GetCredentialSource reports where the admin token comes from. The token and
// URL are empty when no token is configured anywhere.
func GetCredentialSource(flagToken, flagAPIURL string) (CredentialSource, string, string) {
	creds, _ := ResolveCredentials(flagToken, flagAPIURL)
	if creds.Source == SourceNone {
		return SourceNone, "", ""
	}
	return creds.Source, creds.AdminToken, creds.APIURL
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
