// Package config loads the optional YAML configuration file that backs
// chatwire's CLI flags as a second default layer: CLI flag > environment
// variable > config file > struct default.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerFile is the YAML shape for the server's optional config file.
// Pointer fields distinguish "absent from file" from "explicitly zero".
type ServerFile struct {
	Port         *int    `yaml:"port,omitempty"`
	Secure       *bool   `yaml:"secure,omitempty"`
	CertFile     *string `yaml:"cert,omitempty"`
	KeyFile      *string `yaml:"key,omitempty"`
	LogLevel     *string `yaml:"log_level,omitempty"`
	LogFile      *string `yaml:"log_file,omitempty"`
	MetricsAddr  *string `yaml:"metrics_addr,omitempty"`
}

// ClientFile is the YAML shape for the client's optional config file.
type ClientFile struct {
	Host     *string `yaml:"host,omitempty"`
	Port     *int    `yaml:"port,omitempty"`
	Secure   *bool   `yaml:"secure,omitempty"`
	Name     *string `yaml:"name,omitempty"`
	LogLevel *string `yaml:"log_level,omitempty"`
}

// LoadServerFile reads and parses path. Returns (nil, nil) if path does
// not exist — an absent config file is not an error.
func LoadServerFile(path string) (*ServerFile, error) {
	data, err := readOptional(path)
	if err != nil || data == nil {
		return nil, err
	}
	var cfg ServerFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// LoadClientFile reads and parses path. Returns (nil, nil) if path does
// not exist.
func LoadClientFile(path string) (*ClientFile, error) {
	data, err := readOptional(path)
	if err != nil || data == nil {
		return nil, err
	}
	var cfg ClientFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return data, nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setStr(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
