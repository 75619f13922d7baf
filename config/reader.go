package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/runnercutter/logging"
)

// Read reads a config from the given file. Environment variables referenced as ${VAR} are
// expanded before the file is parsed.
func Read(ctx context.Context, filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(ctx context.Context, originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	var attributes map[string]interface{}
	if err := json.NewDecoder(r).Decode(&attributes); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}

	cfg := Config{ConfigFilePath: originalPath}
	unused, err := decode(attributes, &cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode Config attributes")
	}
	for _, key := range unused {
		logger.Warnw("ignoring unknown config attribute", "attribute", key, "path", originalPath)
	}

	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode converts generic attributes into the typed config. Durations may be given as strings
// such as "150ms". The names of attributes that do not map to any field are returned.
func decode(attributes map[string]interface{}, to *Config) ([]string, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     to,
		Metadata:   &md,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, err
	}
	sort.Strings(md.Unused)
	return md.Unused, nil
}
