// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESTREAM_"

// envReader reads overrides from a lookup function and records which keys it
// consumed. Invalid values are logged and ignored.
type envReader struct {
	lookup   func(string) (string, bool)
	logger   zerolog.Logger
	consumed map[string]struct{}
}

func newEnvReader(lookup func(string) (string, bool), logger zerolog.Logger) *envReader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &envReader{lookup: lookup, logger: logger, consumed: make(map[string]struct{})}
}

func (e *envReader) raw(key string) (string, bool) {
	key = EnvPrefix + key
	e.consumed[key] = struct{}{}
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "dsn") || strings.Contains(k, "token")
}

func (e *envReader) string(key string, dst *string) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	evt := e.logger.Debug().Str("key", EnvPrefix+key).Str("source", "environment")
	if e.sensitive(key) {
		evt = evt.Bool("sensitive", true)
	} else {
		evt = evt.Str("value", v)
	}
	evt.Msg("using environment variable")
	*dst = v
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, "integer")
		return
	}
	*dst = i
}

func (e *envReader) int64(key string, dst *int64) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.invalid(key, v, "integer")
		return
	}
	*dst = i
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.invalid(key, v, "float")
		return
	}
	*dst = f
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(key, v, "duration")
		return
	}
	*dst = d
}

// bool accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		e.invalid(key, v, "boolean")
	}
}

// list splits a comma-separated value, dropping blanks.
func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e *envReader) invalid(key, value, kind string) {
	e.logger.Warn().
		Str("key", EnvPrefix+key).
		Str("value", value).
		Msgf("invalid %s in environment variable, keeping previous value", kind)
}
