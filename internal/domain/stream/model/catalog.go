// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"fmt"
	"sort"
)

// Tier is one quality preset.
type Tier struct {
	Width    int `json:"width" yaml:"width"`
	Height   int `json:"height" yaml:"height"`
	BitrateK int `json:"bitrateK" yaml:"bitrateK"`
}

// Catalog holds the static tables that are part of the interface contract:
// platform -> base ingestion URL and quality tier -> dimensions/bitrate.
type Catalog struct {
	Platforms map[string]string
	Tiers     map[string]Tier
}

// DefaultPlatforms are the ingestion endpoints shipped by default.
func DefaultPlatforms() map[string]string {
	return map[string]string{
		"youtube":  "rtmp://a.rtmp.youtube.com/live2/",
		"facebook": "rtmps://live-api-s.facebook.com:443/rtmp/",
	}
}

// DefaultTiers are the quality presets shipped by default.
func DefaultTiers() map[string]Tier {
	return map[string]Tier{
		"144p":  {Width: 256, Height: 144, BitrateK: 200},
		"240p":  {Width: 426, Height: 240, BitrateK: 400},
		"360p":  {Width: 640, Height: 360, BitrateK: 800},
		"480p":  {Width: 854, Height: 480, BitrateK: 1200},
		"720p":  {Width: 1280, Height: 720, BitrateK: 2500},
		"1080p": {Width: 1920, Height: 1080, BitrateK: 4500},
		"2k":    {Width: 2560, Height: 1440, BitrateK: 8000},
		"4k":    {Width: 3840, Height: 2160, BitrateK: 15000},
	}
}

// DefaultCatalog returns the built-in tables.
func DefaultCatalog() Catalog {
	return Catalog{Platforms: DefaultPlatforms(), Tiers: DefaultTiers()}
}

// Destination builds the full ingestion URL for platform and key.
func (c Catalog) Destination(platform, key string) (string, error) {
	base, ok := c.Platforms[platform]
	if !ok {
		return "", NewError(KindInvalidRequest, fmt.Sprintf("unknown platform %q", platform), nil)
	}
	if key == "" {
		return "", NewError(KindInvalidRequest, "destination key is required", nil)
	}
	return base + key, nil
}

// Frame returns the output dimensions and bitrate for tier, with width and
// height swapped for portrait output.
func (c Catalog) Frame(tier string, o Orientation) (Tier, error) {
	t, ok := c.Tiers[tier]
	if !ok {
		return Tier{}, NewError(KindInvalidRequest, fmt.Sprintf("unknown quality tier %q", tier), nil)
	}
	if o == OrientationPortrait {
		t.Width, t.Height = t.Height, t.Width
	}
	return t, nil
}

// PlatformNames returns the configured platforms in stable order.
func (c Catalog) PlatformNames() []string {
	names := make([]string, 0, len(c.Platforms))
	for name := range c.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy whose maps can be mutated independently.
func (c Catalog) Clone() Catalog {
	out := Catalog{
		Platforms: make(map[string]string, len(c.Platforms)),
		Tiers:     make(map[string]Tier, len(c.Tiers)),
	}
	for k, v := range c.Platforms {
		out.Platforms[k] = v
	}
	for k, v := range c.Tiers {
		out.Tiers[k] = v
	}
	return out
}
