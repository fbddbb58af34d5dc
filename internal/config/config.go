// Package config loads the daemon's INI-style configuration file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/linux-surface/iptsd/internal/ipterrors"
)

// NeutralAlgorithm selects how internal/contacts estimates the per-frame
// capacitance baseline.
type NeutralAlgorithm string

const (
	NeutralMode     NeutralAlgorithm = "mode"
	NeutralAverage  NeutralAlgorithm = "average"
	NeutralConstant NeutralAlgorithm = "constant"
)

// Config is the root configuration for the daemon. Every field is a
// pointer so a partially-specified file can overlay compiled-in defaults;
// use the Get* accessors rather than reading fields directly.
//
// Fields map 1:1 onto the INI keys listed in spec.md §6, named in each
// field's ini tag. Most keys are the lower_snake_case of the Go field
// name; the activation/deactivation keys end in _threshold where the
// field names end in Thresh.
type Config struct {
	InvertX *bool `ini:"invert_x"`
	InvertY *bool `ini:"invert_y"`

	Width  *float32 `ini:"width"`
	Height *float32 `ini:"height"`

	TouchDisable  *bool `ini:"touch_disable"`
	StylusDisable *bool `ini:"stylus_disable"`

	TouchCheckCone       *bool `ini:"touch_check_cone"`
	TouchCheckStability  *bool `ini:"touch_check_stability"`
	TouchDisableOnPalm   *bool `ini:"touch_disable_on_palm"`
	TouchDisableOnStylus *bool `ini:"touch_disable_on_stylus"`

	ContactsNeutral           *string `ini:"contacts_neutral"`
	ContactsNeutralValue      *float32 `ini:"contacts_neutral_value"`
	ContactsActivationThresh  *float32 `ini:"contacts_activation_threshold"`
	ContactsDeactivationThresh *float32 `ini:"contacts_deactivation_threshold"`
	ContactsTemporalWindow    *int    `ini:"contacts_temporal_window"`

	ContactsSizeMin           *float32 `ini:"contacts_size_min"`
	ContactsSizeMax           *float32 `ini:"contacts_size_max"`
	ContactsAspectMin         *float32 `ini:"contacts_aspect_min"`
	ContactsAspectMax         *float32 `ini:"contacts_aspect_max"`
	ContactsSizeThresh        *float32 `ini:"contacts_size_thresh"`
	ContactsPositionThreshMin *float32 `ini:"contacts_position_thresh_min"`
	ContactsPositionThreshMax *float32 `ini:"contacts_position_thresh_max"`
	ContactsDistanceThresh    *float32 `ini:"contacts_distance_thresh"`

	ConeAngle    *float32 `ini:"cone_angle"`
	ConeDistance *float32 `ini:"cone_distance"`

	DFTPositionMinAmp *int     `ini:"dft_position_min_amp"`
	DFTPositionMinMag *int     `ini:"dft_position_min_mag"`
	DFTButtonMinMag   *int     `ini:"dft_button_min_mag"`
	DFTFreqMinMag     *int     `ini:"dft_freq_min_mag"`
	DFTTiltMinMag     *int     `ini:"dft_tilt_min_mag"`
	DFTPositionExp    *float32 `ini:"dft_position_exp"`
	DFTTiltDistance   *float32 `ini:"dft_tilt_distance"`
	DFTTipDistance    *float32 `ini:"dft_tip_distance"`
}

// Empty returns a Config with every field unset. Load overlays a file's
// values onto an Empty config; Get* accessors supply defaults for the rest.
func Empty() *Config {
	return &Config{}
}

// Load reads an INI file at path into a Config and validates it.
// Fields omitted from the file retain their compiled-in defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".conf" && ext != ".ini" {
		return nil, ipterrors.InvalidConfig(fmt.Sprintf("config file must have .conf or .ini extension, got %q", ext))
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, ipterrors.InvalidConfig(fmt.Sprintf("failed to open config file: %v", err))
	}
	defer f.Close()

	raw, err := parseINI(f)
	if err != nil {
		return nil, ipterrors.InvalidConfig(err.Error())
	}

	cfg := Empty()
	if err := cfg.applyRaw(raw); err != nil {
		return nil, ipterrors.InvalidConfig(err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseINI reads key=value pairs from an INI-style file, skipping blank
// lines, comments (# or ;) and section headers ([Section]).
func parseINI(f *os.File) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("malformed config line: %q", line)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		out[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return out, nil
}

func (c *Config) applyRaw(raw map[string]string) error {
	for key, val := range raw {
		var err error
		switch key {
		case "invert_x":
			c.InvertX, err = parseBool(val)
		case "invert_y":
			c.InvertY, err = parseBool(val)
		case "width":
			c.Width, err = parseFloat32(val)
		case "height":
			c.Height, err = parseFloat32(val)
		case "touch_disable":
			c.TouchDisable, err = parseBool(val)
		case "stylus_disable":
			c.StylusDisable, err = parseBool(val)
		case "touch_check_cone":
			c.TouchCheckCone, err = parseBool(val)
		case "touch_check_stability":
			c.TouchCheckStability, err = parseBool(val)
		case "touch_disable_on_palm":
			c.TouchDisableOnPalm, err = parseBool(val)
		case "touch_disable_on_stylus":
			c.TouchDisableOnStylus, err = parseBool(val)
		case "contacts_neutral":
			v := val
			c.ContactsNeutral = &v
		case "contacts_neutral_value":
			c.ContactsNeutralValue, err = parseFloat32(val)
		case "contacts_activation_threshold":
			c.ContactsActivationThresh, err = parseFloat32(val)
		case "contacts_deactivation_threshold":
			c.ContactsDeactivationThresh, err = parseFloat32(val)
		case "contacts_temporal_window":
			c.ContactsTemporalWindow, err = parseInt(val)
		case "contacts_size_min":
			c.ContactsSizeMin, err = parseFloat32(val)
		case "contacts_size_max":
			c.ContactsSizeMax, err = parseFloat32(val)
		case "contacts_aspect_min":
			c.ContactsAspectMin, err = parseFloat32(val)
		case "contacts_aspect_max":
			c.ContactsAspectMax, err = parseFloat32(val)
		case "contacts_size_thresh":
			c.ContactsSizeThresh, err = parseFloat32(val)
		case "contacts_position_thresh_min":
			c.ContactsPositionThreshMin, err = parseFloat32(val)
		case "contacts_position_thresh_max":
			c.ContactsPositionThreshMax, err = parseFloat32(val)
		case "contacts_distance_thresh":
			c.ContactsDistanceThresh, err = parseFloat32(val)
		case "cone_angle":
			c.ConeAngle, err = parseFloat32(val)
		case "cone_distance":
			c.ConeDistance, err = parseFloat32(val)
		case "dft_position_min_amp":
			c.DFTPositionMinAmp, err = parseInt(val)
		case "dft_position_min_mag":
			c.DFTPositionMinMag, err = parseInt(val)
		case "dft_button_min_mag":
			c.DFTButtonMinMag, err = parseInt(val)
		case "dft_freq_min_mag":
			c.DFTFreqMinMag, err = parseInt(val)
		case "dft_tilt_min_mag":
			c.DFTTiltMinMag, err = parseInt(val)
		case "dft_position_exp":
			c.DFTPositionExp, err = parseFloat32(val)
		case "dft_tilt_distance":
			c.DFTTiltDistance, err = parseFloat32(val)
		case "dft_tip_distance":
			c.DFTTipDistance, err = parseFloat32(val)
		default:
			// Unknown keys are ignored for forward compatibility.
		}
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

func parseBool(s string) (*bool, error) {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseFloat32(s string) (*float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return nil, err
	}
	f := float32(v)
	return &f, nil
}

func parseInt(s string) (*int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Validate checks that required fields are present and recognized.
// Missing screen dimensions or an unrecognized neutral algorithm are
// start-up-fatal per spec.md §7 (InvalidConfig).
func (c *Config) Validate() error {
	if c.Width == nil || c.Height == nil {
		return ipterrors.InvalidConfig("width and height must be set")
	}
	if *c.Width <= 0 || *c.Height <= 0 {
		return ipterrors.InvalidConfig("width and height must be positive")
	}
	switch c.GetContactsNeutral() {
	case NeutralMode, NeutralAverage, NeutralConstant:
	default:
		return ipterrors.InvalidConfig(fmt.Sprintf("unrecognized contacts_neutral algorithm: %q", c.GetContactsNeutral()))
	}
	return nil
}

// Accessors. Each returns the configured value or a compiled-in default
// matching the original daemon's config.hpp defaults.

func (c *Config) GetInvertX() bool { return boolOr(c.InvertX, false) }
func (c *Config) GetInvertY() bool { return boolOr(c.InvertY, false) }

func (c *Config) GetWidth() float32  { return float32Or(c.Width, 0) }
func (c *Config) GetHeight() float32 { return float32Or(c.Height, 0) }

func (c *Config) GetTouchDisable() bool  { return boolOr(c.TouchDisable, false) }
func (c *Config) GetStylusDisable() bool { return boolOr(c.StylusDisable, false) }

func (c *Config) GetTouchCheckCone() bool        { return boolOr(c.TouchCheckCone, true) }
func (c *Config) GetTouchCheckStability() bool   { return boolOr(c.TouchCheckStability, true) }
func (c *Config) GetTouchDisableOnPalm() bool    { return boolOr(c.TouchDisableOnPalm, false) }
func (c *Config) GetTouchDisableOnStylus() bool  { return boolOr(c.TouchDisableOnStylus, false) }

func (c *Config) GetContactsNeutral() NeutralAlgorithm {
	if c.ContactsNeutral == nil || *c.ContactsNeutral == "" {
		return NeutralMode
	}
	return NeutralAlgorithm(*c.ContactsNeutral)
}

func (c *Config) GetContactsNeutralValue() float32 { return float32Or(c.ContactsNeutralValue, 0) }

// GetContactsActivationThreshold and GetContactsDeactivationThreshold are
// stored (and user-configured, via contacts_activation_threshold /
// contacts_deactivation_threshold) on the original daemon's raw 0-255
// capacitance scale, then divided down to internal/heatmap's normalized
// [0,1] range here, matching original_source/IPTSDaemon/config/config.cpp's
// activation_threshold = contacts_activation_threshold / 255 conversion.
func (c *Config) GetContactsActivationThreshold() float32 {
	return float32Or(c.ContactsActivationThresh, 24) / 255
}
func (c *Config) GetContactsDeactivationThreshold() float32 {
	return float32Or(c.ContactsDeactivationThresh, 20) / 255
}
func (c *Config) GetContactsTemporalWindow() int { return intOr(c.ContactsTemporalWindow, 3) }

func (c *Config) GetContactsSizeMin() float32    { return float32Or(c.ContactsSizeMin, 0) }
func (c *Config) GetContactsSizeMax() float32    { return float32Or(c.ContactsSizeMax, 10) }
func (c *Config) GetContactsAspectMin() float32  { return float32Or(c.ContactsAspectMin, 1) }
func (c *Config) GetContactsAspectMax() float32  { return float32Or(c.ContactsAspectMax, 3.4) }
func (c *Config) GetContactsSizeThresh() float32 { return float32Or(c.ContactsSizeThresh, 0.3) }
func (c *Config) GetContactsPositionThreshMin() float32 {
	return float32Or(c.ContactsPositionThreshMin, 1)
}
func (c *Config) GetContactsPositionThreshMax() float32 {
	return float32Or(c.ContactsPositionThreshMax, 6)
}
func (c *Config) GetContactsDistanceThresh() float32 {
	return float32Or(c.ContactsDistanceThresh, 30)
}

func (c *Config) GetConeAngle() float32    { return float32Or(c.ConeAngle, 30) }
func (c *Config) GetConeDistance() float32 { return float32Or(c.ConeDistance, 5) }

func (c *Config) GetDFTPositionMinAmp() int { return intOr(c.DFTPositionMinAmp, 50) }
func (c *Config) GetDFTPositionMinMag() int { return intOr(c.DFTPositionMinMag, 6000) }
func (c *Config) GetDFTButtonMinMag() int   { return intOr(c.DFTButtonMinMag, 1000) }
func (c *Config) GetDFTFreqMinMag() int     { return intOr(c.DFTFreqMinMag, 4000) }
func (c *Config) GetDFTTiltMinMag() int     { return intOr(c.DFTTiltMinMag, 6000) }
func (c *Config) GetDFTPositionExp() float32  { return float32Or(c.DFTPositionExp, 1.0) }
func (c *Config) GetDFTTiltDistance() float32 { return float32Or(c.DFTTiltDistance, 240) }
func (c *Config) GetDFTTipDistance() float32  { return float32Or(c.DFTTipDistance, 430) }

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func float32Or(p *float32, def float32) float32 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
