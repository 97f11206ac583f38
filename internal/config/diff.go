package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only LogLevel and ScanEnabled can be applied to a running process; every
// other change is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ScanEnabledChanged bool
	NewScanEnabled     bool

	// RestartRequired names the top-level sections whose changes only take
	// effect on the next session (e.g., "providers", "capture").
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ScanEnabledChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Assistant.Scan.Enabled != new.Assistant.Scan.Enabled {
		d.ScanEnabledChanged = true
		d.NewScanEnabled = new.Assistant.Scan.Enabled
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	// Mask the hot-reloadable field before comparing the assistant block.
	oa, na := old.Assistant, new.Assistant
	oa.Scan.Enabled, na.Scan.Enabled = false, false

	sections := []struct {
		name     string
		old, new any
	}{
		{"providers", old.Providers, new.Providers},
		{"capture", old.Capture, new.Capture},
		{"output", old.Output, new.Output},
		{"assistant", oa, na},
		{"journal", old.Journal, new.Journal},
		{"resilience", old.Resilience, new.Resilience},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
