package lifecycle

import "github.com/memstack/sandboxcore/internal/types"

// profileDefaults maps a named resource Profile to its fixed
// memory/cpu/timeout/desktop-enabled defaults (spec.md §4.6
// get_or_create). The original Python service's sandbox_profile module
// was not part of the retrieval pack's filtered original_source/ copy,
// so these values are a
// reasonable, documented choice rather than a transcription.
var profileDefaults = map[types.Profile]types.Config{
	types.ProfileLite: {
		MemoryLimit:    "256m",
		CPULimit:       0.5,
		TimeoutSeconds: 900,
		DesktopEnabled: false,
	},
	types.ProfileStandard: {
		MemoryLimit:    "512m",
		CPULimit:       1.0,
		TimeoutSeconds: 1800,
		DesktopEnabled: false,
	},
	types.ProfileFull: {
		MemoryLimit:    "2g",
		CPULimit:       2.0,
		TimeoutSeconds: 3600,
		DesktopEnabled: true,
	},
}

// Overrides are the caller-recognized get_or_create overrides (spec.md
// §4.6): "memory_limit", "cpu_limit", "timeout_seconds",
// "desktop_enabled", "environment".
type Overrides struct {
	MemoryLimit    *string
	CPULimit       *float64
	TimeoutSeconds *int
	DesktopEnabled *bool
	Environment    map[string]string
}

// ResourceCeilings bounds the host's maximum allowed memory/CPU,
// rejecting configs that exceed them (spec.md §4.6 step 3, "Create-new").
type ResourceCeilings struct {
	MaxMemoryBytes int64
	MaxCPU         float64
}

// resolveConfig expands profile into defaults, applies overrides, and
// fills in the fields every sandbox shares (image, security profile,
// network mode).
func resolveConfig(profile types.Profile, overrides Overrides, image string) types.Config {
	defaults, ok := profileDefaults[profile]
	if !ok {
		defaults = profileDefaults[types.ProfileStandard]
	}

	cfg := defaults
	cfg.Image = image
	cfg.SecurityProfile = types.SecurityStandard
	cfg.NetworkMode = types.NetworkBridge
	cfg.Environment = map[string]string{}

	if overrides.MemoryLimit != nil {
		cfg.MemoryLimit = *overrides.MemoryLimit
	}
	if overrides.CPULimit != nil {
		cfg.CPULimit = *overrides.CPULimit
	}
	if overrides.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *overrides.TimeoutSeconds
	}
	if overrides.DesktopEnabled != nil {
		cfg.DesktopEnabled = *overrides.DesktopEnabled
	}
	if overrides.Environment != nil {
		cfg.Environment = overrides.Environment
	}
	return cfg
}
