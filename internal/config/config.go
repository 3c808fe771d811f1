// Package config loads the kernel's sovereign configuration from the
// environment, with YAML-file defaults layered underneath for anything an
// operator wants to check into a repo instead of exporting by hand.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the kernel's full sovereign configuration. YAML is loaded
// first, then overridden by the environment. Most fields have an
// environment variable; ProtectedSkills, Logging.JSONFormat and
// Logging.Categories are set only from YAML or the defaults.
type Config struct {
	StoragePath   string `yaml:"storage_path"`
	ShadowKeyHex  string `yaml:"-"` // never serialized; PAGI_SHADOW_KEY only
	SovereignKey  string `yaml:"-"` // never serialized; PAGI_SOVEREIGN_KEY only

	FirewallStrictMode          bool    `yaml:"firewall_strict_mode"`
	AstroLogicEnabled           bool    `yaml:"astro_logic_enabled"`
	AstroAlertsEnabled          bool    `yaml:"astro_alerts_enabled"`
	SovereigntyAutoRankEnabled  bool    `yaml:"sovereignty_auto_rank_enabled"`
	SkillsAutoPromoteAllowed    bool    `yaml:"skills_auto_promote_allowed"`
	KB08SuccessLogging          bool    `yaml:"kb08_success_logging"`
	KB08LoggingLevel            string  `yaml:"kb08_logging_level"` // "minimal" | "full"
	StrictTechnicalMode         bool    `yaml:"strict_technical_mode"`
	DailyCheckinEnabled         bool    `yaml:"daily_checkin_enabled"`
	EveningAuditEnabled         bool    `yaml:"evening_audit_enabled"`
	AuditStartHour              int     `yaml:"audit_start_hour"` // 0-23 UTC
	FocusShieldEnabled          bool    `yaml:"focus_shield_enabled"`
	VitalityShieldEnabled       bool    `yaml:"vitality_shield_enabled"`
	HumanityRatio               float32 `yaml:"humanity_ratio"` // 0.0 Architect .. 1.0 Archetype
	PrimaryArchetype            string  `yaml:"primary_archetype"`
	SecondaryArchetype          string  `yaml:"secondary_archetype"`
	ArchetypeOverride           string  `yaml:"archetype_override"`
	ArchetypeAutoSwitchEnabled  bool    `yaml:"archetype_auto_switch_enabled"`
	ForgeSafetyEnabled          bool    `yaml:"forge_safety_enabled"`
	SovereignProtocolsEnabled   bool    `yaml:"sovereign_protocols_enabled"`
	ProtectedSkills             []string `yaml:"protected_skills"`
	TickRateSecs                int     `yaml:"tick_rate_secs"` // heartbeat interval, minimum 1

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors the ambient logging switches; kept distinct from
// the sovereign toggles above since it governs the logger, not the domain.
type LoggingConfig struct {
	DebugMode  bool     `yaml:"debug_mode"`
	JSONFormat bool     `yaml:"json_format"`
	Categories []string `yaml:"categories"`
}

// DefaultConfig mirrors the Rust SovereignConfig defaults exactly.
func DefaultConfig() *Config {
	return &Config{
		StoragePath:                filepath.Join(".", "pagi_knowledge"),
		FirewallStrictMode:         false,
		AstroLogicEnabled:          true,
		AstroAlertsEnabled:         true,
		SovereigntyAutoRankEnabled: true,
		SkillsAutoPromoteAllowed:   false,
		KB08SuccessLogging:         true,
		KB08LoggingLevel:           "full",
		StrictTechnicalMode:        false,
		DailyCheckinEnabled:        true,
		EveningAuditEnabled:        true,
		AuditStartHour:             18,
		FocusShieldEnabled:         false,
		VitalityShieldEnabled:      false,
		HumanityRatio:              0.7,
		ArchetypeAutoSwitchEnabled: true,
		ForgeSafetyEnabled:         true,
		SovereignProtocolsEnabled:  false,
		ProtectedSkills:            []string{"evolution", "orchestrator", "gateway", "manifest"},
		TickRateSecs:               5,
		Logging: LoggingConfig{
			DebugMode:  false,
			JSONFormat: false,
		},
	}
}

// Load reads YAML defaults from path (if present) then applies environment
// overrides. A missing file is not an error — defaults are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PAGI_STORAGE_PATH"); v != "" {
		c.StoragePath = v
	}
	c.ShadowKeyHex = os.Getenv("PAGI_SHADOW_KEY")
	c.SovereignKey = os.Getenv("PAGI_SOVEREIGN_KEY")

	c.FirewallStrictMode = envBool("PAGI_FIREWALL_STRICT_MODE", c.FirewallStrictMode)
	c.AstroLogicEnabled = envBool("PAGI_ASTRO_LOGIC_ENABLED", c.AstroLogicEnabled)

	transit := envBool("PAGI_TRANSIT_ALERTS_ENABLED", c.AstroAlertsEnabled)
	c.AstroAlertsEnabled = envBool("PAGI_ASTRO_ALERTS_ENABLED", transit)

	sovereignty := envBool("PAGI_SOVEREIGNTY_AUTO_RANK_ENABLED", c.SovereigntyAutoRankEnabled)
	sovereignty = envBool("PAGI_SOVEREIGNTY_AUTO_RANK", sovereignty)
	c.SovereigntyAutoRankEnabled = sovereignty

	c.SkillsAutoPromoteAllowed = envBool("PAGI_SKILLS_AUTO_PROMOTE_ALLOWED", c.SkillsAutoPromoteAllowed)
	c.KB08SuccessLogging = envBool("PAGI_KB08_SUCCESS_LOGGING", c.KB08SuccessLogging)
	c.KB08LoggingLevel = envKB08Level(c.KB08LoggingLevel)
	c.StrictTechnicalMode = envBool("PAGI_STRICT_TECHNICAL_MODE", c.StrictTechnicalMode)
	c.DailyCheckinEnabled = envBool("PAGI_DAILY_CHECKIN_ENABLED", c.DailyCheckinEnabled)
	c.EveningAuditEnabled = envBool("PAGI_EVENING_AUDIT_ENABLED", c.EveningAuditEnabled)
	c.AuditStartHour = envAuditStartHour(c.AuditStartHour)
	c.FocusShieldEnabled = envBool("PAGI_FOCUS_SHIELD_ENABLED", c.FocusShieldEnabled)
	c.VitalityShieldEnabled = envBool("MS_GRAPH_HEALTH_ENABLED", c.VitalityShieldEnabled)
	c.HumanityRatio = envHumanityRatio(c.HumanityRatio)

	if v := envOptString("PAGI_PRIMARY_ARCHETYPE"); v != "" {
		c.PrimaryArchetype = v
	}
	if v := envOptString("PAGI_SECONDARY_ARCHETYPE"); v != "" {
		c.SecondaryArchetype = v
	}
	if v := envOptString("PAGI_ARCHETYPE_OVERRIDE"); v != "" {
		c.ArchetypeOverride = v
	}
	c.ArchetypeAutoSwitchEnabled = envBool("PAGI_ARCHETYPE_AUTO_SWITCH", c.ArchetypeAutoSwitchEnabled)
	c.ForgeSafetyEnabled = envBool("PAGI_FORGE_SAFETY_ENABLED", c.ForgeSafetyEnabled)
	c.SovereignProtocolsEnabled = envBool("SOVEREIGN_PROTOCOLS_ENABLED", c.SovereignProtocolsEnabled)
	c.TickRateSecs = envTickRateSecs(c.TickRateSecs)

	if v := os.Getenv("PAGI_DEBUG"); v != "" {
		c.Logging.DebugMode = strings.EqualFold(strings.TrimSpace(v), "true")
	}
}

// KB08LoggingFull reports whether success metrics should log at full
// verbosity ("full" is the only non-minimal value, matching the original).
func (c *Config) KB08LoggingFull() bool {
	return strings.EqualFold(strings.TrimSpace(c.KB08LoggingLevel), "full")
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}

func envKB08Level(def string) string {
	v, ok := os.LookupEnv("PAGI_KB08_LOGGING_LEVEL")
	if !ok {
		return def
	}
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "minimal" {
		return "minimal"
	}
	return "full"
}

func envAuditStartHour(def int) int {
	v, ok := os.LookupEnv("PAGI_AUDIT_START_HOUR")
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 18
	}
	if n < 0 {
		n = 0
	}
	if n > 23 {
		n = 23
	}
	return n
}

func envHumanityRatio(def float32) float32 {
	v, ok := os.LookupEnv("PAGI_HUMANITY_RATIO")
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		return 0.7
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return float32(f)
}

func envOptString(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func envTickRateSecs(def int) int {
	v, ok := os.LookupEnv("PAGI_TICK_RATE_SECS")
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// TickInterval is the heartbeat loop's configured interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickRateSecs) * time.Second
}
