package state

import (
	"io"
	"log"

	"eraforge.game/internal/sim/catalogs"
)

// MigrateLegacySave folds deprecated save fields into their current names.
// It only adds to current fields, drops the legacy ones once folded in and
// never fails: values of an unexpected shape are skipped.
func MigrateLegacySave(raw map[string]any, mig catalogs.Migrations, logger *log.Logger) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	// Array of unlocked ids -> boolean map.
	if legacy, ok := raw["unlockedUpgrades"]; ok {
		upgrades := subMap(raw, "upgrades")
		if ids, ok := legacy.([]any); ok {
			for _, v := range ids {
				if id, ok := v.(string); ok && id != "" {
					upgrades[id] = true
				}
			}
		}
		delete(raw, "unlockedUpgrades")
		logger.Printf("migrate: folded unlockedUpgrades into upgrades")
	}

	if era, ok := raw["currentEra"]; ok {
		if _, has := raw["era"]; !has {
			raw["era"] = era
		}
		delete(raw, "currentEra")
	}

	// Flat progression counters from early saves.
	for legacyKey, key := range map[string]string{
		"totalClicks": "total_actions",
		"playTime":    "play_time_seconds",
	} {
		v, ok := raw[legacyKey]
		if !ok {
			continue
		}
		if n, ok := v.(float64); ok {
			prog := subMap(raw, "progression")
			cur, _ := prog[key].(float64)
			prog[key] = cur + n
		}
		delete(raw, legacyKey)
	}
	if v, ok := raw["achievements"]; ok {
		if list, ok := v.([]any); ok {
			prog := subMap(raw, "progression")
			existing, _ := prog["achievements"].([]any)
			prog["achievements"] = append(existing, list...)
		}
		delete(raw, "achievements")
	}

	foldNumericAliases(raw, "resources", mig.ResourceAliases, logger)
	foldNumericAliases(raw, "workers", mig.WorkerAliases, logger)

	if len(mig.UpgradeAliases) > 0 {
		if upgrades, ok := raw["upgrades"].(map[string]any); ok {
			for old, cur := range mig.UpgradeAliases {
				v, ok := upgrades[old]
				if !ok {
					continue
				}
				if b, ok := v.(bool); ok && b {
					upgrades[cur] = true
				}
				delete(upgrades, old)
				logger.Printf("migrate: upgrade %s -> %s", old, cur)
			}
		}
	}
	return raw
}

// foldNumericAliases sums raw[section][old] into raw[section][current].
func foldNumericAliases(raw map[string]any, section string, aliases map[string]string, logger *log.Logger) {
	m, ok := raw[section].(map[string]any)
	if !ok {
		return
	}
	for old, cur := range aliases {
		v, ok := m[old]
		if !ok {
			continue
		}
		if n, ok := v.(float64); ok {
			base, _ := m[cur].(float64)
			m[cur] = base + n
		}
		delete(m, old)
		logger.Printf("migrate: %s %s -> %s", section, old, cur)
	}
}

// subMap returns raw[key] as a map, creating or replacing it when absent or
// of the wrong shape.
func subMap(raw map[string]any, key string) map[string]any {
	if m, ok := raw[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	raw[key] = m
	return m
}
