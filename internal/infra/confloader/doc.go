// Package confloader loads node configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (MESHKV_SECTION_KEY)
//  3. Configuration file (YAML)
//  4. Defaults already present in the target struct
//
// Watcher reports edits to the configuration file so a running node can
// re-apply the settings that are safe to change live.
package confloader
