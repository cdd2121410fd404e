// Package config loads nvrdl settings from an optional TOML file and the
// environment.
//
// Resolution order:
//
//  1. An explicitly provided path, otherwise ~/.config/nvrdl/config.toml
//  2. A missing file falls back to built-in defaults
//  3. Empty or absent fields keep their defaults
//  4. LAVIEW_NVR_USER and LAVIEW_NVR_PASS override file credentials
//
// Command-line flags are applied on top of the loaded Config by the caller.
// The file is never written.
package config
