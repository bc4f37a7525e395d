// Package config handles configuration loading for limimin.
//
// # Configuration File
//
// Location (first match wins):
//
//  1. Path from LIMIMIN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/limimin/config.toml
//  3. ~/.config/limimin/config.toml
//
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
//
// # Environment Variables
//
// Values can reference the environment with ${VAR_NAME}:
//
//	[matrix]
//	password = "${LIMIMIN_PASSWORD}"
//
// After parsing, LIMIMIN_<SECTION>_<KEY> variables override file values, e.g.
// LIMIMIN_MATRIX_HOMESERVER, LIMIMIN_STORAGE_DRIVER, LIMIMIN_BOT_ALLOWED_ROOMS
// (comma separated) and LIMIMIN_LOG_LEVEL.
//
// # Sections
//
//	[matrix]
//	homeserver   = "https://matrix.example.org"
//	user_id      = "@limimin:example.org"
//	access_token = "${MATRIX_TOKEN}"   # or username + password
//	recovery_key = ""                  # enables end-to-end encryption
//
//	[bot]
//	command_prefix = "!"
//	allowed_rooms  = []                # empty allows every joined room
//
//	[storage]
//	driver   = "json"                  # json or sqlite
//	data_dir = "~/.local/share/limimin"
//
//	[provision]
//	catalog_url     = "http://unisonleague.wikia.com/wiki/Stamps"
//	request_timeout = "30s"
//	skip_on_start   = false
//
//	[logging]
//	level  = "info"                    # debug, info, warn, error
//	format = "text"                    # text, json
package config
