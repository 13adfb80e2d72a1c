// Package config loads the watcher's TOML configuration.
//
// # Resolution
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/vrcpulse/config.toml
//  3. If the file doesn't exist, use Default()
//  4. Keys that are missing or blank keep their defaults
//
// # TOML Format
//
//	api_url = "https://api.vrchat.cloud/api/1"
//	user_agent = "vrcpulse/0.1 (+https://github.com/five82/vrcpulse)"
//	request_timeout = "15s"
//	poll_interval = "30s"
//	throttle_cooldown = "10m"
//	activity_capacity = 1000
//	unauthorized_means_second_factor = true
//	export_format = "json"
//	theme = "Nightfox"
//
// Durations use Go syntax. unauthorized_means_second_factor decides how a
// bare 401 from the login endpoint is read: the service answers both
// "wrong password" and "second factor needed" that way on some accounts.
//
// # Error Handling
//
// Load returns errors for unreadable files, TOML syntax errors, bad
// durations or formats, and values that fail Validate. A missing file is
// not an error.
package config
