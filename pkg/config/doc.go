// Package config handles configuration management for riceify.
//
// Configuration is layered with koanf: embedded defaults, then the user's
// riceify.toml, then RICEIFY_* environment variables. The result is decoded
// into an immutable Config that the switch engine reads at transaction start.
//
// A profile definition names the files that belong to a profile (literal
// paths or doublestar globs, relative to the profile root) and the ordering
// dependencies between them:
//
//	[profiles.dark]
//	root = "~"
//	files = [".config/kitty/kitty.conf", ".config/waybar/**/*.css"]
//
//	[[profiles.dark.dependencies]]
//	from = ".config/waybar/colors.css"
//	to = ".config/waybar/style.css"
package config
