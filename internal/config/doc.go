// Package config loads scriptbridge settings.
//
// Settings come from three layers, later layers overriding earlier ones:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension
//  3. Environment variables with the SCRIPTBRIDGE_ prefix, such as
//     SCRIPTBRIDGE_HOST_FRAME_RATE=30 for host.frame_rate
//
// Command-line overrides are applied on top with WithOverrides. The merged
// map is decoded into Config with mapstructure and validated.
//
// Example file:
//
//	[bridge]
//	single_slot = false
//	drain = ["stop"]
//	shutdown_timeout = "5s"
//
//	[script]
//	dir = "./lua"
//	main_module = "dolphin"
//
//	[host]
//	frame_rate = 60
//
//	[logging]
//	level = "info"
//	format = "console"
//
//	[metrics]
//	addr = ":9100"
//
//	[autorun]
//	dir = "./autorun"
package config
