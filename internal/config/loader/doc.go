// Package loader reads configuration sources into generic maps.
//
// FileLoader parses TOML or YAML by extension, EnvLoader maps prefixed
// variables onto dotted paths and Static wraps a fixed map. MergeAll combines
// them with DeepMerge, later sources overriding earlier ones.
package loader
