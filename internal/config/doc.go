// Package config loads minutes service settings. Built-in defaults are
// overlaid by an optional YAML file and then by environment variables;
// credentials.json only supplies credentials that are still missing.
package config
