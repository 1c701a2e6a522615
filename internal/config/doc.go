// Package config loads gridder's configuration file.
//
// # Overview
//
// A config describes one grid: the CRUD API base URL, the resource to show,
// its declared columns and behaviors, and where view state is kept. Every
// field is optional; empty values take defaults so gridder runs without a
// file at all.
//
// # Configuration Discovery
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/gridder/config.toml
//  3. If the file doesn't exist, use defaults
//
// Files ending in .yaml or .yml are parsed as YAML; everything else is TOML.
//
// # Example
//
//	api_url = "https://admin.example.com/api"
//	resource = "articles"
//	columns = ["id", "title", "status", "author"]
//	search_fields = ["title", "body"]
//	per_page = 50
//	poll_interval = "10s"
//
//	[grouping]
//	enabled = true
//	field = "status"
//	pivot_field = "author"
//
//	[store]
//	backend = "sqlite"   # file, sqlite or memory
//	remote = true        # mirror preferences to the API
//
// Durations use Go syntax ("800ms", "5s"). "off" or "0" disables polling.
//
// # Errors
//
// Load fails on unreadable files, parse errors and values outside their
// allowed set (view mode, pagination style, store backend). A missing file is
// not an error.
package config
