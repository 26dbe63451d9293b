// Package config loads, normalizes, and validates histosync configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a neighbouring .env file and honours
// environment fallbacks for dataset passwords such as
// HISTOSYNC_<DATASET>_PASSWORD. Dataset tables describe the remote archive
// each dataset lives in; everything else tunes the local host.
package config
