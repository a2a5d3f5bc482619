// Package config loads, defaults, and validates billsync configuration.
//
// Configuration lives in a TOML file (default ~/.config/billsync/config.toml,
// or billsync.toml in the working directory). Credentials can be overridden
// through environment variables so secrets never have to touch disk. The
// resulting Config is immutable after Load and passed explicitly into every
// component; nothing reads configuration ambiently.
package config
