// Package logging builds the application slog logger: human-readable text on
// the console fanned out to a JSON log file for machine consumption.
package logging
