// config.go - Kern-Konfigurationsfunktionen
//
// Was von der urspruenglichen Konfigurationsschicht hier bleibt: der
// generische Var/LogLevel-Unterbau, den jede andere Konfigurationsdatei
// in diesem Paket benutzt. Die HTTP-Server-, Registry- und
// GPU-Scheduling-Variablen (Host, AllowedOrigins, Models, KeepAlive,
// LoadTimeout, Remotes) gehoeren zum Ollama-Server, den dieser Kern
// nicht enthaelt, und sind entfernt.
//
// Weitere Konfigurationen:
// - config_llamacore.go: Tuning-Variablen dieses Kerns
// - config_utils.go: Getter-Bausteine und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via LLAMACORE_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("LLAMACORE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
