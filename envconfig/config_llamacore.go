// config_llamacore.go - Prozessweite Tuning-Variablen fuer den Inferenz-Kern
//
// Werte, die nicht Teil der vom Modell geladenen Configuration sind,
// sondern Eigenschaften des Prozesses, in dem der Kern laeuft.
package envconfig

var (
	// CoreMaxWorkers begrenzt den CPU-Daten-Parallelismus in kernel.ParallelFor.
	// 0 bedeutet "dem Aufrufer ueberlassen" (cmd/llamacore faellt dann auf
	// einen einzigen Worker zurueck).
	// Konfigurierbar via LLAMACORE_MAX_WORKERS.
	CoreMaxWorkers = Uint("LLAMACORE_MAX_WORKERS", 0)

	// CoreRopeFreqBase ueberschreibt die vom Loader ermittelte Rotationsbasis,
	// falls ein Experiment eine andere als die im GGUF-Metadaten gefundene
	// Basis erzwingen soll. 0 bedeutet "Loader-Wert verwenden".
	// Konfigurierbar via LLAMACORE_ROPE_FREQ_BASE.
	CoreRopeFreqBase = Uint("LLAMACORE_ROPE_FREQ_BASE", 0)
)
