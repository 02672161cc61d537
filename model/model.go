// model.go - Modell-Konstruktion und Device-Routing
//
// Ein globaler CPU/Accelerator-Umschalter wird zu einem expliziten Enum
// auf dem Driver, das bei der Session-Erzeugung uebergeben wird statt
// aus einem prozessweiten Flag gelesen zu werden. Gegenueber einem
// Registry/Reflection-Mechanismus, der zur Laufzeit zwischen Dutzenden
// Architekturen waehlt und Felder per reflect.Value befuellt, ist
// dieser Kern auf eine einzelne LLaMA-Familien-Architektur
// spezialisiert: Config/Weights werden direkt vom Aufrufer
// (ueblicherweise dem loader-Paket) konstruiert statt ueber eine
// Architektur-String-Registry aufgeloest zu werden.
package model

import (
	"fmt"

	"github.com/inferned/llamacore/kernel"
)

// Device selects which execution path the per-layer driver routes
// through. DeviceAccelerator is reserved for a future backend that
// schedules these kernels on a GPU dispatch framework; choosing it
// today returns an error from New.
type Device int

const (
	DeviceCPU Device = iota
	DeviceAccelerator
)

func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceAccelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("Device(%d)", int(d))
	}
}

func errUnsupportedDevice(d Device) error {
	return fmt.Errorf("model: device %v has no implementation in this core", d)
}

// Model bundles an immutable Config and Weights with the CPU-side
// resources (rotation table, worker pool size) needed to run a forward
// pass.
type Model struct {
	Config
	Weights *Weights

	device     Device
	maxWorkers int
	ropeTable  *kernel.RotationTable
}

// New validates cfg and w, then builds a Model ready for Forward calls.
// maxWorkers bounds the CPU data-parallel fan-out; pass 1 to run every
// kernel sequentially.
func New(cfg Config, w *Weights, device Device, maxWorkers int) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := w.Validate(cfg); err != nil {
		return nil, err
	}
	if device != DeviceCPU {
		return nil, errUnsupportedDevice(device)
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	return &Model{
		Config:     cfg,
		Weights:    w,
		device:     device,
		maxWorkers: maxWorkers,
		ropeTable:  kernel.NewRotationTable(cfg.ContextLength, cfg.HeadSize, cfg.ropeFreqBase()),
	}, nil
}

// Device reports the execution path this Model was constructed with.
func (m *Model) Device() Device {
	return m.device
}
