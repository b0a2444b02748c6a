// Copyright 2026 The nvhost Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package host1x

// Aperture is a device's module register window.
type Aperture interface {
	ReadWord(offset uint32) uint32
	WriteWord(offset uint32, val uint32)
}

// Device describes the engine that owns a channel: its attribute masks and
// its (externally implemented) power, clock and register collaborators.
// Fields are immutable after the device is handed to NewChannel.
type Device struct {
	Name string

	// Syncpts, Waitbases and ModMutexes are the device's attribute masks,
	// surfaced read-only through the control surface.
	Syncpts    uint32
	Waitbases  uint32
	ModMutexes uint32

	// Power and Clock may be nil when the device has no such management.
	Power PowerManager
	Clock ClockManager

	// Aperture must be set for ReadModuleRegs/WriteModuleRegs.
	Aperture Aperture
}

func (d *Device) busy() {
	if d.Power != nil {
		d.Power.Busy()
	}
}

func (d *Device) idle() {
	if d.Power != nil {
		d.Power.Idle()
	}
}

// ReadModuleRegs reads len(vals) consecutive words from the device's
// register aperture starting at offset, holding the device busy for the
// duration.
func (d *Device) ReadModuleRegs(offset uint32, vals []uint32) {
	d.busy()
	for i := range vals {
		vals[i] = d.Aperture.ReadWord(offset + uint32(i)*4)
	}
	d.idle()
}

// WriteModuleRegs writes len(vals) consecutive words to the device's
// register aperture starting at offset, holding the device busy for the
// duration.
func (d *Device) WriteModuleRegs(offset uint32, vals []uint32) {
	d.busy()
	for i := range vals {
		d.Aperture.WriteWord(offset+uint32(i)*4, vals[i])
	}
	d.idle()
}
