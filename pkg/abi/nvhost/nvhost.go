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

// Package nvhost describes the graphics-host channel ABI: the records that
// clients stream to a channel to describe a submission, and the channel
// control (ioctl) catalogue.
//
// A submission stream is a SubmitHeader followed by exactly the record counts
// the header declares, in this order: cmdbufs, relocations, wait-checks, and
// (submit version >= 2 only) relocation shifts. All records are fixed-size in
// host byte order.
package nvhost

import (
	"gvisor.dev/gvisor/pkg/hostarch"
)

// Submit protocol versions.
const (
	SubmitVersion0 = 0 // legacy header; shift field rides in each reloc
	SubmitVersion1 = 1 // extended header
	SubmitVersion2 = 2 // relocation shifts arrive as separate trailing records

	// SubmitVersionMax is the newest version the host accepts. Headers
	// carrying a larger version are rejected before any state changes.
	SubmitVersionMax = SubmitVersion2
)

// Channel priorities. Client timeslice weight, not a scheduling class.
const (
	PriorityLow    = 50
	PriorityMedium = 100
	PriorityHigh   = 150
)

// Record sizes in bytes.
const (
	SizeofSubmitHeader    = 20
	SizeofSubmitHeaderExt = 48
	SizeofCmdbuf          = 12
	SizeofReloc           = 16
	SizeofRelocLegacy     = 20
	SizeofRelocShift      = 4
	SizeofWaitchk         = 16
)

// SubmitHeader is the legacy (version 0) submission header. Streamed headers
// are always read in this shape; the session forces the submit version to
// SubmitVersion0.
type SubmitHeader struct {
	SyncptID    uint32
	SyncptIncrs uint32
	NumCmdbufs  uint32
	NumRelocs   uint32
	NumWaitchks uint32
}

// SizeBytes returns the wire size of h.
func (h *SubmitHeader) SizeBytes() int {
	return SizeofSubmitHeader
}

// MarshalBytes serializes h into the start of dst and returns the remainder.
func (h *SubmitHeader) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], h.SyncptID)
	hostarch.ByteOrder.PutUint32(dst[4:8], h.SyncptIncrs)
	hostarch.ByteOrder.PutUint32(dst[8:12], h.NumCmdbufs)
	hostarch.ByteOrder.PutUint32(dst[12:16], h.NumRelocs)
	hostarch.ByteOrder.PutUint32(dst[16:20], h.NumWaitchks)
	return dst[SizeofSubmitHeader:]
}

// UnmarshalBytes deserializes h from the start of src and returns the
// remainder.
func (h *SubmitHeader) UnmarshalBytes(src []byte) []byte {
	h.SyncptID = hostarch.ByteOrder.Uint32(src[:4])
	h.SyncptIncrs = hostarch.ByteOrder.Uint32(src[4:8])
	h.NumCmdbufs = hostarch.ByteOrder.Uint32(src[8:12])
	h.NumRelocs = hostarch.ByteOrder.Uint32(src[12:16])
	h.NumWaitchks = hostarch.ByteOrder.Uint32(src[16:20])
	return src[SizeofSubmitHeader:]
}

// SubmitHeaderExt is the extended submission header, accepted via the
// extended-submit control op. Version 0 fields first, then the version 1
// extension.
type SubmitHeaderExt struct {
	SyncptID       uint32
	SyncptIncrs    uint32
	NumCmdbufs     uint32
	NumRelocs      uint32
	NumWaitchks    uint32
	SubmitVersion  uint32
	NumRelocShifts uint32
	MemContext     uint32
	Pad            [4]uint32
}

// SizeBytes returns the wire size of h.
func (h *SubmitHeaderExt) SizeBytes() int {
	return SizeofSubmitHeaderExt
}

// MarshalBytes serializes h into the start of dst and returns the remainder.
func (h *SubmitHeaderExt) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], h.SyncptID)
	hostarch.ByteOrder.PutUint32(dst[4:8], h.SyncptIncrs)
	hostarch.ByteOrder.PutUint32(dst[8:12], h.NumCmdbufs)
	hostarch.ByteOrder.PutUint32(dst[12:16], h.NumRelocs)
	hostarch.ByteOrder.PutUint32(dst[16:20], h.NumWaitchks)
	hostarch.ByteOrder.PutUint32(dst[20:24], h.SubmitVersion)
	hostarch.ByteOrder.PutUint32(dst[24:28], h.NumRelocShifts)
	hostarch.ByteOrder.PutUint32(dst[28:32], h.MemContext)
	dst = dst[32:]
	for i := range h.Pad {
		hostarch.ByteOrder.PutUint32(dst[:4], h.Pad[i])
		dst = dst[4:]
	}
	return dst
}

// UnmarshalBytes deserializes h from the start of src and returns the
// remainder.
func (h *SubmitHeaderExt) UnmarshalBytes(src []byte) []byte {
	h.SyncptID = hostarch.ByteOrder.Uint32(src[:4])
	h.SyncptIncrs = hostarch.ByteOrder.Uint32(src[4:8])
	h.NumCmdbufs = hostarch.ByteOrder.Uint32(src[8:12])
	h.NumRelocs = hostarch.ByteOrder.Uint32(src[12:16])
	h.NumWaitchks = hostarch.ByteOrder.Uint32(src[16:20])
	h.SubmitVersion = hostarch.ByteOrder.Uint32(src[20:24])
	h.NumRelocShifts = hostarch.ByteOrder.Uint32(src[24:28])
	h.MemContext = hostarch.ByteOrder.Uint32(src[28:32])
	src = src[32:]
	for i := range h.Pad {
		h.Pad[i] = hostarch.ByteOrder.Uint32(src[:4])
		src = src[4:]
	}
	return src
}

// Cmdbuf references a region of a command buffer to be gathered by the
// channel. The referenced memory is resolved at pin time, not copied.
type Cmdbuf struct {
	Mem    uint32 // memory handle
	Words  uint32
	Offset uint32 // byte offset into the handle
}

// SizeBytes returns the wire size of c.
func (c *Cmdbuf) SizeBytes() int {
	return SizeofCmdbuf
}

// MarshalBytes serializes c into the start of dst and returns the remainder.
func (c *Cmdbuf) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], c.Mem)
	hostarch.ByteOrder.PutUint32(dst[4:8], c.Words)
	hostarch.ByteOrder.PutUint32(dst[8:12], c.Offset)
	return dst[SizeofCmdbuf:]
}

// UnmarshalBytes deserializes c from the start of src and returns the
// remainder.
func (c *Cmdbuf) UnmarshalBytes(src []byte) []byte {
	c.Mem = hostarch.ByteOrder.Uint32(src[:4])
	c.Words = hostarch.ByteOrder.Uint32(src[4:8])
	c.Offset = hostarch.ByteOrder.Uint32(src[8:12])
	return src[SizeofCmdbuf:]
}

// Reloc patches a pointer-sized field inside a cmdbuf with the pinned address
// of a target handle. In submit versions >= 2 the shift arrives separately as
// a trailing RelocShift record; earlier versions use RelocLegacy.
type Reloc struct {
	CmdbufMem    uint32
	CmdbufOffset uint32
	Target       uint32
	TargetOffset uint32
}

// SizeBytes returns the wire size of r.
func (r *Reloc) SizeBytes() int {
	return SizeofReloc
}

// MarshalBytes serializes r into the start of dst and returns the remainder.
func (r *Reloc) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], r.CmdbufMem)
	hostarch.ByteOrder.PutUint32(dst[4:8], r.CmdbufOffset)
	hostarch.ByteOrder.PutUint32(dst[8:12], r.Target)
	hostarch.ByteOrder.PutUint32(dst[12:16], r.TargetOffset)
	return dst[SizeofReloc:]
}

// UnmarshalBytes deserializes r from the start of src and returns the
// remainder.
func (r *Reloc) UnmarshalBytes(src []byte) []byte {
	r.CmdbufMem = hostarch.ByteOrder.Uint32(src[:4])
	r.CmdbufOffset = hostarch.ByteOrder.Uint32(src[4:8])
	r.Target = hostarch.ByteOrder.Uint32(src[8:12])
	r.TargetOffset = hostarch.ByteOrder.Uint32(src[12:16])
	return src[SizeofReloc:]
}

// RelocLegacy is a relocation with the shift inline, used by submit versions
// below 2.
type RelocLegacy struct {
	Reloc
	Shift uint32
}

// SizeBytes returns the wire size of r.
func (r *RelocLegacy) SizeBytes() int {
	return SizeofRelocLegacy
}

// MarshalBytes serializes r into the start of dst and returns the remainder.
func (r *RelocLegacy) MarshalBytes(dst []byte) []byte {
	dst = r.Reloc.MarshalBytes(dst)
	hostarch.ByteOrder.PutUint32(dst[:4], r.Shift)
	return dst[4:]
}

// UnmarshalBytes deserializes r from the start of src and returns the
// remainder.
func (r *RelocLegacy) UnmarshalBytes(src []byte) []byte {
	src = r.Reloc.UnmarshalBytes(src)
	r.Shift = hostarch.ByteOrder.Uint32(src[:4])
	return src[4:]
}

// RelocShift patches the shift of an already-received relocation. Shift
// records apply to relocations in arrival order.
type RelocShift struct {
	Shift uint32
}

// SizeBytes returns the wire size of r.
func (r *RelocShift) SizeBytes() int {
	return SizeofRelocShift
}

// MarshalBytes serializes r into the start of dst and returns the remainder.
func (r *RelocShift) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], r.Shift)
	return dst[SizeofRelocShift:]
}

// UnmarshalBytes deserializes r from the start of src and returns the
// remainder.
func (r *RelocShift) UnmarshalBytes(src []byte) []byte {
	r.Shift = hostarch.ByteOrder.Uint32(src[:4])
	return src[SizeofRelocShift:]
}

// Waitchk makes the channel wait until a syncpoint reaches a threshold before
// executing the gather that references Mem at Offset.
type Waitchk struct {
	Mem      uint32
	Offset   uint32
	SyncptID uint32
	Thresh   uint32
}

// SizeBytes returns the wire size of w.
func (w *Waitchk) SizeBytes() int {
	return SizeofWaitchk
}

// MarshalBytes serializes w into the start of dst and returns the remainder.
func (w *Waitchk) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], w.Mem)
	hostarch.ByteOrder.PutUint32(dst[4:8], w.Offset)
	hostarch.ByteOrder.PutUint32(dst[8:12], w.SyncptID)
	hostarch.ByteOrder.PutUint32(dst[12:16], w.Thresh)
	return dst[SizeofWaitchk:]
}

// UnmarshalBytes deserializes w from the start of src and returns the
// remainder.
func (w *Waitchk) UnmarshalBytes(src []byte) []byte {
	w.Mem = hostarch.ByteOrder.Uint32(src[:4])
	w.Offset = hostarch.ByteOrder.Uint32(src[4:8])
	w.SyncptID = hostarch.ByteOrder.Uint32(src[8:12])
	w.Thresh = hostarch.ByteOrder.Uint32(src[12:16])
	return src[SizeofWaitchk:]
}
