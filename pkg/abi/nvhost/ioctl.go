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

package nvhost

import (
	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/hostarch"
)

// IoctlMagic is the IOC_TYPE of all channel control ops.
const IoctlMagic = uint32('H')

// IoctlType extracts the IOC_TYPE byte of a command word.
func IoctlType(cmd uint32) uint32 {
	return (cmd >> 8) & 0xff
}

// Channel control op numbers (the IOC_NR part of the command word).
const (
	IoctlChannelFlush         = 1
	IoctlChannelGetSyncpoints = 2
	IoctlChannelGetWaitbases  = 3
	IoctlChannelGetModMutexes = 4
	IoctlChannelSetMemContext = 5
	IoctlChannelNullKickoff   = 6
	IoctlChannelSubmitExt     = 7
	IoctlChannelReadReg       = 8
	IoctlChannelGetClkRate    = 9
	IoctlChannelSetClkRate    = 10
	IoctlChannelSetTimeout    = 11
	IoctlChannelGetTimedout   = 12
	IoctlChannelSetPriority   = 13

	IoctlChannelLast = IoctlChannelSetPriority

	// IoctlChannelMaxArgSize bounds the argument size of every channel
	// control op.
	IoctlChannelMaxArgSize = SizeofSubmitHeaderExt
)

// Full command words for the channel control catalogue.
var (
	CmdChannelFlush         = linux.IOR(IoctlMagic, IoctlChannelFlush, SizeofGetParamArgs)
	CmdChannelGetSyncpoints = linux.IOR(IoctlMagic, IoctlChannelGetSyncpoints, SizeofGetParamArgs)
	CmdChannelGetWaitbases  = linux.IOR(IoctlMagic, IoctlChannelGetWaitbases, SizeofGetParamArgs)
	CmdChannelGetModMutexes = linux.IOR(IoctlMagic, IoctlChannelGetModMutexes, SizeofGetParamArgs)
	CmdChannelSetMemContext = linux.IOW(IoctlMagic, IoctlChannelSetMemContext, SizeofSetMemContextArgs)
	CmdChannelNullKickoff   = linux.IOR(IoctlMagic, IoctlChannelNullKickoff, SizeofGetParamArgs)
	CmdChannelSubmitExt     = linux.IOW(IoctlMagic, IoctlChannelSubmitExt, SizeofSubmitHeaderExt)
	CmdChannelReadReg       = linux.IOWR(IoctlMagic, IoctlChannelReadReg, SizeofReadRegArgs)
	CmdChannelGetClkRate    = linux.IOR(IoctlMagic, IoctlChannelGetClkRate, SizeofClkRateArgs)
	CmdChannelSetClkRate    = linux.IOW(IoctlMagic, IoctlChannelSetClkRate, SizeofClkRateArgs)
	CmdChannelSetTimeout    = linux.IOW(IoctlMagic, IoctlChannelSetTimeout, SizeofSetTimeoutArgs)
	CmdChannelGetTimedout   = linux.IOR(IoctlMagic, IoctlChannelGetTimedout, SizeofGetParamArgs)
	CmdChannelSetPriority   = linux.IOW(IoctlMagic, IoctlChannelSetPriority, SizeofSetPriorityArgs)
)

// Control op argument sizes in bytes.
const (
	SizeofGetParamArgs      = 4
	SizeofSetMemContextArgs = 4
	SizeofReadRegArgs       = 8
	SizeofClkRateArgs       = 8
	SizeofSetTimeoutArgs    = 4
	SizeofSetPriorityArgs   = 4
)

// GetParamArgs is the argument type of the single-value query ops (flush,
// syncpoint/waitbase/mutex masks, timed-out).
type GetParamArgs struct {
	Value uint32
}

// SizeBytes returns the wire size of a.
func (a *GetParamArgs) SizeBytes() int {
	return SizeofGetParamArgs
}

// MarshalBytes serializes a into the start of dst and returns the remainder.
func (a *GetParamArgs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], a.Value)
	return dst[SizeofGetParamArgs:]
}

// UnmarshalBytes deserializes a from the start of src and returns the
// remainder.
func (a *GetParamArgs) UnmarshalBytes(src []byte) []byte {
	a.Value = hostarch.ByteOrder.Uint32(src[:4])
	return src[SizeofGetParamArgs:]
}

// SetMemContextArgs is the argument type of the set-memory-context op.
type SetMemContextArgs struct {
	Context uint32
}

// SizeBytes returns the wire size of a.
func (a *SetMemContextArgs) SizeBytes() int {
	return SizeofSetMemContextArgs
}

// MarshalBytes serializes a into the start of dst and returns the remainder.
func (a *SetMemContextArgs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], a.Context)
	return dst[SizeofSetMemContextArgs:]
}

// UnmarshalBytes deserializes a from the start of src and returns the
// remainder.
func (a *SetMemContextArgs) UnmarshalBytes(src []byte) []byte {
	a.Context = hostarch.ByteOrder.Uint32(src[:4])
	return src[SizeofSetMemContextArgs:]
}

// ReadRegArgs is the argument type of the register-read passthrough.
type ReadRegArgs struct {
	Offset uint32
	Value  uint32
}

// SizeBytes returns the wire size of a.
func (a *ReadRegArgs) SizeBytes() int {
	return SizeofReadRegArgs
}

// MarshalBytes serializes a into the start of dst and returns the remainder.
func (a *ReadRegArgs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], a.Offset)
	hostarch.ByteOrder.PutUint32(dst[4:8], a.Value)
	return dst[SizeofReadRegArgs:]
}

// UnmarshalBytes deserializes a from the start of src and returns the
// remainder.
func (a *ReadRegArgs) UnmarshalBytes(src []byte) []byte {
	a.Offset = hostarch.ByteOrder.Uint32(src[:4])
	a.Value = hostarch.ByteOrder.Uint32(src[4:8])
	return src[SizeofReadRegArgs:]
}

// ClkRateArgs is the argument type of the clock-rate get/set ops.
type ClkRateArgs struct {
	Rate uint64
}

// SizeBytes returns the wire size of a.
func (a *ClkRateArgs) SizeBytes() int {
	return SizeofClkRateArgs
}

// MarshalBytes serializes a into the start of dst and returns the remainder.
func (a *ClkRateArgs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[:8], a.Rate)
	return dst[SizeofClkRateArgs:]
}

// UnmarshalBytes deserializes a from the start of src and returns the
// remainder.
func (a *ClkRateArgs) UnmarshalBytes(src []byte) []byte {
	a.Rate = hostarch.ByteOrder.Uint64(src[:8])
	return src[SizeofClkRateArgs:]
}

// SetTimeoutArgs is the argument type of the set-timeout op. Timeout is in
// milliseconds; zero disables timeout detection.
type SetTimeoutArgs struct {
	Timeout uint32
}

// SizeBytes returns the wire size of a.
func (a *SetTimeoutArgs) SizeBytes() int {
	return SizeofSetTimeoutArgs
}

// MarshalBytes serializes a into the start of dst and returns the remainder.
func (a *SetTimeoutArgs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], a.Timeout)
	return dst[SizeofSetTimeoutArgs:]
}

// UnmarshalBytes deserializes a from the start of src and returns the
// remainder.
func (a *SetTimeoutArgs) UnmarshalBytes(src []byte) []byte {
	a.Timeout = hostarch.ByteOrder.Uint32(src[:4])
	return src[SizeofSetTimeoutArgs:]
}

// SetPriorityArgs is the argument type of the set-priority op.
type SetPriorityArgs struct {
	Priority uint32
}

// SizeBytes returns the wire size of a.
func (a *SetPriorityArgs) SizeBytes() int {
	return SizeofSetPriorityArgs
}

// MarshalBytes serializes a into the start of dst and returns the remainder.
func (a *SetPriorityArgs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], a.Priority)
	return dst[SizeofSetPriorityArgs:]
}

// UnmarshalBytes deserializes a from the start of src and returns the
// remainder.
func (a *SetPriorityArgs) UnmarshalBytes(src []byte) []byte {
	a.Priority = hostarch.ByteOrder.Uint32(src[:4])
	return src[SizeofSetPriorityArgs:]
}
