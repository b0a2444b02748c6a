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

// Package host1x implements the submission front-end of a graphics-host
// command processor: clients stream submission records
// (pkg/abi/nvhost) to a channel session, then flush to pin the referenced
// memory and hand the assembled job to the hardware submission boundary.
//
// Each Session is driven by a single client goroutine; Write, Flush and the
// control ops of one session must not be called concurrently. Channels and
// memory clients are shared across sessions and are reference counted.
package host1x

import (
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/sync"
)

// SyncptGraphicsHost is the host-owned syncpoint index. It is reserved for
// host-internal use and never surfaced to clients.
const SyncptGraphicsHost = 0

// MemoryClient resolves memory handles referenced by submissions and pins
// them for hardware access. Implementations are shared across sessions and
// reference counted; Put releases the caller's reference.
//
// Pin may block while the allocator waits for memory operations.
type MemoryClient interface {
	// Pin makes the handle's backing memory resident and non-relocatable
	// and returns its device address.
	Pin(handle uint32) (uint64, error)

	// Unpin reverses a successful Pin.
	Unpin(handle uint32)

	// Put releases the caller's reference on the client.
	Put()
}

// MemContextResolver resolves a client-supplied memory context selector to a
// MemoryClient, taking a reference on it.
type MemContextResolver interface {
	Get(id uint32) (MemoryClient, error)
}

// Submitter is the hardware submission boundary. It accepts a fully pinned
// job, schedules it onto hardware and returns the syncpoint value that
// signals the job's completion. Submit may block on channel availability.
//
// On success the job's pins are owned by the submitter until the job
// completes; on failure the caller unpins.
type Submitter interface {
	Submit(job *Job) (syncptEnd uint32, err error)
}

// RegisterReader supports the register-read control passthrough. Channels
// whose engine cannot service reads leave it unset.
type RegisterReader interface {
	ReadRegister(offset uint32) (uint32, error)
}

// ClockManager controls the clock of a channel's owning device.
type ClockManager interface {
	GetRate() (uint64, error)
	SetRate(client any, rate uint64) error
}

// PowerManager tracks active clients of a device for power/idle accounting.
type PowerManager interface {
	AddClient(client any)
	RemoveClient(client any)
	Busy()
	Idle()
}

// Host is the graphics host. It allocates client identities, resolves memory
// context selectors and carries the debug policy knobs applied at flush time.
type Host struct {
	memCtxs MemContextResolver

	clientID atomicbitops.Int32

	// Debug knobs. These are flush-time policy, not protocol state.
	debugMu                  sync.Mutex
	debugNullKickoffClient   int32
	debugForceTimeoutClient  int32
	debugForceTimeoutChannel int32
	debugForceTimeoutVal     uint32
}

// Options holds arguments to NewHost.
type Options struct {
	// MemContexts, if set, enables the set-memory-context control op to
	// resolve numeric context selectors.
	MemContexts MemContextResolver
}

// NewHost returns a Host with no channels.
func NewHost(opts Options) *Host {
	return &Host{
		memCtxs: opts.MemContexts,
	}
}

// nextClientID returns a client identifier unique within h. IDs start at 1;
// 0 means "no client" in the debug knobs.
func (h *Host) nextClientID() int32 {
	return h.clientID.Add(1)
}

// SetDebugNullKickoff forces null kickoff for every flush by the given
// client. A zero client ID disables the override.
func (h *Host) SetDebugNullKickoff(clientID int32) {
	h.debugMu.Lock()
	defer h.debugMu.Unlock()
	h.debugNullKickoffClient = clientID
}

// SetDebugForceTimeout overrides the job timeout for flushes by clientID on
// the channel with the given ID. A zero client ID disables the override.
func (h *Host) SetDebugForceTimeout(clientID, channelID int32, timeoutMS uint32) {
	h.debugMu.Lock()
	defer h.debugMu.Unlock()
	h.debugForceTimeoutClient = clientID
	h.debugForceTimeoutChannel = channelID
	h.debugForceTimeoutVal = timeoutMS
}

// flushOverrides returns the debug adjustments that apply to a flush by
// clientID on channelID.
func (h *Host) flushOverrides(clientID, channelID int32) (forceNull bool, forceTimeout bool, timeoutMS uint32) {
	h.debugMu.Lock()
	defer h.debugMu.Unlock()
	forceNull = h.debugNullKickoffClient != 0 && h.debugNullKickoffClient == clientID
	if h.debugForceTimeoutClient != 0 && h.debugForceTimeoutClient == clientID && h.debugForceTimeoutChannel == channelID {
		forceTimeout = true
		timeoutMS = h.debugForceTimeoutVal
	}
	return
}
