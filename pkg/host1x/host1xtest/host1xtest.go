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

// Package host1xtest provides in-memory implementations of the host1x
// collaborator interfaces, and a builder for submission byte streams.
package host1xtest

import (
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/sync"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
	"nvhost.dev/nvhost/pkg/host1x"
)

// Memory is an in-memory host1x.MemoryClient. Pinned handles resolve to
// synthetic device addresses derived from the handle value.
type Memory struct {
	mu sync.Mutex

	// FailPinAt makes the Nth pin call (0-based) fail with ENOMEM; -1
	// disables injection.
	FailPinAt int

	pinCalls   int
	unpinCalls int
	putCalls   int
	pinned     map[uint32]int
}

// NewMemory returns a Memory with no pinned handles and no fault injection.
func NewMemory() *Memory {
	return &Memory{
		FailPinAt: -1,
		pinned:    make(map[uint32]int),
	}
}

// Pin implements host1x.MemoryClient.Pin.
func (m *Memory) Pin(handle uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPinAt >= 0 && m.pinCalls == m.FailPinAt {
		return 0, linuxerr.ENOMEM
	}
	m.pinCalls++
	m.pinned[handle]++
	return 0x8000_0000 + uint64(handle)<<12, nil
}

// Unpin implements host1x.MemoryClient.Unpin.
func (m *Memory) Unpin(handle uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unpinCalls++
	m.pinned[handle]--
}

// Put implements host1x.MemoryClient.Put.
func (m *Memory) Put() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
}

// PinCalls returns the number of successful pins.
func (m *Memory) PinCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinCalls
}

// UnpinCalls returns the number of unpins.
func (m *Memory) UnpinCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unpinCalls
}

// PutCalls returns the number of reference releases.
func (m *Memory) PutCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCalls
}

// PinCount returns the current pin count of handle.
func (m *Memory) PinCount(handle uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinned[handle]
}

// Registry maps context selectors to memory clients; it implements
// host1x.MemContextResolver.
type Registry struct {
	Contexts map[uint32]*Memory
}

// Get implements host1x.MemContextResolver.Get.
func (r *Registry) Get(id uint32) (host1x.MemoryClient, error) {
	m, ok := r.Contexts[id]
	if !ok {
		return nil, linuxerr.EBADF
	}
	return m, nil
}

// SubmittedJob is a snapshot of a job at the moment it crossed the
// submission boundary.
type SubmittedJob struct {
	SyncptID    uint32
	SyncptIncrs uint32
	SyncptEnd   uint32
	Timeout     uint32
	Priority    uint32
	ClientID    int32
	NullKickoff bool
	Gathers     []host1x.Gather
	Pins        []host1x.PinEntry
	Waitchks    []nvhost.Waitchk
}

// Submitter is an in-memory hardware submission boundary. It keeps one
// monotonic counter per syncpoint and snapshots every submitted job.
type Submitter struct {
	mu sync.Mutex

	// Err, if set, is returned by the next Submit call.
	Err error

	jobs       []SubmittedJob
	syncpts    map[uint32]uint32
	closeCalls int
}

// NewSubmitter returns a Submitter with all syncpoint counters at zero.
func NewSubmitter() *Submitter {
	return &Submitter{
		syncpts: make(map[uint32]uint32),
	}
}

// Submit implements host1x.Submitter.Submit.
func (s *Submitter) Submit(job *host1x.Job) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		err := s.Err
		s.Err = nil
		return 0, err
	}
	s.syncpts[job.SyncptID] += job.SyncptIncrs
	end := s.syncpts[job.SyncptID]
	s.jobs = append(s.jobs, SubmittedJob{
		SyncptID:    job.SyncptID,
		SyncptIncrs: job.SyncptIncrs,
		SyncptEnd:   end,
		Timeout:     job.Timeout,
		Priority:    job.Priority,
		ClientID:    job.ClientID,
		NullKickoff: job.NullKickoff,
		Gathers:     append([]host1x.Gather(nil), job.Gathers()...),
		Pins:        append([]host1x.PinEntry(nil), job.Pins()...),
		Waitchks:    append([]nvhost.Waitchk(nil), job.Waitchks()...),
	})
	return end, nil
}

// Close implements io.Closer; the channel calls it when its last reference
// is dropped.
func (s *Submitter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// Jobs returns the snapshots of all submitted jobs.
func (s *Submitter) Jobs() []SubmittedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubmittedJob(nil), s.jobs...)
}

// CloseCalls returns how many times the channel released the boundary.
func (s *Submitter) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Power is an in-memory host1x.PowerManager.
type Power struct {
	mu sync.Mutex

	clients               map[any]struct{}
	busyCalls, idleCalls  int
	addCalls, removeCalls int
}

// NewPower returns a Power with no clients.
func NewPower() *Power {
	return &Power{
		clients: make(map[any]struct{}),
	}
}

// AddClient implements host1x.PowerManager.AddClient.
func (p *Power) AddClient(client any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[client] = struct{}{}
	p.addCalls++
}

// RemoveClient implements host1x.PowerManager.RemoveClient.
func (p *Power) RemoveClient(client any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, client)
	p.removeCalls++
}

// Busy implements host1x.PowerManager.Busy.
func (p *Power) Busy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busyCalls++
}

// Idle implements host1x.PowerManager.Idle.
func (p *Power) Idle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idleCalls++
}

// Counts returns (add, remove, busy, idle) call counts.
func (p *Power) Counts() (int, int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addCalls, p.removeCalls, p.busyCalls, p.idleCalls
}

// NumClients returns the number of registered clients.
func (p *Power) NumClients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Clock is an in-memory host1x.ClockManager.
type Clock struct {
	mu       sync.Mutex
	rate     uint64
	setCalls int
}

// NewClock returns a Clock running at rate.
func NewClock(rate uint64) *Clock {
	return &Clock{rate: rate}
}

// GetRate implements host1x.ClockManager.GetRate.
func (c *Clock) GetRate() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate, nil
}

// SetRate implements host1x.ClockManager.SetRate.
func (c *Clock) SetRate(client any, rate uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rate
	c.setCalls++
	return nil
}

// Regs is an in-memory register file implementing both host1x.RegisterReader
// and host1x.Aperture.
type Regs struct {
	mu   sync.Mutex
	regs map[uint32]uint32
}

// NewRegs returns a Regs with the given initial contents.
func NewRegs(init map[uint32]uint32) *Regs {
	r := &Regs{regs: make(map[uint32]uint32)}
	for k, v := range init {
		r.regs[k] = v
	}
	return r
}

// ReadRegister implements host1x.RegisterReader.ReadRegister.
func (r *Regs) ReadRegister(offset uint32) (uint32, error) {
	return r.ReadWord(offset), nil
}

// ReadWord implements host1x.Aperture.ReadWord.
func (r *Regs) ReadWord(offset uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regs[offset]
}

// WriteWord implements host1x.Aperture.WriteWord.
func (r *Regs) WriteWord(offset uint32, val uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[offset] = val
}

// marshallable is the subset of the ABI record interface Stream needs.
type marshallable interface {
	SizeBytes() int
	MarshalBytes(dst []byte) []byte
}

// Stream builds submission byte streams record by record.
type Stream struct {
	buf []byte
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

func (st *Stream) add(m marshallable) *Stream {
	off := len(st.buf)
	st.buf = append(st.buf, make([]byte, m.SizeBytes())...)
	m.MarshalBytes(st.buf[off:])
	return st
}

// Header appends a legacy submit header.
func (st *Stream) Header(h nvhost.SubmitHeader) *Stream {
	return st.add(&h)
}

// Cmdbuf appends a cmdbuf record.
func (st *Stream) Cmdbuf(mem, words, offset uint32) *Stream {
	return st.add(&nvhost.Cmdbuf{Mem: mem, Words: words, Offset: offset})
}

// Reloc appends an extended (shiftless) relocation record.
func (st *Stream) Reloc(cmdbufMem, cmdbufOffset, target, targetOffset uint32) *Stream {
	return st.add(&nvhost.Reloc{
		CmdbufMem:    cmdbufMem,
		CmdbufOffset: cmdbufOffset,
		Target:       target,
		TargetOffset: targetOffset,
	})
}

// RelocLegacy appends a legacy relocation record with an inline shift.
func (st *Stream) RelocLegacy(cmdbufMem, cmdbufOffset, target, targetOffset, shift uint32) *Stream {
	return st.add(&nvhost.RelocLegacy{
		Reloc: nvhost.Reloc{
			CmdbufMem:    cmdbufMem,
			CmdbufOffset: cmdbufOffset,
			Target:       target,
			TargetOffset: targetOffset,
		},
		Shift: shift,
	})
}

// RelocShift appends a relocation shift record.
func (st *Stream) RelocShift(shift uint32) *Stream {
	return st.add(&nvhost.RelocShift{Shift: shift})
}

// Waitchk appends a wait-check record.
func (st *Stream) Waitchk(mem, offset, syncptID, thresh uint32) *Stream {
	return st.add(&nvhost.Waitchk{Mem: mem, Offset: offset, SyncptID: syncptID, Thresh: thresh})
}

// Bytes returns the assembled stream.
func (st *Stream) Bytes() []byte {
	return st.buf
}
