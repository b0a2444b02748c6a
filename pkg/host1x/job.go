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

import (
	"gvisor.dev/gvisor/pkg/log"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
)

// jobState tracks a job through its lifecycle. The decoder accumulates into
// an accumulating job; flush seals, pins and submits it; the job's storage is
// then recycled for the session's next submission.
type jobState int

const (
	jobFresh jobState = iota
	jobAccumulating
	jobSealed
	jobSubmitted
)

// Gather references a region of a command buffer to be executed. The
// referenced memory is resolved at pin time.
type Gather struct {
	Mem    uint32
	Words  uint32
	Offset uint32
}

// PinEntry is one pin-table slot: a relocation and, once the job is pinned,
// the resolved device address of its target.
type PinEntry struct {
	Reloc nvhost.Reloc
	Shift uint32

	// Addr is the target's device address; valid only while pinned.
	Addr   uint64
	pinned bool
}

// Job is one submission: the gathers, pin table and wait-checks declared by
// a submit header, plus the attributes attached at submit time. A Job is
// exclusively owned by one session while accumulating; ownership transfers
// to the submission boundary for the duration of a flush.
type Job struct {
	ch *Channel
	mc MemoryClient

	// Submit header attributes.
	SyncptID    uint32
	SyncptIncrs uint32

	// SyncptEnd is the syncpoint value signalling completion, assigned by
	// the submission boundary.
	SyncptEnd uint32

	// Timeout is the job timeout in milliseconds, enforced by the
	// submission boundary; zero disables detection.
	Timeout uint32

	Priority uint32
	ClientID int32

	// NullKickoff makes the boundary perform all bookkeeping but skip
	// hardware execution.
	NullKickoff bool

	gathers  []Gather
	pins     []PinEntry
	numPins  int
	waitchks []nvhost.Waitchk

	state jobState
}

// newJob returns an empty job sized for a header declaring no records.
func newJob(ch *Channel, clientID int32) *Job {
	return &Job{
		ch:       ch,
		ClientID: clientID,
		state:    jobFresh,
	}
}

// realloc prepares j for the submission described by hdr, reusing the backing
// arrays when their capacities suffice. This keeps the hot submission path
// free of per-job allocation.
func (j *Job) realloc(hdr *nvhost.SubmitHeaderExt, mc MemoryClient, priority uint32, clientID int32) {
	if int(hdr.NumCmdbufs) > cap(j.gathers) {
		j.gathers = make([]Gather, 0, hdr.NumCmdbufs)
	} else {
		j.gathers = j.gathers[:0]
	}
	if int(hdr.NumRelocs) > cap(j.pins) {
		j.pins = make([]PinEntry, 0, hdr.NumRelocs)
	} else {
		j.pins = j.pins[:0]
	}
	if int(hdr.NumWaitchks) > cap(j.waitchks) {
		j.waitchks = make([]nvhost.Waitchk, 0, hdr.NumWaitchks)
	} else {
		j.waitchks = j.waitchks[:0]
	}
	j.numPins = 0
	j.mc = mc
	j.SyncptID = hdr.SyncptID
	j.SyncptIncrs = hdr.SyncptIncrs
	j.SyncptEnd = 0
	j.Priority = priority
	j.ClientID = clientID
	j.NullKickoff = false
	j.state = jobAccumulating
}

// reset discards accumulated records and returns j to the fresh state,
// keeping the backing arrays.
func (j *Job) reset() {
	j.gathers = j.gathers[:0]
	j.pins = j.pins[:0]
	j.waitchks = j.waitchks[:0]
	j.numPins = 0
	j.state = jobFresh
}

// Channel returns the channel this job was built for.
func (j *Job) Channel() *Channel {
	return j.ch
}

// Gathers returns the job's gathers in arrival order.
func (j *Job) Gathers() []Gather {
	return j.gathers
}

// Pins returns the job's pin table in arrival order.
func (j *Job) Pins() []PinEntry {
	return j.pins[:j.numPins]
}

// Waitchks returns the job's wait-checks in arrival order.
func (j *Job) Waitchks() []nvhost.Waitchk {
	return j.waitchks
}

func (j *Job) addGather(mem, words, offset uint32) {
	j.gathers = append(j.gathers, Gather{Mem: mem, Words: words, Offset: offset})
}

func (j *Job) addPin(r nvhost.Reloc, shift uint32) {
	j.pins = append(j.pins, PinEntry{Reloc: r, Shift: shift})
	j.numPins++
}

func (j *Job) patchShift(i int, shift uint32) {
	j.pins[i].Shift = shift
}

func (j *Job) addWaitchk(w nvhost.Waitchk) {
	j.waitchks = append(j.waitchks, w)
}

// pin resolves every pin-table entry through the job's memory client. On
// failure the entries pinned so far are unpinned before returning; a job is
// never left partially pinned.
func (j *Job) pin() error {
	for i := range j.pins[:j.numPins] {
		p := &j.pins[i]
		addr, err := j.mc.Pin(p.Reloc.Target)
		if err != nil {
			log.Warningf("host1x: %s: pin of handle %#x failed: %v", j.ch.dev.Name, p.Reloc.Target, err)
			j.unpin()
			return err
		}
		p.Addr = addr
		p.pinned = true
	}
	j.state = jobSealed
	return nil
}

// unpin releases every pinned entry. The number of unpins always matches the
// number of successful pins.
func (j *Job) unpin() {
	for i := range j.pins[:j.numPins] {
		p := &j.pins[i]
		if !p.pinned {
			continue
		}
		j.mc.Unpin(p.Reloc.Target)
		p.pinned = false
		p.Addr = 0
	}
}
