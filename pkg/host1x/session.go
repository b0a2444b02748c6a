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
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
)

// Session is one open handle on a channel. It owns the job being built, the
// decoder progress state and the session attributes (priority, timeout,
// memory context).
//
// A session is driven by a single client goroutine: Write, Flush and the
// control ops must not be called concurrently on the same session.
// MarkTimedOut is the exception; the timeout enforcement collaborator may
// call it from any goroutine.
type Session struct {
	ch *Channel
	mc MemoryClient

	job *Job

	// hdr is the current submit header; its counts are the decoder's
	// remaining-record state. numRelocShifts counts trailing shift records
	// still expected (submit version >= 2 only).
	hdr            nvhost.SubmitHeaderExt
	numRelocShifts uint32

	timeout  uint32
	priority uint32
	clientID int32

	timedOut atomicbitops.Bool
	closed   bool
}

// ClientID returns the session's client identifier, unique within the host.
func (s *Session) ClientID() int32 {
	return s.clientID
}

// Close releases the session's references. It is idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	log.Debugf("host1x: %s: closing channel %d, client %d", s.ch.dev.Name, s.ch.id, s.clientID)
	if p := s.ch.dev.Power; p != nil {
		p.RemoveClient(s)
	}
	if s.mc != nil {
		s.mc.Put()
		s.mc = nil
	}
	s.job = nil
	s.ch.DecRef()
}

// setSubmit validates the session's current header and begins a new job.
func (s *Session) setSubmit() error {
	// A submission needs at least one cmdbuf.
	if s.hdr.NumCmdbufs == 0 {
		return linuxerr.EIO
	}
	if s.mc == nil {
		log.Warningf("host1x: %s: no memory context set", s.ch.dev.Name)
		return linuxerr.EFAULT
	}
	s.job.realloc(&s.hdr, s.mc, s.priority, s.clientID)
	s.job.Timeout = s.timeout
	if s.hdr.SubmitVersion >= nvhost.SubmitVersion2 {
		s.numRelocShifts = s.hdr.NumRelocs
	}
	return nil
}

// resetSubmit discards the in-progress submission and returns the decoder to
// ground state.
func (s *Session) resetSubmit() {
	s.hdr.NumCmdbufs = 0
	s.hdr.NumRelocs = 0
	s.hdr.NumWaitchks = 0
	s.numRelocShifts = 0
	if s.job != nil {
		s.job.reset()
	}
}

// Flush seals the accumulated job, pins its memory and submits it across the
// hardware boundary, returning the syncpoint end value.
func (s *Session) Flush() (uint32, error) {
	return s.flush(false)
}

// NullFlush is the diagnostic variant of Flush: the boundary performs all
// bookkeeping but skips hardware execution.
func (s *Session) NullFlush() (uint32, error) {
	return s.flush(true)
}

func (s *Session) flush(nullKickoff bool) (uint32, error) {
	if s.job == nil || s.decodeState() != decodeHeader {
		s.resetSubmit()
		log.Warningf("host1x: %s: channel submit out of sync", s.ch.dev.Name)
		return 0, linuxerr.EFAULT
	}
	job := s.job

	if err := job.pin(); err != nil {
		job.reset()
		return 0, err
	}

	forceNull, forceTimeout, timeoutMS := s.ch.host.flushOverrides(s.clientID, s.ch.id)
	if forceNull {
		nullKickoff = true
	}
	if forceTimeout {
		job.Timeout = timeoutMS
	}
	job.NullKickoff = nullKickoff

	syncptEnd, err := s.ch.submitter.Submit(job)
	job.SyncptEnd = syncptEnd
	if err != nil {
		job.unpin()
		job.reset()
		return 0, err
	}
	job.state = jobSubmitted
	return syncptEnd, nil
}

// SubmitExt accepts a complete extended submit header in one call instead of
// via the write stream. The decoder must be in ground state.
func (s *Session) SubmitExt(hdr *nvhost.SubmitHeaderExt) error {
	if s.job == nil || s.decodeState() != decodeHeader {
		s.resetSubmit()
		log.Warningf("host1x: %s: channel submit out of sync", s.ch.dev.Name)
		return linuxerr.EIO
	}
	if hdr.SubmitVersion > nvhost.SubmitVersionMax {
		log.Warningf("host1x: %s: submit version %d > max supported %d", s.ch.dev.Name, hdr.SubmitVersion, nvhost.SubmitVersionMax)
		return linuxerr.EINVAL
	}
	// The explicit shift count, when present, must match the pin table size.
	if hdr.SubmitVersion >= nvhost.SubmitVersion2 && hdr.NumRelocShifts != 0 && hdr.NumRelocShifts != hdr.NumRelocs {
		return linuxerr.EINVAL
	}
	if hdr.MemContext != 0 {
		if err := s.bindMemContext(hdr.MemContext); err != nil {
			return err
		}
	}
	s.hdr = *hdr
	if err := s.setSubmit(); err != nil {
		return err
	}
	log.Debugf("host1x: %s: submit v%d: %d cmdbufs, %d relocs, %d waitchks, syncpt %d+%d",
		s.ch.dev.Name, s.hdr.SubmitVersion, s.hdr.NumCmdbufs, s.hdr.NumRelocs, s.hdr.NumWaitchks,
		s.hdr.SyncptID, s.hdr.SyncptIncrs)
	return nil
}

// SetMemContext rebinds the memory client that resolves this session's
// handles, releasing the previously bound one. The caller's reference on mc
// is transferred to the session.
func (s *Session) SetMemContext(mc MemoryClient) {
	if s.mc != nil {
		s.mc.Put()
	}
	s.mc = mc
}

// bindMemContext resolves a numeric context selector and rebinds the
// session's memory client to it.
func (s *Session) bindMemContext(id uint32) error {
	r := s.ch.host.memCtxs
	if r == nil {
		return linuxerr.EINVAL
	}
	mc, err := r.Get(id)
	if err != nil {
		return err
	}
	s.SetMemContext(mc)
	return nil
}

// GetSyncpoints returns the device's syncpoint mask. The host-owned
// syncpoint is never given out.
func (s *Session) GetSyncpoints() uint32 {
	return s.ch.dev.Syncpts &^ (1 << SyncptGraphicsHost)
}

// GetWaitbases returns the device's wait-base mask.
func (s *Session) GetWaitbases() uint32 {
	return s.ch.dev.Waitbases
}

// GetModMutexes returns the device's module-mutex mask.
func (s *Session) GetModMutexes() uint32 {
	return s.ch.dev.ModMutexes
}

// ReadRegister is the register-read passthrough; see Channel.readRegister
// for the support precondition.
func (s *Session) ReadRegister(offset uint32) (uint32, error) {
	return s.ch.readRegister(offset)
}

// GetClockRate returns the clock rate of the channel's owning device.
func (s *Session) GetClockRate() (uint64, error) {
	c := s.ch.dev.Clock
	if c == nil {
		return 0, linuxerr.ENODEV
	}
	return c.GetRate()
}

// SetClockRate requests a clock rate for the channel's owning device on
// behalf of this session.
func (s *Session) SetClockRate(rate uint64) error {
	c := s.ch.dev.Clock
	if c == nil {
		return linuxerr.ENODEV
	}
	return c.SetRate(s, rate)
}

// SetTimeout sets the timeout, in milliseconds, attached to jobs submitted
// from now on. Zero disables timeout detection.
func (s *Session) SetTimeout(ms uint32) {
	s.timeout = ms
	log.Debugf("host1x: %s: setting buffer timeout (%d ms) for client %d", s.ch.dev.Name, ms, s.clientID)
}

// SetPriority sets the priority attached to jobs submitted from now on.
func (s *Session) SetPriority(p uint32) {
	s.priority = p
}

// MarkTimedOut records that a job from this session timed out. Called by the
// timeout enforcement collaborator.
func (s *Session) MarkTimedOut() {
	s.timedOut.Store(true)
}

// GetTimedOut reports whether a job from this session has timed out.
func (s *Session) GetTimedOut() bool {
	return s.timedOut.Load()
}

// Control dispatches an ioctl-shaped control op. buf holds the op's argument
// in its wire encoding and receives the result for read-type ops.
func (s *Session) Control(cmd uint32, buf []byte) error {
	size, err := controlArgSize(cmd)
	if err != nil {
		return err
	}
	if len(buf) < size {
		return linuxerr.EFAULT
	}

	switch cmd {
	case nvhost.CmdChannelFlush, nvhost.CmdChannelNullKickoff:
		syncptEnd, err := s.flush(cmd == nvhost.CmdChannelNullKickoff)
		if err != nil {
			return err
		}
		args := nvhost.GetParamArgs{Value: syncptEnd}
		args.MarshalBytes(buf)
	case nvhost.CmdChannelSubmitExt:
		var hdr nvhost.SubmitHeaderExt
		hdr.UnmarshalBytes(buf)
		return s.SubmitExt(&hdr)
	case nvhost.CmdChannelGetSyncpoints:
		args := nvhost.GetParamArgs{Value: s.GetSyncpoints()}
		args.MarshalBytes(buf)
	case nvhost.CmdChannelGetWaitbases:
		args := nvhost.GetParamArgs{Value: s.GetWaitbases()}
		args.MarshalBytes(buf)
	case nvhost.CmdChannelGetModMutexes:
		args := nvhost.GetParamArgs{Value: s.GetModMutexes()}
		args.MarshalBytes(buf)
	case nvhost.CmdChannelSetMemContext:
		var args nvhost.SetMemContextArgs
		args.UnmarshalBytes(buf)
		return s.bindMemContext(args.Context)
	case nvhost.CmdChannelReadReg:
		var args nvhost.ReadRegArgs
		args.UnmarshalBytes(buf)
		v, err := s.ReadRegister(args.Offset)
		if err != nil {
			return err
		}
		args.Value = v
		args.MarshalBytes(buf)
	case nvhost.CmdChannelGetClkRate:
		rate, err := s.GetClockRate()
		if err != nil {
			return err
		}
		args := nvhost.ClkRateArgs{Rate: rate}
		args.MarshalBytes(buf)
	case nvhost.CmdChannelSetClkRate:
		var args nvhost.ClkRateArgs
		args.UnmarshalBytes(buf)
		return s.SetClockRate(args.Rate)
	case nvhost.CmdChannelSetTimeout:
		var args nvhost.SetTimeoutArgs
		args.UnmarshalBytes(buf)
		s.SetTimeout(args.Timeout)
	case nvhost.CmdChannelGetTimedout:
		var args nvhost.GetParamArgs
		if s.GetTimedOut() {
			args.Value = 1
		}
		args.MarshalBytes(buf)
	case nvhost.CmdChannelSetPriority:
		var args nvhost.SetPriorityArgs
		args.UnmarshalBytes(buf)
		s.SetPriority(args.Priority)
	default:
		return linuxerr.ENOTTY
	}
	return nil
}
