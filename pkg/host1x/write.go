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
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
)

// decodeState identifies the record type the decoder expects next. It is a
// pure function of the remaining-count fields; the decoder is in ground
// state, able to accept a new header, exactly when the state is decodeHeader.
type decodeState int

const (
	decodeHeader decodeState = iota
	decodeCmdbufs
	decodeRelocs
	decodeWaitchks
	decodeRelocShifts
)

func (s *Session) decodeState() decodeState {
	switch {
	case s.hdr.NumCmdbufs == 0 && s.hdr.NumRelocs == 0 && s.hdr.NumWaitchks == 0 && s.numRelocShifts == 0:
		return decodeHeader
	case s.hdr.NumCmdbufs > 0:
		return decodeCmdbufs
	case s.hdr.NumRelocs > 0:
		return decodeRelocs
	case s.hdr.NumWaitchks > 0:
		return decodeWaitchks
	default:
		return decodeRelocShifts
	}
}

// relocSize returns the wire size of a relocation record under the active
// submit version: versions below 2 carry the shift inline.
func (s *Session) relocSize() int {
	if s.hdr.SubmitVersion >= nvhost.SubmitVersion2 {
		return nvhost.SizeofReloc
	}
	return nvhost.SizeofRelocLegacy
}

// Write feeds submission stream bytes to the decoder and returns the number
// of bytes consumed. Only whole records are consumed: a partial record at the
// tail is left unconsumed and must be resent, concatenated with further
// data, in a later call. When the counts of one submission drain to zero
// mid-buffer the decoder re-enters ground state and the next header may
// follow immediately.
//
// On error the in-progress submission is discarded and the decoder is reset
// to ground state; the returned count covers the records applied before the
// fault.
func (s *Session) Write(buf []byte) (int, error) {
	if s.job == nil {
		return 0, linuxerr.EIO
	}
	total := len(buf)
	var err error

loop:
	for len(buf) > 0 {
		switch s.decodeState() {
		case decodeHeader:
			if len(buf) < nvhost.SizeofSubmitHeader {
				break loop
			}
			var hdr nvhost.SubmitHeader
			hdr.UnmarshalBytes(buf)
			// Streamed headers are always legacy-shaped.
			s.hdr = nvhost.SubmitHeaderExt{
				SyncptID:      hdr.SyncptID,
				SyncptIncrs:   hdr.SyncptIncrs,
				NumCmdbufs:    hdr.NumCmdbufs,
				NumRelocs:     hdr.NumRelocs,
				NumWaitchks:   hdr.NumWaitchks,
				SubmitVersion: nvhost.SubmitVersion0,
			}
			if err = s.setSubmit(); err != nil {
				break loop
			}
			log.Debugf("host1x: %s: submit: %d cmdbufs, %d relocs, %d waitchks, syncpt %d+%d",
				s.ch.dev.Name, s.hdr.NumCmdbufs, s.hdr.NumRelocs, s.hdr.NumWaitchks,
				s.hdr.SyncptID, s.hdr.SyncptIncrs)
			buf = buf[nvhost.SizeofSubmitHeader:]

		case decodeCmdbufs:
			if len(buf) < nvhost.SizeofCmdbuf {
				break loop
			}
			var cb nvhost.Cmdbuf
			cb.UnmarshalBytes(buf)
			s.job.addGather(cb.Mem, cb.Words, cb.Offset)
			s.hdr.NumCmdbufs--
			buf = buf[nvhost.SizeofCmdbuf:]

		case decodeRelocs:
			size := s.relocSize()
			if len(buf) < size {
				break loop
			}
			if size == nvhost.SizeofRelocLegacy {
				var r nvhost.RelocLegacy
				r.UnmarshalBytes(buf)
				s.job.addPin(r.Reloc, r.Shift)
			} else {
				var r nvhost.Reloc
				r.UnmarshalBytes(buf)
				s.job.addPin(r, 0)
			}
			s.hdr.NumRelocs--
			buf = buf[size:]

		case decodeWaitchks:
			// Wait-checks are order-independent and uniformly sized, so
			// decode as many as fit in one go.
			n := len(buf) / nvhost.SizeofWaitchk
			if n == 0 {
				break loop
			}
			if n > int(s.hdr.NumWaitchks) {
				n = int(s.hdr.NumWaitchks)
			}
			for i := 0; i < n; i++ {
				var w nvhost.Waitchk
				buf = w.UnmarshalBytes(buf)
				s.job.addWaitchk(w)
			}
			s.hdr.NumWaitchks -= uint32(n)

		case decodeRelocShifts:
			if len(buf) < nvhost.SizeofRelocShift {
				break loop
			}
			var sh nvhost.RelocShift
			sh.UnmarshalBytes(buf)
			// Shifts patch relocations in arrival order.
			s.job.patchShift(s.job.numPins-int(s.numRelocShifts), sh.Shift)
			s.numRelocShifts--
			buf = buf[nvhost.SizeofRelocShift:]
		}
	}

	if err != nil {
		log.Warningf("host1x: %s: channel write error: %v", s.ch.dev.Name, err)
		s.resetSubmit()
		return total - len(buf), err
	}
	return total - len(buf), nil
}
