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

package host1x_test

import (
	"testing"

	"gvisor.dev/gvisor/pkg/errors/linuxerr"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
	"nvhost.dev/nvhost/pkg/host1x/host1xtest"
)

// relocStream builds a submission with three relocations against distinct
// handles.
func relocStream() []byte {
	return host1xtest.NewStream().
		Header(nvhost.SubmitHeader{SyncptID: 3, SyncptIncrs: 1, NumCmdbufs: 1, NumRelocs: 3}).
		Cmdbuf(0x10, 8, 0).
		RelocLegacy(0x10, 0x00, 0x30, 0, 0).
		RelocLegacy(0x10, 0x04, 0x31, 0, 0).
		RelocLegacy(0x10, 0x08, 0x32, 0, 0).
		Bytes()
}

func TestPinFailureUnwinds(t *testing.T) {
	env := newTestEnv(t)
	stream := relocStream()
	if n, err := env.s.Write(stream); err != nil || n != len(stream) {
		t.Fatalf("Write = (%d, %v), want (%d, nil)", n, err, len(stream))
	}
	// The third pin fails; the first two must be released.
	env.mem.FailPinAt = 2
	if _, err := env.s.Flush(); err != linuxerr.ENOMEM {
		t.Fatalf("Flush = %v, want ENOMEM", err)
	}
	if got := len(env.sub.Jobs()); got != 0 {
		t.Errorf("boundary called %d times, want 0", got)
	}
	if pins, unpins := env.mem.PinCalls(), env.mem.UnpinCalls(); pins != 2 || unpins != 2 {
		t.Errorf("pins/unpins = %d/%d, want 2/2", pins, unpins)
	}

	// The session recovers for the next submission.
	env.mem.FailPinAt = -1
	if _, err := env.s.Write(stream); err != nil {
		t.Fatalf("Write after pin failure: %v", err)
	}
	if _, err := env.s.Flush(); err != nil {
		t.Fatalf("Flush after pin failure: %v", err)
	}
}

func TestSubmitFailureUnpins(t *testing.T) {
	env := newTestEnv(t)
	stream := relocStream()
	if _, err := env.s.Write(stream); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	env.sub.Err = linuxerr.EIO
	if _, err := env.s.Flush(); err != linuxerr.EIO {
		t.Fatalf("Flush = %v, want EIO", err)
	}
	// The boundary rejected the job, so the flush releases every pin.
	if pins, unpins := env.mem.PinCalls(), env.mem.UnpinCalls(); pins != 3 || unpins != 3 {
		t.Errorf("pins/unpins = %d/%d, want 3/3", pins, unpins)
	}
	for _, h := range []uint32{0x30, 0x31, 0x32} {
		if got := env.mem.PinCount(h); got != 0 {
			t.Errorf("handle %#x pin count = %d, want 0", h, got)
		}
	}

	if _, err := env.s.Write(stream); err != nil {
		t.Fatalf("Write after submit failure: %v", err)
	}
	if _, err := env.s.Flush(); err != nil {
		t.Fatalf("Flush after submit failure: %v", err)
	}
}

func TestSubmitSuccessKeepsPins(t *testing.T) {
	env := newTestEnv(t)
	stream := relocStream()
	if _, err := env.s.Write(stream); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := env.s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	// Pins transfer to the boundary with the job; the front end must not
	// release them.
	if got := env.mem.UnpinCalls(); got != 0 {
		t.Errorf("unpins after successful submit = %d, want 0", got)
	}
	job := env.sub.Jobs()[0]
	for i, p := range job.Pins {
		want := 0x8000_0000 + uint64(p.Reloc.Target)<<12
		if p.Addr != want {
			t.Errorf("pin %d: addr = %#x, want %#x", i, p.Addr, want)
		}
	}
}
