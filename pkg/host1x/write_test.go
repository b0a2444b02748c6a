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

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
	"nvhost.dev/nvhost/pkg/host1x"
	"nvhost.dev/nvhost/pkg/host1x/host1xtest"
)

// testEnv bundles a session on a freshly built channel with its fakes.
type testEnv struct {
	host *host1x.Host
	ch   *host1x.Channel
	s    *host1x.Session
	mem  *host1xtest.Memory
	sub  *host1xtest.Submitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	host := host1x.NewHost(host1x.Options{})
	mem := host1xtest.NewMemory()
	sub := host1xtest.NewSubmitter()
	ch := host.NewChannel(host1x.ChannelOptions{
		Device: &host1x.Device{
			Name:    "gr3d",
			Syncpts: 0x3fe,
		},
		ID:        1,
		Submitter: sub,
	})
	s, err := ch.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.SetMemContext(mem)
	t.Cleanup(func() {
		s.Close()
		ch.DecRef()
	})
	return &testEnv{host: host, ch: ch, s: s, mem: mem, sub: sub}
}

// ignorePinned lets cmp compare PinEntry values, which carry an unexported
// pin-state bit.
var ignorePinned = cmpopts.IgnoreUnexported(host1x.PinEntry{})

// mixedStream returns a well-formed legacy (v0) submission exercising every
// record type.
func mixedStream() []byte {
	return host1xtest.NewStream().
		Header(nvhost.SubmitHeader{
			SyncptID:    3,
			SyncptIncrs: 2,
			NumCmdbufs:  2,
			NumRelocs:   2,
			NumWaitchks: 3,
		}).
		Cmdbuf(0x10, 64, 0).
		Cmdbuf(0x11, 16, 0x100).
		RelocLegacy(0x10, 0x20, 0x30, 0, 4).
		RelocLegacy(0x11, 0x24, 0x31, 8, 0).
		Waitchk(0x10, 0x40, 3, 7).
		Waitchk(0x10, 0x44, 3, 8).
		Waitchk(0x11, 0x48, 4, 1).
		Bytes()
}

func TestChunkingInvariance(t *testing.T) {
	stream := mixedStream()

	// Reference: the whole stream in a single write.
	ref := newTestEnv(t)
	if n, err := ref.s.Write(stream); err != nil || n != len(stream) {
		t.Fatalf("Write(whole stream) = (%d, %v), want (%d, nil)", n, err, len(stream))
	}
	if _, err := ref.s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	want := ref.sub.Jobs()[0]

	// Any prefix split must decode to the same job, with the consumed byte
	// counts summing to the stream length.
	for split := 1; split < len(stream); split++ {
		env := newTestEnv(t)
		n1, err := env.s.Write(stream[:split])
		if err != nil {
			t.Fatalf("split %d: Write(first chunk) failed: %v", split, err)
		}
		if n1 > split {
			t.Fatalf("split %d: consumed %d > chunk size %d", split, n1, split)
		}
		// The unconsumed tail is resent with the rest of the stream.
		n2, err := env.s.Write(stream[n1:])
		if err != nil {
			t.Fatalf("split %d: Write(rest) failed: %v", split, err)
		}
		if n1+n2 != len(stream) {
			t.Fatalf("split %d: consumed %d+%d bytes, want %d", split, n1, n2, len(stream))
		}
		if _, err := env.s.Flush(); err != nil {
			t.Fatalf("split %d: Flush failed: %v", split, err)
		}
		got := env.sub.Jobs()[0]
		if diff := cmp.Diff(want, got, ignorePinned); diff != "" {
			t.Errorf("split %d: submitted job mismatch (-want +got):\n%s", split, diff)
		}
	}
}

func TestGroundStateClosure(t *testing.T) {
	env := newTestEnv(t)
	stream := mixedStream()
	if n, err := env.s.Write(stream); err != nil || n != len(stream) {
		t.Fatalf("Write = (%d, %v), want (%d, nil)", n, err, len(stream))
	}
	// Exactly the declared records were supplied, so flush must be legal.
	if _, err := env.s.Flush(); err != nil {
		t.Fatalf("Flush after complete submission failed: %v", err)
	}
	if got := len(env.sub.Jobs()); got != 1 {
		t.Errorf("boundary called %d times, want 1", got)
	}
}

func TestBackToBackSubmissions(t *testing.T) {
	env := newTestEnv(t)

	// Two complete submissions in one buffer: the decoder re-enters header
	// state when the first submission's counts drain to zero.
	first := host1xtest.NewStream().
		Header(nvhost.SubmitHeader{SyncptID: 3, SyncptIncrs: 1, NumCmdbufs: 1}).
		Cmdbuf(0x10, 8, 0).
		Bytes()
	second := host1xtest.NewStream().
		Header(nvhost.SubmitHeader{SyncptID: 4, SyncptIncrs: 2, NumCmdbufs: 1, NumWaitchks: 1}).
		Cmdbuf(0x20, 4, 0x80).
		Waitchk(0x20, 0, 3, 1).
		Bytes()
	stream := append(append([]byte(nil), first...), second...)

	n, err := env.s.Write(stream)
	if err != nil || n != len(stream) {
		t.Fatalf("Write = (%d, %v), want (%d, nil)", n, err, len(stream))
	}
	// The second header reused the job, so the flush submits the second
	// submission's records.
	if _, err := env.s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	jobs := env.sub.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("boundary called %d times, want 1", len(jobs))
	}
	job := jobs[0]
	if job.SyncptID != 4 || len(job.Gathers) != 1 || job.Gathers[0].Mem != 0x20 || len(job.Waitchks) != 1 {
		t.Errorf("unexpected job: %+v", job)
	}
}

func TestSequentialSubmissions(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		stream := host1xtest.NewStream().
			Header(nvhost.SubmitHeader{SyncptID: 3, SyncptIncrs: 1, NumCmdbufs: 1}).
			Cmdbuf(0x10, 8, 0).
			Bytes()
		if n, err := env.s.Write(stream); err != nil || n != len(stream) {
			t.Fatalf("submission %d: Write = (%d, %v)", i, n, err)
		}
		end, err := env.s.Flush()
		if err != nil {
			t.Fatalf("submission %d: Flush failed: %v", i, err)
		}
		// The boundary's syncpoint counter is monotonic across jobs.
		if want := uint32(i + 1); end != want {
			t.Errorf("submission %d: syncpt end = %d, want %d", i, end, want)
		}
	}
}

func TestRelocShiftAddressing(t *testing.T) {
	env := newTestEnv(t)
	hdr := nvhost.SubmitHeaderExt{
		SyncptID:      3,
		SyncptIncrs:   1,
		NumCmdbufs:    1,
		NumRelocs:     3,
		NumWaitchks:   1,
		SubmitVersion: nvhost.SubmitVersion2,
	}
	if err := env.s.SubmitExt(&hdr); err != nil {
		t.Fatalf("SubmitExt failed: %v", err)
	}
	stream := host1xtest.NewStream().
		Cmdbuf(0x10, 8, 0).
		Reloc(0x10, 0x00, 0x30, 0).
		Reloc(0x10, 0x04, 0x31, 0).
		Reloc(0x10, 0x08, 0x32, 0).
		Waitchk(0x10, 0, 3, 1).
		RelocShift(7).
		RelocShift(8).
		RelocShift(9).
		Bytes()

	// Feed one byte at a time to exercise shift decode across chunks.
	fed := 0
	for fed < len(stream) {
		end := fed + 1
		n, err := env.s.Write(stream[fed:end])
		if err != nil {
			t.Fatalf("Write at offset %d failed: %v", fed, err)
		}
		if n == 0 {
			// Partial record; extend the chunk.
			for n == 0 && end < len(stream) {
				end++
				n, err = env.s.Write(stream[fed:end])
				if err != nil {
					t.Fatalf("Write at offset %d failed: %v", fed, err)
				}
			}
		}
		fed += n
	}
	if fed != len(stream) {
		t.Fatalf("consumed %d bytes, want %d", fed, len(stream))
	}

	if _, err := env.s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	pins := env.sub.Jobs()[0].Pins
	if len(pins) != 3 {
		t.Fatalf("got %d pins, want 3", len(pins))
	}
	// Shifts patch relocations in the order the relocations arrived.
	for i, want := range []uint32{7, 8, 9} {
		if pins[i].Shift != want {
			t.Errorf("pin %d: shift = %d, want %d", i, pins[i].Shift, want)
		}
	}
}

func TestWriteHeaderWithoutCmdbufs(t *testing.T) {
	env := newTestEnv(t)
	stream := host1xtest.NewStream().
		Header(nvhost.SubmitHeader{SyncptID: 3, SyncptIncrs: 1}).
		Bytes()
	if _, err := env.s.Write(stream); err != linuxerr.EIO {
		t.Fatalf("Write = %v, want EIO", err)
	}
	// The failed submission is discarded; the session accepts a new header.
	good := host1xtest.NewStream().
		Header(nvhost.SubmitHeader{SyncptID: 3, SyncptIncrs: 1, NumCmdbufs: 1}).
		Cmdbuf(0x10, 8, 0).
		Bytes()
	if n, err := env.s.Write(good); err != nil || n != len(good) {
		t.Fatalf("Write after fault = (%d, %v), want (%d, nil)", n, err, len(good))
	}
	if _, err := env.s.Flush(); err != nil {
		t.Fatalf("Flush after recovery failed: %v", err)
	}
}

func TestWriteWithoutMemContext(t *testing.T) {
	host := host1x.NewHost(host1x.Options{})
	ch := host.NewChannel(host1x.ChannelOptions{
		Device:    &host1x.Device{Name: "gr3d"},
		Submitter: host1xtest.NewSubmitter(),
	})
	defer ch.DecRef()
	s, err := ch.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	stream := host1xtest.NewStream().
		Header(nvhost.SubmitHeader{SyncptID: 3, SyncptIncrs: 1, NumCmdbufs: 1}).
		Bytes()
	if _, err := s.Write(stream); err != linuxerr.EFAULT {
		t.Fatalf("Write without memory context = %v, want EFAULT", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	host := host1x.NewHost(host1x.Options{})
	ch := host.NewChannel(host1x.ChannelOptions{
		Device:    &host1x.Device{Name: "gr3d"},
		Submitter: host1xtest.NewSubmitter(),
	})
	defer ch.DecRef()
	s, err := ch.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Close()
	if _, err := s.Write(make([]byte, nvhost.SizeofSubmitHeader)); err != linuxerr.EIO {
		t.Fatalf("Write on closed session = %v, want EIO", err)
	}
}
