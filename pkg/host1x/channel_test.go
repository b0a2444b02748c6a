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

	"golang.org/x/sync/errgroup"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
	"nvhost.dev/nvhost/pkg/host1x"
	"nvhost.dev/nvhost/pkg/host1x/host1xtest"
)

func TestConcurrentOpenClose(t *testing.T) {
	host := host1x.NewHost(host1x.Options{})
	sub := host1xtest.NewSubmitter()
	pow := host1xtest.NewPower()
	ch := host.NewChannel(host1x.ChannelOptions{
		Device: &host1x.Device{
			Name:  "gr3d",
			Power: pow,
		},
		Submitter: sub,
	})

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				s, err := ch.Open()
				if err != nil {
					return err
				}
				s.Close()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent open/close failed: %v", err)
	}

	// The creator's reference is still held, so the boundary must not have
	// been released by any of the session closes.
	if got := sub.CloseCalls(); got != 0 {
		t.Fatalf("boundary closed %d times before last reference dropped", got)
	}
	if got := pow.NumClients(); got != 0 {
		t.Errorf("%d power clients left registered", got)
	}
	adds, removes, _, _ := pow.Counts()
	if adds != removes {
		t.Errorf("power add/remove calls = %d/%d, want equal", adds, removes)
	}

	ch.DecRef()
	if got := sub.CloseCalls(); got != 1 {
		t.Errorf("boundary closed %d times after last reference dropped, want 1", got)
	}
}

func TestOpenHoldsChannel(t *testing.T) {
	host := host1x.NewHost(host1x.Options{})
	sub := host1xtest.NewSubmitter()
	ch := host.NewChannel(host1x.ChannelOptions{
		Device:    &host1x.Device{Name: "gr3d"},
		Submitter: sub,
	})

	s, err := ch.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.SetMemContext(host1xtest.NewMemory())

	// Dropping the creator's reference leaves the session's reference; the
	// channel stays live and usable.
	ch.DecRef()
	if got := sub.CloseCalls(); got != 0 {
		t.Fatalf("boundary closed %d times while a session is open", got)
	}
	stream := host1xtest.NewStream().
		Header(nvhost.SubmitHeader{SyncptID: 3, SyncptIncrs: 1, NumCmdbufs: 1}).
		Cmdbuf(0x10, 8, 0).
		Bytes()
	if _, err := s.Write(stream); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	s.Close()
	if got := sub.CloseCalls(); got != 1 {
		t.Errorf("boundary closed %d times after last session, want 1", got)
	}
}

func TestDistinctClientIDs(t *testing.T) {
	host := host1x.NewHost(host1x.Options{})
	ch := host.NewChannel(host1x.ChannelOptions{
		Device:    &host1x.Device{Name: "gr3d"},
		Submitter: host1xtest.NewSubmitter(),
	})
	defer ch.DecRef()

	seen := make(map[int32]bool)
	for i := 0; i < 4; i++ {
		s, err := ch.Open()
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		id := s.ClientID()
		if id == 0 {
			t.Error("client ID 0 allocated; it is reserved")
		}
		if seen[id] {
			t.Errorf("client ID %d allocated twice", id)
		}
		seen[id] = true
		s.Close()
	}
}

func TestModuleRegAccessPowerBrackets(t *testing.T) {
	pow := host1xtest.NewPower()
	regs := host1xtest.NewRegs(nil)
	dev := &host1x.Device{
		Name:     "gr3d",
		Power:    pow,
		Aperture: regs,
	}

	dev.WriteModuleRegs(0x10, []uint32{1, 2, 3})
	out := make([]uint32, 3)
	dev.ReadModuleRegs(0x10, out)
	for i, want := range []uint32{1, 2, 3} {
		if out[i] != want {
			t.Errorf("reg %d = %d, want %d", i, out[i], want)
		}
	}
	_, _, busy, idle := pow.Counts()
	if busy != 2 || idle != 2 {
		t.Errorf("busy/idle calls = %d/%d, want 2/2", busy, idle)
	}
}
