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
	"fmt"
	"io"

	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/cleanup"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
)

// Channel is a logical hardware execution channel. It is shared by all
// sessions opened on it; the underlying resources are released when the last
// reference is dropped.
type Channel struct {
	channelRefs

	host      *Host
	dev       *Device
	id        int32
	submitter Submitter
	regs      RegisterReader
}

// ChannelOptions holds arguments to NewChannel.
type ChannelOptions struct {
	Device *Device
	ID     int32

	// Submitter is the hardware submission boundary for this channel. If it
	// also implements io.Closer, Close is called when the channel's last
	// reference is dropped.
	Submitter Submitter

	// Regs, if set, enables the register-read control passthrough.
	Regs RegisterReader
}

// NewChannel returns a Channel holding one reference for the caller.
func (h *Host) NewChannel(opts ChannelOptions) *Channel {
	ch := &Channel{
		host:      h,
		dev:       opts.Device,
		id:        opts.ID,
		submitter: opts.Submitter,
		regs:      opts.Regs,
	}
	ch.InitRefs()
	return ch
}

// ID returns the channel's identifier.
func (ch *Channel) ID() int32 {
	return ch.id
}

// Device returns the channel's owning device.
func (ch *Channel) Device() *Device {
	return ch.dev
}

// DecRef drops a reference on ch. The channel's resources are released when
// the last reference is dropped.
func (ch *Channel) DecRef() {
	ch.channelRefs.DecRef(ch.destroy)
}

func (ch *Channel) destroy() {
	log.Debugf("host1x: %s: releasing channel %d", ch.dev.Name, ch.id)
	if c, ok := ch.submitter.(io.Closer); ok {
		c.Close()
	}
}

// Open opens a session on ch. It fails if the channel is already draining
// (last reference dropped).
func (ch *Channel) Open() (*Session, error) {
	if !ch.TryIncRef() {
		return nil, linuxerr.ENOMEM
	}
	cu := cleanup.Make(func() {
		ch.DecRef()
	})
	defer cu.Clean()

	s := &Session{
		ch:       ch,
		priority: nvhost.PriorityMedium,
		clientID: ch.host.nextClientID(),
	}
	if p := ch.dev.Power; p != nil {
		p.AddClient(s)
		cu.Add(func() {
			p.RemoveClient(s)
		})
	}
	s.job = newJob(ch, s.clientID)

	log.Debugf("host1x: %s: opened channel %d, client %d", ch.dev.Name, ch.id, s.clientID)
	cu.Release()
	return s, nil
}

// readRegister services the register-read control passthrough.
//
// Precondition: the channel must have been constructed with Regs set;
// invoking the op on a channel without register support is a programming
// error, not a client-recoverable fault.
func (ch *Channel) readRegister(offset uint32) (uint32, error) {
	if ch.regs == nil {
		panic(fmt.Sprintf("host1x: channel %d does not support register reads", ch.id))
	}
	ch.dev.busy()
	defer ch.dev.idle()
	return ch.regs.ReadRegister(offset)
}

// controlArgSize returns the argument size of the channel control op cmd, or
// an error if cmd is outside the channel catalogue.
func controlArgSize(cmd uint32) (int, error) {
	nr := linux.IOC_NR(cmd)
	if nvhost.IoctlType(cmd) != nvhost.IoctlMagic || nr == 0 || nr > nvhost.IoctlChannelLast {
		return 0, linuxerr.EFAULT
	}
	size := int(linux.IOC_SIZE(cmd))
	if size > nvhost.IoctlChannelMaxArgSize {
		panic(fmt.Sprintf("host1x: control op %#x arg size %d exceeds maximum %d", cmd, size, nvhost.IoctlChannelMaxArgSize))
	}
	return size, nil
}
