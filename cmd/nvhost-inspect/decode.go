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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"nvhost.dev/nvhost/pkg/abi/nvhost"
)

// decodeCmd implements subcommands.Command for the "decode" command.
type decodeCmd struct {
	version uint
}

// Name implements subcommands.Command.Name.
func (*decodeCmd) Name() string {
	return "decode"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*decodeCmd) Synopsis() string {
	return "pretty-print the submissions in a captured channel write stream"
}

// Usage implements subcommands.Command.Usage.
func (*decodeCmd) Usage() string {
	return `decode [flags] <file> - pretty-print the submissions in a captured channel write stream
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *decodeCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.version, "version", 0, "submit protocol version the stream was captured under")
}

// Execute implements subcommands.Command.Execute.
func (c *decodeCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if c.version > nvhost.SubmitVersionMax {
		fmt.Fprintf(os.Stderr, "submit version %d exceeds maximum supported %d\n", c.version, nvhost.SubmitVersionMax)
		return subcommands.ExitUsageError
	}
	data, err := os.ReadFile(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}
	if err := walk(os.Stdout, data, uint32(c.version)); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// walk prints the records of a submission stream to w. It expects the shape
// the channel decoder consumes: a header, then exactly the declared counts of
// cmdbufs, relocations, wait-checks and (version >= 2) relocation shifts,
// with further submissions following back to back.
func walk(w io.Writer, data []byte, version uint32) error {
	relocSize := nvhost.SizeofRelocLegacy
	if version >= nvhost.SubmitVersion2 {
		relocSize = nvhost.SizeofReloc
	}
	for sub := 0; len(data) > 0; sub++ {
		if len(data) < nvhost.SizeofSubmitHeader {
			return fmt.Errorf("submission %d: %d trailing bytes, want a %d-byte header", sub, len(data), nvhost.SizeofSubmitHeader)
		}
		var hdr nvhost.SubmitHeader
		data = hdr.UnmarshalBytes(data)
		if hdr.NumCmdbufs == 0 {
			return fmt.Errorf("submission %d: header declares no cmdbufs", sub)
		}
		fmt.Fprintf(w, "submission %d: syncpt %d incrs %d: %d cmdbufs, %d relocs, %d waitchks\n",
			sub, hdr.SyncptID, hdr.SyncptIncrs, hdr.NumCmdbufs, hdr.NumRelocs, hdr.NumWaitchks)

		for i := uint32(0); i < hdr.NumCmdbufs; i++ {
			if len(data) < nvhost.SizeofCmdbuf {
				return truncatedErr(sub, "cmdbuf", i)
			}
			var cb nvhost.Cmdbuf
			data = cb.UnmarshalBytes(data)
			fmt.Fprintf(w, "  cmdbuf %d: mem %#x offset %#x words %d\n", i, cb.Mem, cb.Offset, cb.Words)
		}
		for i := uint32(0); i < hdr.NumRelocs; i++ {
			if len(data) < relocSize {
				return truncatedErr(sub, "reloc", i)
			}
			if relocSize == nvhost.SizeofRelocLegacy {
				var r nvhost.RelocLegacy
				data = r.UnmarshalBytes(data)
				fmt.Fprintf(w, "  reloc %d: cmdbuf %#x+%#x -> target %#x+%#x shift %d\n",
					i, r.CmdbufMem, r.CmdbufOffset, r.Target, r.TargetOffset, r.Shift)
			} else {
				var r nvhost.Reloc
				data = r.UnmarshalBytes(data)
				fmt.Fprintf(w, "  reloc %d: cmdbuf %#x+%#x -> target %#x+%#x\n",
					i, r.CmdbufMem, r.CmdbufOffset, r.Target, r.TargetOffset)
			}
		}
		for i := uint32(0); i < hdr.NumWaitchks; i++ {
			if len(data) < nvhost.SizeofWaitchk {
				return truncatedErr(sub, "waitchk", i)
			}
			var wc nvhost.Waitchk
			data = wc.UnmarshalBytes(data)
			fmt.Fprintf(w, "  waitchk %d: mem %#x offset %#x syncpt %d thresh %d\n",
				i, wc.Mem, wc.Offset, wc.SyncptID, wc.Thresh)
		}
		if version >= nvhost.SubmitVersion2 {
			for i := uint32(0); i < hdr.NumRelocs; i++ {
				if len(data) < nvhost.SizeofRelocShift {
					return truncatedErr(sub, "reloc shift", i)
				}
				var sh nvhost.RelocShift
				data = sh.UnmarshalBytes(data)
				fmt.Fprintf(w, "  reloc shift %d: %d\n", i, sh.Shift)
			}
		}
	}
	return nil
}

func truncatedErr(sub int, record string, i uint32) error {
	return fmt.Errorf("submission %d: stream truncated in %s %d", sub, record, i)
}
