// SPDX-License-Identifier: AGPL-3.0-or-later
// DMRHub - Run a DMR network server in a single binary
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/dvm-project/fne>

package kmm

import "encoding/binary"

// HelloFrame is a keep-alive exchanged between a unit and its key management
// facility.
type HelloFrame struct {
	Hdr  Header
	Flag uint8
}

const helloLength = HeaderLength + 1

func decodeHello(hdr Header, data []byte) (Frame, error) {
	if len(data) < helloLength {
		return nil, ErrShortFrame
	}
	return HelloFrame{Hdr: hdr, Flag: data[HeaderLength]}, nil
}

func (f HelloFrame) Header() Header { return f.Hdr }
func (f HelloFrame) Length() int    { return helloLength }

func (f HelloFrame) Encode(dst []byte) (int, error) {
	if len(dst) < helloLength {
		return 0, ErrShortFrame
	}
	hdr := f.Hdr
	hdr.MessageID = Hello
	hdr.Length = uint16(helloLength)
	hdr.encode(dst)
	dst[HeaderLength] = f.Flag
	return helloLength, nil
}

// HeaderOnlyFrame carries NO_SERVICE and ZEROIZE, which have no body beyond
// the common header.
type HeaderOnlyFrame struct {
	Hdr Header
}

func decodeHeaderOnly(hdr Header, _ []byte) (Frame, error) {
	return HeaderOnlyFrame{Hdr: hdr}, nil
}

func (f HeaderOnlyFrame) Header() Header { return f.Hdr }
func (f HeaderOnlyFrame) Length() int    { return HeaderLength }

func (f HeaderOnlyFrame) Encode(dst []byte) (int, error) {
	if len(dst) < HeaderLength {
		return 0, ErrShortFrame
	}
	hdr := f.Hdr
	hdr.Length = uint16(HeaderLength)
	hdr.encode(dst)
	return HeaderLength, nil
}

// NakFrame rejects a prior message, naming which one and why.
type NakFrame struct {
	Hdr                Header
	ReferencedMessageID MessageID
	MessageNo          uint16
	Status             uint8
}

const nakLength = HeaderLength + 4

func decodeNak(hdr Header, data []byte) (Frame, error) {
	if len(data) < nakLength {
		return nil, ErrShortFrame
	}
	off := HeaderLength
	return NakFrame{
		Hdr:                 hdr,
		ReferencedMessageID: MessageID(data[off]),
		MessageNo:           binary.BigEndian.Uint16(data[off+1 : off+3]),
		Status:              data[off+3],
	}, nil
}

func (f NakFrame) Header() Header { return f.Hdr }
func (f NakFrame) Length() int    { return nakLength }

func (f NakFrame) Encode(dst []byte) (int, error) {
	if len(dst) < nakLength {
		return 0, ErrShortFrame
	}
	hdr := f.Hdr
	hdr.MessageID = NegativeAck
	hdr.Length = uint16(nakLength)
	hdr.encode(dst)

	off := HeaderLength
	dst[off] = byte(f.ReferencedMessageID)
	binary.BigEndian.PutUint16(dst[off+1:off+3], f.MessageNo)
	dst[off+3] = f.Status

	return nakLength, nil
}
