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

// RegistrationFrame carries REG_CMD/DEREG_CMD: a unit's request to register
// or deregister with a key management facility.
type RegistrationFrame struct {
	Hdr        Header
	Deregister bool
	BodyFormat uint8
	KMFRSI     uint32 // 24-bit
}

const registrationLength = HeaderLength + 4

func decodeRegistration(hdr Header, data []byte) (Frame, error) {
	if len(data) < registrationLength {
		return nil, ErrShortFrame
	}
	off := HeaderLength
	f := RegistrationFrame{
		Hdr:        hdr,
		Deregister: hdr.MessageID == DeregCmd,
		BodyFormat: data[off],
		KMFRSI:     uint32(data[off+1])<<16 | uint32(data[off+2])<<8 | uint32(data[off+3]),
	}
	return f, nil
}

func (f RegistrationFrame) Header() Header { return f.Hdr }
func (f RegistrationFrame) Length() int    { return registrationLength }

func (f RegistrationFrame) Encode(dst []byte) (int, error) {
	if len(dst) < registrationLength {
		return 0, ErrShortFrame
	}
	hdr := f.Hdr
	if f.Deregister {
		hdr.MessageID = DeregCmd
	} else {
		hdr.MessageID = RegCmd
	}
	hdr.Length = uint16(registrationLength)
	hdr.encode(dst)

	off := HeaderLength
	dst[off] = f.BodyFormat
	dst[off+1] = byte(f.KMFRSI >> 16)
	dst[off+2] = byte(f.KMFRSI >> 8)
	dst[off+3] = byte(f.KMFRSI)

	return registrationLength, nil
}

// RegistrationRspFrame carries REG_RSP/DEREG_RSP: a single status byte.
type RegistrationRspFrame struct {
	Hdr        Header
	Deregister bool
	Status     uint8
}

const registrationRspLength = HeaderLength + 1

func decodeRegistrationResponse(hdr Header, data []byte) (Frame, error) {
	if len(data) < registrationRspLength {
		return nil, ErrShortFrame
	}
	return RegistrationRspFrame{
		Hdr:        hdr,
		Deregister: hdr.MessageID == DeregRsp,
		Status:     data[HeaderLength],
	}, nil
}

func (f RegistrationRspFrame) Header() Header { return f.Hdr }
func (f RegistrationRspFrame) Length() int    { return registrationRspLength }

func (f RegistrationRspFrame) Encode(dst []byte) (int, error) {
	if len(dst) < registrationRspLength {
		return 0, ErrShortFrame
	}
	hdr := f.Hdr
	if f.Deregister {
		hdr.MessageID = DeregRsp
	} else {
		hdr.MessageID = RegRsp
	}
	hdr.Length = uint16(registrationRspLength)
	hdr.encode(dst)
	dst[HeaderLength] = f.Status
	return registrationRspLength, nil
}
