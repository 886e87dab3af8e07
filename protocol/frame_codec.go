// File: protocol/frame_codec.go
// Package protocol implements incremental frame decoding with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TryDecode assembles frames out of an accumulating byte buffer and reports how
// many more bytes are needed when the buffer holds only part of a frame.

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-wamp/api"
)

// MaxFramePayload defines the maximum allowed payload size for a single frame.
const MaxFramePayload = 16 << 20 // 16 MiB

// TryDecode parses one frame from the head of raw.
//
// It returns the frame and the number of bytes it consumed. If raw holds an
// incomplete frame, it returns a nil frame and need > 0, the minimum number of
// additional bytes required before decoding can make progress.
func TryDecode(raw []byte) (frame *Frame, consumed int, need int, err error) {
	if len(raw) < 2 {
		return nil, 0, 2 - len(raw), nil
	}
	if raw[0]&RsvBits != 0 {
		return nil, 0, 0, fmt.Errorf("%w: reserved bits set without negotiated extension", api.ErrProtocol)
	}
	fin := raw[0]&FinBit != 0
	opcode := raw[0] & 0x0F
	masked := raw[1]&MaskBit != 0
	length := uint64(raw[1] & 0x7F)
	offset := 2

	switch opcode {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
	default:
		return nil, 0, 0, fmt.Errorf("%w: reserved opcode 0x%x", api.ErrProtocol, opcode)
	}

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, offset + 2 - len(raw), nil
		}
		length = uint64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, offset + 8 - len(raw), nil
		}
		length = binary.BigEndian.Uint64(raw[offset:])
		offset += 8
	}

	if length > MaxFramePayload {
		return nil, 0, 0, fmt.Errorf("%w: frame payload %d exceeds %d", api.ErrProtocol, length, MaxFramePayload)
	}
	if isControl(opcode) && (length > MaxControlPayloadLen || !fin) {
		return nil, 0, 0, fmt.Errorf("%w: invalid control frame", api.ErrProtocol)
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, offset + 4 - len(raw), nil
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return nil, 0, total - len(raw), nil
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:total])
	if masked {
		unmaskInPlace(payload, maskKey)
	}

	return &Frame{
		IsFinal: fin,
		Opcode:  opcode,
		Masked:  masked,
		Payload: payload,
	}, total, 0, nil
}
