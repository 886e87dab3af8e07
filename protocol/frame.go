// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame representation and client-side encoding with masking.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-wamp/api"
)

// Frame represents a decoded WebSocket frame.
type Frame struct {
	IsFinal bool   // FIN bit
	Opcode  byte   // Operation code
	Masked  bool   // Whether the frame was masked on the wire
	Payload []byte // Unmasked payload, owned by the frame
}

// IsControl reports whether the frame carries a control opcode.
func (f *Frame) IsControl() bool {
	return isControl(f.Opcode)
}

// CloseCode extracts the status code of a close frame, or CloseNoStatusRcvd.
func (f *Frame) CloseCode() int {
	if f.Opcode != OpcodeClose || len(f.Payload) < 2 {
		return CloseNoStatusRcvd
	}
	return int(binary.BigEndian.Uint16(f.Payload[:2]))
}

// CloseReason returns the UTF-8 reason of a close frame, if any.
func (f *Frame) CloseReason() string {
	if f.Opcode != OpcodeClose || len(f.Payload) <= 2 {
		return ""
	}
	return string(f.Payload[2:])
}

// EncodeFrame serializes a single final frame. Client frames must be masked
// (RFC6455 5.3); mask selects a fresh random key per frame. The payload slice
// is never modified.
func EncodeFrame(opcode byte, payload []byte, mask bool) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("%w: frame payload %d exceeds %d", api.ErrProtocol, len(payload), MaxFramePayload)
	}
	if isControl(opcode) && len(payload) > MaxControlPayloadLen {
		return nil, fmt.Errorf("%w: control payload %d exceeds %d", api.ErrProtocol, len(payload), MaxControlPayloadLen)
	}

	var maskBit byte
	if mask {
		maskBit = MaskBit
	}
	plen := len(payload)
	dst := make([]byte, 0, MaxFrameHeaderLen+plen)
	dst = append(dst, FinBit|(opcode&0x0F))

	switch {
	case plen <= 125:
		dst = append(dst, byte(plen)|maskBit)
	case plen <= 0xFFFF:
		dst = append(dst, 126|maskBit)
		dst = binary.BigEndian.AppendUint16(dst, uint16(plen))
	default:
		dst = append(dst, 127|maskBit)
		dst = binary.BigEndian.AppendUint64(dst, uint64(plen))
	}

	if !mask {
		return append(dst, payload...), nil
	}

	var maskKey [4]byte
	if _, err := rand.Read(maskKey[:]); err != nil {
		return nil, fmt.Errorf("frame mask key: %w", err)
	}
	dst = append(dst, maskKey[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	unmaskInPlace(dst[start:], maskKey)
	return dst, nil
}

// unmaskInPlace applies XOR on payload using maskKey.
func unmaskInPlace(buf []byte, key [4]byte) {
	for i := 0; i < len(buf); i++ {
		buf[i] ^= key[i%4]
	}
}
