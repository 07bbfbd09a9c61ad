package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/MrWong99/harken/pkg/types"
)

// ErrInvalidWAV is returned by [DecodeWAV] for input that is not a 16-bit PCM
// RIFF/WAVE container.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a 44-byte
// RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// EncodeClipWAV is a convenience wrapper around [EncodeWAV] for a clip.
func EncodeClipWAV(clip *types.AudioClip) []byte {
	return EncodeWAV(clip.PCM, clip.SampleRate, clip.Channels)
}

// DecodeWAV walks the RIFF chunks in wav and returns the PCM payload as a
// clip. The fmt chunk size may vary, so the data offset is located by
// scanning rather than assumed to be 44. Only 16-bit PCM is accepted.
func DecodeWAV(wav []byte) (*types.AudioClip, error) {
	if len(wav) < 12 {
		return nil, fmt.Errorf("%w: too short for a RIFF header", ErrInvalidWAV)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE identifier", ErrInvalidWAV)
	}

	clip := &types.AudioClip{}
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(wav) {
				return nil, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidWAV)
			}
			f := wav[offset+8:]
			if tag := binary.LittleEndian.Uint16(f[0:2]); tag != 1 {
				return nil, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, tag)
			}
			if bits := binary.LittleEndian.Uint16(f[14:16]); bits != 16 {
				return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bits)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			start := offset + 8
			end := min(start+chunkSize, len(wav))
			// Streaming writers leave the size field at 0 or 0xFFFFFFFF.
			if chunkSize == 0 || chunkSize == 0xFFFFFFFF {
				end = len(wav)
			}
			end -= (end - start) % 2
			clip.PCM = wav[start:end]
			return clip, nil
		}

		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return nil, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}
