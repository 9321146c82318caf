// Package audio assembles the per-segment synthesis output into a single
// episode file. Only WAV concatenation is performed here; any deeper audio
// processing belongs to the synthesis worker.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotWAV           = errors.New("not a RIFF/WAVE file")
	ErrFormatMismatch   = errors.New("segment sample formats differ")
	ErrNoSegments       = errors.New("no audio segments to combine")
	errMissingFmtChunk  = errors.New("missing fmt chunk")
	errMissingDataChunk = errors.New("missing data chunk")
)

// Format describes the PCM sample format of a WAV file
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// Concat splices the PCM payloads of the given WAV files into one file.
// All inputs must share the same sample format; the first file's format is
// used for the output header.
func Concat(files ...[]byte) ([]byte, error) {
	if len(files) == 0 {
		return nil, ErrNoSegments
	}

	var (
		format Format
		pcm    bytes.Buffer
	)
	for i, file := range files {
		f, data, err := Parse(file)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
		if i == 0 {
			format = f
		} else if f != format {
			return nil, fmt.Errorf("segment %d: %w (%+v vs %+v)", i+1, ErrFormatMismatch, f, format)
		}
		pcm.Write(data)
	}

	return Encode(format, pcm.Bytes()), nil
}

// Silence returns a WAV file of d silence in the given format. Used by the
// mock synthesis path when no synthesizer is configured.
func Silence(d time.Duration, sampleRate, channels, bitsPerSample int) []byte {
	format := Format{
		AudioFormat:   1, // PCM
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		BitsPerSample: uint16(bitsPerSample),
	}
	samples := int(d.Seconds() * float64(sampleRate))
	pcm := make([]byte, samples*channels*bitsPerSample/8)
	return Encode(format, pcm)
}

// Parse extracts the sample format and raw PCM payload from a WAV file
func Parse(data []byte) (Format, []byte, error) {
	var format Format

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return format, nil, ErrNotWAV
	}

	var (
		pcm     []byte
		gotFmt  bool
		gotData bool
	)

	// Walk the chunk list; chunks are word-aligned
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+size > len(data) {
			return format, nil, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return format, nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			format.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			format.Channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			format.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			format.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			gotFmt = true
		case "data":
			pcm = data[body : body+size]
			gotData = true
		}

		offset = body + size
		if size%2 == 1 {
			offset++ // pad byte
		}
	}

	if !gotFmt {
		return format, nil, fmt.Errorf("%w: %w", ErrNotWAV, errMissingFmtChunk)
	}
	if !gotData {
		return format, nil, fmt.Errorf("%w: %w", ErrNotWAV, errMissingDataChunk)
	}
	return format, pcm, nil
}

// Encode wraps raw PCM samples in a canonical 44-byte WAV header
func Encode(f Format, pcm []byte) []byte {
	blockAlign := f.Channels * f.BitsPerSample / 8
	byteRate := f.SampleRate * uint32(blockAlign)

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, f.AudioFormat)
	binary.Write(&b, binary.LittleEndian, f.Channels)
	binary.Write(&b, binary.LittleEndian, f.SampleRate)
	binary.Write(&b, binary.LittleEndian, byteRate)
	binary.Write(&b, binary.LittleEndian, blockAlign)
	binary.Write(&b, binary.LittleEndian, f.BitsPerSample)

	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)

	return b.Bytes()
}
