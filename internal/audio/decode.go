// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Decoder fully decodes an encoded stream into PCM.
type Decoder func(r io.ReadSeeker) (*Buffer, error)

var (
	ErrNotWavFile     = errors.New("not a valid WAV file")
	ErrEmptyStream    = errors.New("stream contains no audio")
	ErrUnsupportedPCM = errors.New("unsupported PCM bit depth")
)

var (
	decodersMu sync.RWMutex
	decoders   = map[string]Decoder{
		".wav":  decodeWAV,
		".wave": decodeWAV,
		".mp3":  decodeMP3,
		".ogg":  decodeOgg,
		".oga":  decodeOgg,
	}
)

// RegisterDecoder associates a file extension (including the dot) with a
// decoder, replacing any existing registration.
func RegisterDecoder(ext string, d Decoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[ext] = d
}

// Formats returns the registered file extensions in sorted order.
func Formats() []string {
	decodersMu.RLock()
	defer decodersMu.RUnlock()

	exts := make([]string, 0, len(decoders))
	for ext := range decoders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func lookupDecoder(ext string) (Decoder, bool) {
	decodersMu.RLock()
	defer decodersMu.RUnlock()
	d, ok := decoders[ext]
	return d, ok
}

func decodeWAV(r io.ReadSeeker) (*Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrNotWavFile
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	if pcm == nil || pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, ErrEmptyStream
	}

	bitDepth := pcm.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPCM, bitDepth)
	}

	return &Buffer{
		SampleRate: pcm.Format.SampleRate,
		Channels:   pcm.Format.NumChannels,
		Data:       intToFloat(pcm, bitDepth),
	}, nil
}

// intToFloat normalizes integer PCM to [-1, 1]. 8-bit WAV is unsigned.
func intToFloat(pcm *gaudio.IntBuffer, bitDepth int) []float32 {
	out := make([]float32, len(pcm.Data))
	scale := 1 / float32(int64(1)<<(bitDepth-1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	for i, v := range pcm.Data {
		out[i] = float32(v-offset) * scale
	}
	return out
}

func decodeMP3(r io.ReadSeeker) (*Buffer, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 stream: %w", err)
	}

	// go-mp3 always yields 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}
	if len(raw) < 4 {
		return nil, ErrEmptyStream
	}

	return &Buffer{SampleRate: dec.SampleRate(), Channels: 2, Data: pcm16ToFloat(raw, 2)}, nil
}

// pcm16ToFloat converts signed 16-bit little-endian PCM to floats in
// [-1, 1). A trailing partial frame of channels samples is dropped.
func pcm16ToFloat(raw []byte, channels int) []float32 {
	samples := len(raw) / 2
	samples -= samples % channels
	data := make([]float32, samples)
	for i := range samples {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		data[i] = float32(v) / 32768.0
	}
	return data
}

func decodeOgg(r io.ReadSeeker) (*Buffer, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis stream: %w", err)
	}
	if format == nil || len(data) == 0 {
		return nil, ErrEmptyStream
	}
	return &Buffer{SampleRate: format.SampleRate, Channels: format.Channels, Data: data}, nil
}
