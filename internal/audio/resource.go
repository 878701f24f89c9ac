// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audioviz/internal/domain"

	"github.com/dhowden/tag"
)

// Buffer holds decoded PCM as interleaved float32 samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   int
	Data       []float32
	Meta       Metadata

	live bool
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration returns the playable length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Metadata is the descriptive information read from a resource's tags.
type Metadata struct {
	Title  string
	Artist string
	Album  string
	Format string
}

// Resource is something a Source can be bound to.
type Resource interface {
	Name() string
	Decode() (*Buffer, error)
}

type fileResource struct {
	path string
}

// File returns a resource backed by an encoded audio file. The format is
// chosen from the file extension; see Formats for the supported set.
func File(path string) Resource {
	return fileResource{path: path}
}

func (r fileResource) Name() string { return r.path }

func (r fileResource) Decode() (*Buffer, error) {
	ext := strings.ToLower(filepath.Ext(r.path))
	decode, ok := lookupDecoder(ext)
	if !ok {
		return nil, domain.NewResourceError("load", r.path,
			fmt.Sprintf("unsupported format %q", ext), nil)
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, domain.NewResourceError("load", r.path, "", err)
	}
	defer f.Close()

	meta := readMetadata(f)
	if _, err := f.Seek(0, 0); err != nil {
		return nil, domain.NewResourceError("load", r.path, "", err)
	}

	buf, err := decode(f)
	if err != nil {
		return nil, domain.NewResourceError("decode", r.path, "", err)
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(r.path), filepath.Ext(r.path))
	}
	meta.Format = strings.TrimPrefix(ext, ".")
	buf.Meta = meta
	return buf, nil
}

func readMetadata(f *os.File) Metadata {
	m, err := tag.ReadFrom(f)
	if err != nil {
		return Metadata{}
	}
	return Metadata{Title: m.Title(), Artist: m.Artist(), Album: m.Album()}
}

type samplesResource struct {
	name string
	buf  Buffer
}

// Samples returns a resource over PCM already in memory. data is interleaved
// and is not copied.
func Samples(name string, sampleRate, channels int, data []float32) Resource {
	return samplesResource{
		name: name,
		buf:  Buffer{SampleRate: sampleRate, Channels: channels, Data: data, Meta: Metadata{Title: name}},
	}
}

func (r samplesResource) Name() string { return r.name }

func (r samplesResource) Decode() (*Buffer, error) {
	if err := validateFormat(r.name, r.buf.SampleRate, r.buf.Channels); err != nil {
		return nil, err
	}
	if len(r.buf.Data)%r.buf.Channels != 0 {
		return nil, domain.NewResourceError("load", r.name,
			fmt.Sprintf("%d samples do not divide into %d channels", len(r.buf.Data), r.buf.Channels), nil)
	}
	buf := r.buf
	return &buf, nil
}

type liveResource struct {
	name       string
	sampleRate int
	channels   int
}

// Live returns a resource of unknown duration whose samples are pushed with
// Source.Feed, typically from a Capture.
func Live(name string, sampleRate, channels int) Resource {
	return liveResource{name: name, sampleRate: sampleRate, channels: channels}
}

func (r liveResource) Name() string { return r.name }

func (r liveResource) Decode() (*Buffer, error) {
	if err := validateFormat(r.name, r.sampleRate, r.channels); err != nil {
		return nil, err
	}
	return &Buffer{
		SampleRate: r.sampleRate,
		Channels:   r.channels,
		Meta:       Metadata{Title: r.name, Format: "live"},
		live:       true,
	}, nil
}

func validateFormat(name string, sampleRate, channels int) error {
	if sampleRate <= 0 {
		return domain.NewResourceError("load", name, fmt.Sprintf("invalid sample rate %d", sampleRate), nil)
	}
	if channels <= 0 {
		return domain.NewResourceError("load", name, fmt.Sprintf("invalid channel count %d", channels), nil)
	}
	return nil
}
