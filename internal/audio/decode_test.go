// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"audioviz/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCM16ToFloat(t *testing.T) {
	raw := []byte{
		0x00, 0x00, // 0
		0xff, 0x7f, // 32767
		0x00, 0x80, // -32768
		0x00, 0x40, // 16384
		0xff, 0xff, // -1
		0x01, // dangling byte
	}

	assert.Equal(t, []float32{0, 32767.0 / 32768, -1, 0.5}, pcm16ToFloat(raw, 2),
		"trailing partial stereo frame is dropped")
	assert.Equal(t, []float32{0, 32767.0 / 32768, -1, 0.5, -1.0 / 32768}, pcm16ToFloat(raw, 1))
	assert.Empty(t, pcm16ToFloat(nil, 2))
}

func TestDecodersRejectCorruptInput(t *testing.T) {
	garbage := bytes.Repeat([]byte("not audio "), 64)

	tests := []struct {
		name   string
		decode Decoder
		data   []byte
	}{
		{"mp3/garbage", decodeMP3, garbage},
		{"mp3/empty", decodeMP3, nil},
		{"mp3/truncated id3", decodeMP3, []byte("ID3\x04\x00\x00\x00\x00\x10\x00")},
		{"ogg/garbage", decodeOgg, garbage},
		{"ogg/empty", decodeOgg, nil},
		{"ogg/truncated page", decodeOgg, []byte("OggS\x00\x02")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.decode(bytes.NewReader(tt.data))
			assert.Error(t, err)
			assert.Nil(t, buf)
		})
	}
}

func TestLoadCorruptCompressedFile(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"bad.mp3", "bad.ogg", "empty.mp3", "empty.oga"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			var data []byte
			if name[:3] == "bad" {
				data = bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 256)
			}
			require.NoError(t, os.WriteFile(path, data, 0o644))

			src := NewSource()
			err := src.Load(File(path))
			assert.ErrorIs(t, err, domain.ErrResource)

			var re *domain.ResourceError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "decode", re.Op)
			assert.Equal(t, path, re.Resource)
			assert.Equal(t, StateFailed, src.State())
		})
	}
}
