package capyscript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemux(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		noise  []string
		want   []string
	}{
		{
			name:   "one line per chunk",
			chunks: []string{"a\n", "b\n"},
			want:   []string{"a", "b"},
		},
		{
			name:   "several lines in one chunk",
			chunks: []string{"a\nb\nc\n"},
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "line split across chunks",
			chunks: []string{"hel", "lo wo", "rld\nnext\n"},
			want:   []string{"hello world", "next"},
		},
		{
			name:   "blank lines dropped",
			chunks: []string{"\n\na\n   \n\t\nb\n"},
			want:   []string{"a", "b"},
		},
		{
			name:   "carriage returns stripped",
			chunks: []string{"a\r\nb\r", "\n"},
			want:   []string{"a", "b"},
		},
		{
			name:   "default noise dropped",
			chunks: []string{"Check file:///tmp/main.ts\nstarted!\n"},
			noise:  DefaultNoise,
			want:   []string{"started!"},
		},
		{
			name:   "custom noise",
			chunks: []string{"DEBUG x\nreal\nDEBUG y\n"},
			noise:  []string{"DEBUG *"},
			want:   []string{"real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &LineBuffer{}
			d, err := NewDemux(buf, tt.noise)
			require.NoError(t, err)

			added := 0
			for _, c := range tt.chunks {
				added += d.Write(Stdout, c)
			}
			assert.Equal(t, len(tt.want), added)
			assert.Equal(t, tt.want, contents(buf.Snapshot()))
		})
	}
}

func TestDemuxKeepsStreamsApart(t *testing.T) {
	buf := &LineBuffer{}
	d, err := NewDemux(buf, nil)
	require.NoError(t, err)

	d.Write(Stdout, "out ")
	d.Write(Stderr, "err line\n")
	d.Write(Stdout, "line\n")

	assert.Equal(t, []Line{
		{Stream: Stderr, Content: "err line"},
		{Stream: Stdout, Content: "out line"},
	}, buf.Snapshot())
}

func TestDemuxFlush(t *testing.T) {
	buf := &LineBuffer{}
	d, err := NewDemux(buf, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, d.Write(Stderr, "no newline"))
	assert.Equal(t, 1, d.Flush(Stderr))
	assert.Equal(t, 0, d.Flush(Stderr))
	assert.Equal(t, 0, d.Flush(Stdout))
	assert.Equal(t, []Line{{Stream: Stderr, Content: "no newline"}}, buf.Snapshot())
}

func TestDemuxInvalidNoise(t *testing.T) {
	_, err := NewDemux(&LineBuffer{}, []string{"[unclosed"})
	require.Error(t, err)
}
