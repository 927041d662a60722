package ai

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedStreamReplaysFragments(t *testing.T) {
	stream := NewScriptedStream([]string{"a", "b", "c"}, nil)

	var got []string
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, fragment)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	// EOF repeats.
	_, err := stream.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestScriptedStreamTerminalError(t *testing.T) {
	boom := errors.New("upstream died")
	stream := NewScriptedStream([]string{"partial"}, boom)

	fragment, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", fragment)

	_, err = stream.Recv()
	assert.Equal(t, boom, err)

	// Terminal errors are sticky.
	_, err = stream.Recv()
	assert.Equal(t, boom, err)
}

func TestStreamCollect(t *testing.T) {
	full, err := NewScriptedStream([]string{"one ", "two"}, nil).Collect()
	require.NoError(t, err)
	assert.Equal(t, "one two", full)
}

func TestStreamCollectKeepsDeliveredOnError(t *testing.T) {
	boom := errors.New("mid-stream failure")
	partial, err := NewScriptedStream([]string{"kept "}, boom).Collect()
	assert.Equal(t, boom, err)
	assert.Equal(t, "kept ", partial)
}

func TestStreamCloseIsIdempotentWithoutBody(t *testing.T) {
	stream := NewScriptedStream(nil, nil)
	require.NoError(t, stream.Close())
	_, err := stream.Recv()
	assert.Equal(t, io.EOF, err)
}
