// ABOUTME: Tests for the stream frame codec
// ABOUTME: Covers inbound decoding, protocol errors, and outbound frame shapes

package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Start(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"start"}`))
	require.NoError(t, err)
	assert.Equal(t, KindStart, ev.Kind)
}

func TestDecode_Content(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"content","content":"Hi there"}`))
	require.NoError(t, err)
	assert.Equal(t, KindContent, ev.Kind)
	assert.Equal(t, "Hi there", ev.Text)
}

func TestDecode_ContentEmptyTextIsValid(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"content","content":""}`))
	require.NoError(t, err)
	assert.Equal(t, KindContent, ev.Kind)
	assert.Empty(t, ev.Text)
}

func TestDecode_JSONBlock(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"json_block","block":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, KindJSONBlock, ev.Kind)
	assert.JSONEq(t, `{"a":1}`, string(ev.Block))
}

func TestDecode_JSONBlockWithoutBlockIsProtocolError(t *testing.T) {
	_, err := Decode([]byte(`{"type":"json_block"}`))
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
}

func TestDecode_XMLMarkers(t *testing.T) {
	open, err := Decode([]byte(`{"type":"xml_open"}`))
	require.NoError(t, err)
	assert.Equal(t, KindXMLOpen, open.Kind)

	closed, err := Decode([]byte(`{"type":"xml_close"}`))
	require.NoError(t, err)
	assert.Equal(t, KindXMLClose, closed.Kind)
}

func TestDecode_Terminal(t *testing.T) {
	done, err := Decode([]byte(`{"type":"complete"}`))
	require.NoError(t, err)
	assert.Equal(t, KindComplete, done.Kind)

	failed, err := Decode([]byte(`{"type":"error","message":"timeout"}`))
	require.NoError(t, err)
	assert.Equal(t, KindError, failed.Kind)
	assert.Equal(t, "timeout", failed.ErrorMessage)
}

func TestDecode_Heartbeat(t *testing.T) {
	pong, err := Decode([]byte(`{"type":"pong"}`))
	require.NoError(t, err)
	assert.Equal(t, KindPong, pong.Kind)
}

func TestDecode_MalformedJSONIsProtocolError(t *testing.T) {
	_, err := Decode([]byte(`{"type":"content",`))
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Frame, `{"type":"content",`)
}

func TestDecode_UnknownTypeIsProtocolError(t *testing.T) {
	_, err := Decode([]byte(`{"type":"telemetry"}`))
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "telemetry")
}

func TestDecode_MissingTypeIsProtocolError(t *testing.T) {
	_, err := Decode([]byte(`{"content":"orphan"}`))
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
}

func TestDecode_LongFrameExcerptIsTruncated(t *testing.T) {
	raw := append([]byte(`{"type":"bogus","pad":"`), make([]byte, 500)...)
	for i := range raw[23:] {
		raw[23+i] = 'x'
	}
	_, err := Decode(raw)
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.LessOrEqual(t, len(perr.Frame), frameExcerptLen+3)
}

func TestAuthFrame(t *testing.T) {
	raw, err := AuthFrame("secret-token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"secret-token"}`, string(raw))
}

func TestProblemFrame(t *testing.T) {
	raw, err := ProblemFrame("Hello", "sonnet")
	require.NoError(t, err)
	assert.JSONEq(t, `{"problem":"Hello","model":"sonnet"}`, string(raw))
}

func TestProblemFrame_ModelOmittedWhenEmpty(t *testing.T) {
	raw, err := ProblemFrame("Hello", "")
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	_, hasModel := decoded["model"]
	assert.False(t, hasModel)
}

func TestPingFrame(t *testing.T) {
	raw, err := PingFrame()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(raw))
}

func TestKindString_RoundTripsWireNames(t *testing.T) {
	names := map[Kind]string{
		KindStart:     "start",
		KindContent:   "content",
		KindJSONBlock: "json_block",
		KindXMLOpen:   "xml_open",
		KindXMLClose:  "xml_close",
		KindComplete:  "complete",
		KindError:     "error",
		KindPing:      "ping",
		KindPong:      "pong",
	}
	for kind, name := range names {
		assert.Equal(t, name, kind.String())
	}
}
