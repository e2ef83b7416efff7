package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

func TestChunkTextBreaksOnWords(t *testing.T) {
	text := strings.Repeat("coverage differs sharply between outlets ", 30)
	chunks := ChunkText(text, 50)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks[:len(chunks)-1] {
		assert.LessOrEqual(t, len(c), 50)
		assert.True(t, strings.HasSuffix(c, " "), "chunk %q should end on a word boundary", c)
	}
}

func TestChunkTextLongWordAndRunes(t *testing.T) {
	word := strings.Repeat("é", 40) // 80 bytes
	chunks := ChunkText(word, 25)
	assert.Equal(t, word, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, len(c), 25)
	}
	assert.Nil(t, ChunkText("", 10))
	assert.Equal(t, []string{"short"}, ChunkText("short", 0))
}

func TestDecodeInbound(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"query","message_id":"m1","data":{"query":"  Hamas in US and Israel ","artifacts":["map"]}}`))
	require.NoError(t, err)
	require.NotNil(t, in.Query)
	assert.Equal(t, "m1", in.MessageID)
	assert.Equal(t, "Hamas in US and Israel", in.Query.Query)
	assert.Equal(t, []string{"map"}, in.Query.Artifacts)

	in, err = DecodeInbound([]byte(`{"type":"cancel","data":{"session_id":"abc"}}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", in.Cancel.SessionID)

	_, err = DecodeInbound([]byte(`{"type":"cancel","data":{}}`))
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "session_id", ve.Field)
	assert.Equal(t, "required", ve.Reason)

	_, err = DecodeInbound([]byte(`{"type":"query","data":{"query":"   "}}`))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "query", ve.Field)

	_, err = DecodeInbound([]byte(`{"type":"dance","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeInbound([]byte(`not json`))
	assert.ErrorAs(t, err, &ve)
}

func TestEnvelopeShape(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	env, err := NewEnvelope(TypeContent, "s1", "", Content{Content: "hi", IsComplete: true}, ts)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"content","session_id":"s1","data":{"content":"hi","is_complete":true},"timestamp":"2025-01-02T03:04:05Z"}`, string(raw))
}

func TestEndsStream(t *testing.T) {
	assert.True(t, Ends(TypeComplete, Complete{}))
	assert.True(t, Ends(TypeError, Error{Code: apperr.CodeCancelled}))
	assert.True(t, Ends(TypeError, nil))
	assert.False(t, Ends(TypeError, Error{Code: apperr.CodeRateLimited, Partial: true}))
	assert.False(t, Ends(TypeError, &Error{Code: apperr.CodeRateLimited, Partial: true}))
	assert.False(t, Ends(TypeStatus, Status{}))
}

func TestErrorFromRateLimit(t *testing.T) {
	e := ErrorFrom(&apperr.RateLimitError{Provider: "tavily", RetryAfter: 3 * time.Second})
	assert.Equal(t, apperr.CodeRateLimited, e.Code)
	assert.True(t, e.Recoverable)
	require.NotNil(t, e.RetryAfter)
	assert.Equal(t, 3.0, *e.RetryAfter)
}
