package narrate

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMessageAudioDecoding(t *testing.T) {
	pcm1 := []byte{0x01, 0x02, 0x03, 0x04}
	pcm2 := []byte{0x05, 0x06}
	raw := `{
		"serverContent": {
			"modelTurn": {
				"parts": [
					{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "` +
		base64.StdEncoding.EncodeToString(pcm1) + `"}},
					{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "` +
		base64.StdEncoding.EncodeToString(pcm2) + `"}}
				]
			},
			"turnComplete": true
		},
		"usageMetadata": {"promptTokenCount": 12, "responseTokenCount": 480}
	}`

	var msg serverMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	chunks := msg.audio()
	require.Len(t, chunks, 2)
	assert.Equal(t, pcm1, chunks[0])
	assert.Equal(t, pcm2, chunks[1])
	assert.True(t, msg.ServerContent.TurnComplete)
	assert.Equal(t, 12, msg.UsageMetadata.PromptTokenCount)
	assert.Equal(t, 480, msg.UsageMetadata.ResponseTokenCount)
}

func TestServerMessageWithoutAudio(t *testing.T) {
	var msg serverMessage
	require.NoError(t, json.Unmarshal([]byte(`{"setupComplete": {}}`), &msg))
	assert.NotNil(t, msg.SetupComplete)
	assert.Empty(t, msg.audio())
}

func TestServerMessageSkipsBadPayload(t *testing.T) {
	raw := `{"serverContent": {"modelTurn": {"parts": [
		{"inlineData": {"data": "!!!not-base64!!!"}},
		{"text": "no audio here"}
	]}}}`
	var msg serverMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Empty(t, msg.audio())
}

func TestSetupMessageShape(t *testing.T) {
	var setup setupMessage
	setup.Setup.Model = "models/test-audio"
	setup.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = "Algenib"
	setup.Setup.SystemInstruction = &content{Parts: []part{{Text: "read aloud"}}}

	data, err := json.Marshal(setup)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	inner := m["setup"].(map[string]any)
	assert.Equal(t, "models/test-audio", inner["model"])
	gen := inner["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"AUDIO"}, gen["responseModalities"])
}

func TestMutedNarratorIsInert(t *testing.T) {
	var n Muted
	n.WarmUp()
	n.Speak("anything")
	n.Stop()
	n.Stop()
}
