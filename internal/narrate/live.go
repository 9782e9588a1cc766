package narrate

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gorilla/websocket"
)

const liveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// narratorInstruction pins the model to verbatim read-aloud behaviour.
const narratorInstruction = "You are the narrator of a text adventure. Read the text you are given aloud, word for word, in a calm and atmospheric voice. Never add, omit or comment on anything."

// liveSession is one bidirectional audio-generation connection. The protocol
// is: setup -> setupComplete, then one clientContent turn answered by a run
// of serverContent messages ending with turnComplete.
type liveSession struct {
	conn *websocket.Conn
}

type setupMessage struct {
	Setup struct {
		Model             string   `json:"model"`
		GenerationConfig  liveGen  `json:"generationConfig"`
		SystemInstruction *content `json:"systemInstruction,omitempty"`
	} `json:"setup"`
}

type liveGen struct {
	ResponseModalities []string `json:"responseModalities"`
	SpeechConfig       struct {
		VoiceConfig struct {
			PrebuiltVoiceConfig struct {
				VoiceName string `json:"voiceName"`
			} `json:"prebuiltVoiceConfig"`
		} `json:"voiceConfig"`
	} `json:"speechConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type clientContentMessage struct {
	ClientContent struct {
		Turns        []content `json:"turns"`
		TurnComplete bool      `json:"turnComplete"`
	} `json:"clientContent"`
}

type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete"`
	ServerContent *struct {
		ModelTurn *struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"modelTurn"`
		TurnComplete bool `json:"turnComplete"`
		Interrupted  bool `json:"interrupted"`
	} `json:"serverContent"`
	UsageMetadata *struct {
		PromptTokenCount   int `json:"promptTokenCount"`
		ResponseTokenCount int `json:"responseTokenCount"`
	} `json:"usageMetadata"`
}

// dialLive opens a session for the given model and voice and completes the
// setup handshake.
func dialLive(ctx context.Context, apiKey, model, voice string) (*liveSession, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, liveEndpoint+"?key="+apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live audio: %w", err)
	}
	s := &liveSession{conn: conn}

	var setup setupMessage
	setup.Setup.Model = "models/" + model
	setup.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice
	setup.Setup.SystemInstruction = &content{Parts: []part{{Text: narratorInstruction}}}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("live audio setup: %w", err)
	}

	msg, err := s.read()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("live audio setup: %w", err)
	}
	if msg.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("live audio setup: unexpected first message")
	}
	return s, nil
}

// send submits one complete user turn.
func (s *liveSession) send(text string) error {
	var msg clientContentMessage
	msg.ClientContent.Turns = []content{{Role: "user", Parts: []part{{Text: text}}}}
	msg.ClientContent.TurnComplete = true
	return s.conn.WriteJSON(msg)
}

// read blocks for the next server message.
func (s *liveSession) read() (*serverMessage, error) {
	var msg serverMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// audio decodes the PCM payloads carried by a server message, in order.
func (m *serverMessage) audio() [][]byte {
	if m.ServerContent == nil || m.ServerContent.ModelTurn == nil {
		return nil
	}
	var chunks [][]byte
	for _, p := range m.ServerContent.ModelTurn.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			continue
		}
		chunks = append(chunks, raw)
	}
	return chunks
}

func (s *liveSession) Close() {
	s.conn.Close()
}
