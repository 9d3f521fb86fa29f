package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// chunkFrame is the OpenAI-style completion chunk each content event rides
// in on the wire.
type chunkFrame struct {
	Object  string   `json:"object"`
	Choices []choice `json:"choices"`
}

type choice struct {
	Delta delta `json:"delta"`
}

type delta struct {
	Content string `json:"content"`
}

// sseWriter frames stream events for one response, flushing after every
// frame so heartbeats actually reach the client.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &sseWriter{w: w, flusher: flusher}, nil
}

// content writes one completion-chunk frame. HTML escaping is off so Chinese
// text and markdown pass through verbatim.
func (s *sseWriter) content(text string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(chunkFrame{
		Object:  "chat.completion.chunk",
		Choices: []choice{{Delta: delta{Content: text}}},
	}); err != nil {
		return err
	}
	// Encode appends a newline; the frame needs exactly "data: <json>\n\n".
	payload := bytes.TrimRight(buf.Bytes(), "\n")
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// done writes the literal terminal frame.
func (s *sseWriter) done() error {
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
