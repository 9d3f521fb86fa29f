package tui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Stats summarizes one completed stream.
type Stats struct {
	Chunks  int
	Runes   int
	Elapsed time.Duration
}

// Client streams answers about one document from the paperqa service.
type Client struct {
	url        string
	pdfContent string
	http       *http.Client
}

// NewClient creates a streaming client bound to a server URL and a base64
// document payload. No client-side timeout: the server enforces the request
// budget and the stream can legitimately run for minutes.
func NewClient(url, pdfContent string) *Client {
	return &Client{url: url, pdfContent: pdfContent, http: &http.Client{}}
}

type qaRequest struct {
	Query      string `json:"query"`
	PDFContent string `json:"pdf_content"`
}

type chunkFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

const doneFrame = "[DONE]"

// Stream POSTs the question and forwards every content chunk to onChunk
// until the terminal frame. onChunk runs on the calling goroutine.
func (c *Client) Stream(ctx context.Context, query string, onChunk func(string)) (Stats, error) {
	start := time.Now()
	body, err := json.Marshal(qaRequest{Query: query, PDFContent: c.pdfContent})
	if err != nil {
		return Stats{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Stats{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Detail string `json:"detail"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Detail != "" {
			return Stats{}, fmt.Errorf("server: %s: %s", resp.Status, e.Detail)
		}
		return Stats{}, fmt.Errorf("server: %s", resp.Status)
	}

	var stats Stats
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		payload, ok := framePayload(scanner.Text())
		if !ok {
			continue
		}
		if payload == doneFrame {
			stats.Elapsed = time.Since(start)
			return stats, nil
		}
		var frame chunkFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil || len(frame.Choices) == 0 {
			continue
		}
		if text := frame.Choices[0].Delta.Content; text != "" {
			stats.Chunks++
			stats.Runes += utf8.RuneCountInString(text)
			onChunk(text)
		}
	}
	stats.Elapsed = time.Since(start)
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read stream: %w", err)
	}
	return stats, fmt.Errorf("stream ended without its terminal frame")
}

// framePayload strips the SSE data prefix off a frame line, tolerating the
// doubled prefix some proxies produce.
func framePayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data: ") {
		return "", false
	}
	payload := strings.TrimPrefix(line, "data: ")
	payload = strings.TrimPrefix(payload, "data: ")
	return payload, true
}
