package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"paperqa/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var url string
	flag.StringVar(&url, "url", "http://localhost:3000/paper_qa", "paper_qa endpoint URL")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: paperqa-client [--url=http://localhost:3000/paper_qa] <paper.pdf|paper.txt>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	pdfContent, err := loadDocument(path)
	if err != nil {
		log.Fatalf("failed to load document: %v", err)
	}

	m := tui.New(tui.NewClient(url, pdfContent), filepath.Base(path))
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

// loadDocument returns the base64 payload for path. A .txt file holds an
// already-encoded document; anything else is raw PDF bytes to encode.
func loadDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return strings.TrimSpace(string(data)), nil
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
