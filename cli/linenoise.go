package cli

import (
	"bytes"
	"fmt"
	"github.com/peterh/liner"
	"io"
	"os"
	"path/filepath"
)

// LineNoise is the line editor used by the interactive prompt.
type LineNoise struct {
	*liner.State
}

func NewLineNoise() *LineNoise {
	ln := &LineNoise{liner.NewLiner()}
	ln.SetCtrlCAborts(true)
	return ln
}

// HistoryLoad reads a saved history, returning how many lines were loaded.
// A missing file is an empty history.
func (ln *LineNoise) HistoryLoad(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ln.ReadHistory(f)
}

// HistorySave writes the history to path, creating its directory if needed.
func (ln *LineNoise) HistorySave(path string) error {
	var buf bytes.Buffer
	if _, err := ln.WriteHistory(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0600)
}

func (ln *LineNoise) ClearScreen(out io.Writer) error {
	_, err := fmt.Fprint(out, "\x1b[H\x1b[2J")
	return err
}
