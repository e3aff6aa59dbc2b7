// Package clip copies refinement output to the user's clipboard.
package clip

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the content available.
type Method string

const (
	MethodNative Method = "native" // OS clipboard
	MethodOSC52  Method = "osc52"  // terminal clipboard escape sequence
	MethodFile   Method = "file"   // temp file; no clipboard was reachable
)

// Result reports how the content was copied.
type Result struct {
	Method   Method
	FilePath string // only set for MethodFile
}

// osc52LimitBytes caps escape sequence payloads; terminals drop larger ones.
const osc52LimitBytes = 100_000

// Copier tries the native clipboard, then OSC52 on a terminal, then a temp
// file.
type Copier struct {
	native     func(string) error
	terminal   io.Writer
	isTerminal func() bool
	getenv     func(string) string
	tempDir    string
}

// New creates a copier that emits OSC52 sequences on stderr.
func New() *Copier {
	return &Copier{
		native:     atotto.WriteAll,
		terminal:   os.Stderr,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stderr.Fd())) },
		getenv:     os.Getenv,
	}
}

// WriteAll copies text.
func (c *Copier) WriteAll(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if err := c.native(text); err == nil {
		return Result{Method: MethodNative}, nil
	}
	if err := c.writeOSC52(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := c.writeTempFile(text)
	if err != nil {
		return Result{}, fmt.Errorf("copying to temp file: %w", err)
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

// CopyJSON copies v as indented JSON.
func (c *Copier) CopyJSON(v interface{}) (Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encoding clipboard content: %w", err)
	}
	return c.WriteAll(string(data))
}

func (c *Copier) writeOSC52(text string) error {
	if !c.isTerminal() {
		return errors.New("not a terminal")
	}
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("text too large for OSC52 (%d bytes > %d)", len(text), osc52LimitBytes)
	}

	seq := osc52.New(text).Limit(osc52LimitBytes)
	if c.getenv("TMUX") != "" {
		seq = seq.Tmux()
	} else if c.getenv("STY") != "" {
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(c.terminal)
	return err
}

func (c *Copier) writeTempFile(text string) (path string, err error) {
	f, err := os.CreateTemp(c.tempDir, "flowrefine-clipboard-*.json")
	if err != nil {
		return "", err
	}
	path = f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err = f.WriteString(text); err != nil {
		_ = f.Close()
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
