package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

var (
	consoleMu  sync.Mutex
	consoleOut io.Writer = os.Stdout
)

// SetConsole redirects console lines; nil restores stdout.
func SetConsole(w io.Writer) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	consoleOut = w
}

func TimeHM() string {
	return time.Now().Format("15:04")
}

func Colorize(s string, color string) string {
	if color == "" {
		return s
	}
	return color + s + ColorReset
}

// Line prints a single console line prefixed with HH:MM.
// Lines from concurrent goroutines are not interleaved.
func Line(label string, labelColor string, msg string) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if label != "" {
		fmt.Fprintf(consoleOut, "%s %s %s\n", TimeHM(), Colorize(label, labelColor), msg)
		return
	}
	fmt.Fprintf(consoleOut, "%s %s\n", TimeHM(), msg)
}

func Linef(label string, labelColor string, format string, args ...any) {
	Line(label, labelColor, fmt.Sprintf(format, args...))
}
