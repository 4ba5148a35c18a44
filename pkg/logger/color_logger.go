// Package logger colours lifecycle lines on a terminal.
package logger

import (
	"fmt"
	"log"
)

type ColorLogger struct {
	*log.Logger
	plain bool
}

type Color string

const (
	ColorBlack  Color = "\u001b[30m"
	ColorRed    Color = "\u001b[31m"
	ColorGreen  Color = "\u001b[32m"
	ColorYellow Color = "\u001b[33m"
	ColorBlue   Color = "\u001b[34m"
	ColorReset  Color = "\u001b[0m"
)

// NewColorLogger wraps lg. With plain set no escape codes are written,
// which is what a log file or a pipe wants.
func NewColorLogger(lg *log.Logger, plain bool) *ColorLogger {
	return &ColorLogger{Logger: lg, plain: plain}
}

func (c *ColorLogger) Printcf(color Color, format string, args ...interface{}) {
	c.Printc(color, fmt.Sprintf(format, args...))
}

func (c *ColorLogger) Printc(color Color, s string) {
	if c.plain {
		c.Print(s)
		return
	}
	c.Print(string(color) + s + string(ColorReset))
}

func (c *ColorLogger) Errorf(format string, args ...interface{}) {
	c.Printcf(ColorRed, format, args...)
}

func (c *ColorLogger) Infof(format string, args ...interface{}) {
	c.Printcf(ColorBlue, format, args...)
}
