package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/opd-ai/wirechat/events"
)

var (
	peerColor   = color.New(color.FgCyan, color.Bold)
	selfColor   = color.New(color.FgHiBlack)
	fileColor   = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen)
	failColor   = color.New(color.FgRed)
	statusColor = color.New(color.FgMagenta)
)

type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) event(e events.Event) {
	text, c := describe(e)
	if text == "" {
		return
	}
	p.line(c, "%s", text)
}

func (p *printer) status(format string, args ...any) {
	p.line(statusColor, "* "+format, args...)
}

func (p *printer) warn(format string, args ...any) {
	p.line(failColor, "! "+format, args...)
}

func (p *printer) line(c *color.Color, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Fprintf(p.w, format+"\n", args...)
}

// describe renders one event as a line of text and picks its color.
func describe(e events.Event) (string, *color.Color) {
	switch e.Kind {
	case events.KindMessageReceived:
		return "peer: " + string(e.Payload), peerColor
	case events.KindMessageSent:
		return "me: " + string(e.Payload), selfColor
	case events.KindTransferStarted:
		verb := "receiving"
		if e.Direction == events.DirectionOutgoing {
			verb = "sending"
		}
		return fmt.Sprintf("%s %s (%s)", verb, e.Name, humanize.IBytes(e.Size)), fileColor
	case events.KindProgress:
		return fmt.Sprintf("%s %d%%", e.Name, e.Percent), fileColor
	case events.KindTransferCompleted:
		if e.Name == "" {
			return "peer ended a transfer that was not in progress", fileColor
		}
		if e.Direction == events.DirectionOutgoing {
			return fmt.Sprintf("sent %s (%s, blake2b %s)", e.Name, humanize.IBytes(e.Size), shortDigest(e.Digest)), okColor
		}
		return fmt.Sprintf("received %s -> %s (%s, %s, blake2b %s)",
			e.Name, e.Path, humanize.IBytes(e.Size), e.MimeType, shortDigest(e.Digest)), okColor
	case events.KindTransferFailed:
		return fmt.Sprintf("%s transfer of %s failed after %s: %v",
			e.Direction, e.Name, humanize.IBytes(e.Size), e.Err), failColor
	case events.KindConnectionLost:
		return fmt.Sprintf("connection lost: %v", e.Err), failColor
	default:
		return "", nil
	}
}

func shortDigest(d []byte) string {
	if len(d) > 8 {
		d = d[:8]
	}
	return hex.EncodeToString(d)
}
