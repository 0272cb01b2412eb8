// Package keyboard watches the controlling terminal for the quit key when
// no display window is open.
package keyboard

import (
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"sync/atomic"
)

var ErrNotTerminal = errors.New("keyboard: stdin is not a terminal")

// Listen reads keys from r until 'q' (or 'Q') arrives, then calls onQuit.
// It returns when r ends or fails.
func Listen(r io.Reader, onQuit func(reason string)) error {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if b == 'q' || b == 'Q' {
			if onQuit != nil {
				onQuit("quit key")
			}
			return nil
		}
	}
}

// WatchStdin puts the terminal into cbreak mode (no line buffering, no
// echo) and listens for the quit key in the background. The returned
// restore func puts the terminal back; call it before exiting.
//
// A blocked read on stdin cannot be interrupted, so the listener goroutine
// lives for the rest of the process. After restore it no longer calls
// onQuit.
func WatchStdin(onQuit func(reason string)) (restore func(), err error) {
	fd := int(os.Stdin.Fd())
	undo, err := makeCBreakFn(fd)
	if err != nil {
		return func() {}, err
	}
	detach := watch(os.Stdin, onQuit)
	return func() {
		detach()
		if err := undo(); err != nil {
			log.Printf("keyboard: restore terminal: %v", err)
		}
	}, nil
}

// watch runs Listen on r in a new goroutine. Calling the returned func
// stops onQuit from being called; the goroutine itself exits only when r
// ends or the quit key arrives.
func watch(r io.Reader, onQuit func(reason string)) (detach func()) {
	var detached atomic.Bool
	go func() {
		err := Listen(r, func(reason string) {
			if !detached.Load() && onQuit != nil {
				onQuit(reason)
			}
		})
		if err != nil && !detached.Load() {
			log.Printf("keyboard: stdin: %v", err)
		}
	}()
	return func() { detached.Store(true) }
}
