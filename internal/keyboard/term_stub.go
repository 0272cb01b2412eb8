//go:build !linux

package keyboard

func makeCBreak(int) (func() error, error) {
	return nil, ErrNotTerminal
}

var makeCBreakFn = makeCBreak
