//go:build !linux || (!arm && !arm64)

package killswitch

import "io"

func openLine(Config, func(active bool)) (io.Closer, error) {
	return nil, ErrUnsupported
}

var openLineFn = openLine
