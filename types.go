package blazert

// No is a no-op Locker used as a noCopy marker.
type No struct{}

func (*No) Lock() {}

func (*No) Unlock() {}

// Closer is anything a nursery or runtime can close on exit. Every channel
// flavour in package channel satisfies it.
type Closer interface {
	Close() error
}

// Colors are the ANSI sequences used by the banner and the demo report.
// An empty field prints uncoloured.
type Colors struct {
	noCopy No //nolint:unused,structcheck

	Black, Red, Green, Yellow string
	Blue, Cyan                string
	// Reset ends a coloured run. Default: "\u001b[0m"
	Reset string
}

// Paint wraps s in color followed by c.Reset.
func (c *Colors) Paint(color, s string) string {
	if color == "" {
		return s
	}
	return color + s + c.Reset
}
