package blazert

import "fmt"

// Version of the runtime.
const Version = "0.1.0"

var blazertW = `
 ▄▄▄▄· ▄▄▌   ▄▄▄· ·▄▄▄▄•▄▄▄ .▄▄▄  ▄▄▄▄▄
▐█ ▀█▪██•  ▐█ ▀█ ▪▀·.█▌▀▄.▀·▀▄ █·•██
▐█▀▀█▄██▪  ▄█▀▀█ ▄█▀▀▀•▐▀▀▪▄▐▀▀▄  ▐█.▪
██▄▪▐█▐█▌▐▌▐█ ▪▐▌█▌▪▄█▀▐█▄▄▌▐█•█▌ ▐█▌·
·▀▀▀▀ .▀▀▀  ▀  ▀ ·▀▀▀ • ▀▀▀ .▀  ▀ ▀▀▀
`

var DefaultColors = Colors{
	Black:  "\u001b[90m",
	Red:    "\u001b[91m",
	Green:  "\u001b[92m",
	Yellow: "\u001b[93m",
	Blue:   "\u001b[94m",
	Cyan:   "\u001b[96m",
	Reset:  "\u001b[0m",
}

// Banner renders the startup banner. An empty color leaves it plain.
func Banner(color string) string {
	return DefaultColors.Paint(color, blazertW) + fmt.Sprintf(" blazert v%s\n", Version)
}
