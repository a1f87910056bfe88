package display

import (
	"fmt"
	"io"

	"github.com/backmassage/clipmaster/internal/term"
)

const banner = `      _ _                         _
  ___| (_)_ __  _ __ ___   __ _ ___| |_ ___ _ __
 / __| | | '_ \| '_ ` + "`" + ` _ \ / _` + "`" + ` / __| __/ _ \ '__|
| (__| | | |_) | | | | | | (_| \__ \ ||  __/ |
 \___|_|_| .__/|_| |_| |_|\__,_|___/\__\___|_|
         |_|`

// PrintBanner prints the ASCII art banner in the title style.
func PrintBanner(w io.Writer) {
	fmt.Fprintln(w, term.Title.Render(banner))
}
