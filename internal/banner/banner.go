package banner

import (
	"fmt"
	"io"
	"strings"
)

const banner = `
  _           _                                             
 | |__   ___ | |_ _ __ ___   __ _ _ __   __ _  __ _  ___ _ __ 
 | '_ \ / _ \| __| '_ ' _ \ / _' | '_ \ / _' |/ _' |/ _ \ '__|
 | |_) | (_) | |_| | | | | | (_| | | | | (_| | (_| |  __/ |   
 |_.__/ \___/ \__|_| |_| |_|\__,_|_| |_|\__,_|\__, |\___|_|   
                                              |___/           
`

type StartupInfo struct {
	Version  string
	Addr     string
	LogLevel string
	DBDriver string
	LogsDir  string
}

func PrintBanner(w io.Writer, info StartupInfo) {
	fmt.Fprint(w, banner)
	fmt.Fprintf(w, "                                              v%s\n\n", info.Version)

	width := 50
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", width))
	fmt.Fprintf(w, "  → Address:   http://%s\n", formatAddr(info.Addr))
	fmt.Fprintf(w, "  → Log Level: %s\n", info.LogLevel)
	fmt.Fprintf(w, "  → Store:     %s\n", info.DBDriver)
	fmt.Fprintf(w, "  → Bot Logs:  %s\n", info.LogsDir)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", width))
	fmt.Fprintln(w)
}

func formatAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
