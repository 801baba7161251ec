// Command discord-archiver archives Discord conversations and servers to
// append-only text logs, then keeps logging new messages until interrupted.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"log/slog"
	"os"

	"github.com/onnwee/discord-archiver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("archiver failed", slog.Any("err", err))
		os.Exit(1)
	}
}
