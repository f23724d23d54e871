package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/openeuler-mirror/xlin-sbom/cmd/xlin-sbom/commands"
)

func main() {
	// Image scans lean on FUSE and Unix package databases; there is no
	// native Windows story.
	if runtime.GOOS == "windows" {
		fmt.Println("Error: xlin-sbom does not support native Windows.")
		fmt.Println("Run it inside WSL2 or any Linux environment.")
		os.Exit(1)
	}

	commands.Execute()
}
