package cmd

import (
	"fmt"
)

const banner = `
   ___  ____    __        _______ ____
  / _ \|  _ \   \ \      / / ____| __ )
 | | | | |_) |   \ \ /\ / /|  _| |  _ \
 | |_| |  __/ _   \ V  V / | |___| |_) |
  \___/|_|   (_)   \_/\_/  |_____|____/
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m\n", banner)
	fmt.Printf("\x1b[32m  Forum Server - Version %s\x1b[0m\n\n", Version)
}
