// main.go - shieldctl, the ShadowWire command line client.
//
// Usage:
//   shieldctl prove --value 4200 --bits 32
//   shieldctl verify --proof <hex> --commitment <hex> --bits 32
//   shieldctl shield --relay http://localhost:8080 --sender alice --amount 4200
//   shieldctl keys --dir keys --max-bits 64
package main

import (
	"os"
)

func main() {
	if err := ShieldCtlCMD().Execute(); err != nil {
		os.Exit(1)
	}
}
