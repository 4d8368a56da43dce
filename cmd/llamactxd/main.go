// Command llamactxd serves and drives local LLM inference contexts.
package main

import (
	"os"

	_ "llamactx/internal/llamacpp"
	_ "llamactx/internal/toymodel"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
