package cmdutils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const logo = "🌊"

func PrintResponse(text string) {
	if text == "" {
		return
	}
	fmt.Printf("\n%s tidewire\n%s\n\n", logo, text)
}

// PrintJSON writes v as indented JSON to stdout.
func PrintJSON(v any) error {
	return WriteJSON(os.Stdout, v)
}

func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
