package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func row(w io.Writer, label string, format string, args ...any) {
	fmt.Fprintf(w, "%-18s %s\n", label+":", fmt.Sprintf(format, args...))
}
