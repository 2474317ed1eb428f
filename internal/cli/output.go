package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

type readResult struct {
	Reader string `json:"reader"`
	Start  *int   `json:"start_block,omitempty"`
	Length int    `json:"length"`
	Data   string `json:"data"`
}

// printData writes card bytes in the requested format.
func printData(w io.Writer, format, reader string, start *int, data []byte) error {
	switch format {
	case "", "text":
		_, err := io.WriteString(w, hex.Dump(data))
		return err
	case "raw":
		_, err := w.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(readResult{
			Reader: reader,
			Start:  start,
			Length: len(data),
			Data:   hex.EncodeToString(data),
		})
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or raw)", format)
	}
}

func blockRef(n int) *int {
	return &n
}
