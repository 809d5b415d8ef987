package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/ui"
)

// statusReport is the JSON form of `ippower status`
type statusReport struct {
	Address string                `json:"address"`
	Status  engine.Status         `json:"status"`
	Error   string                `json:"error,omitempty"`
	Sockets []device.SocketRecord `json:"sockets"`
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

// writeCompact writes one line per socket: "1  Router  on"
func writeCompact(w io.Writer, sockets []device.SocketRecord) {
	for _, rec := range sockets {
		state, _ := rec.Power.MarshalText()
		fmt.Fprintf(w, "%d\t%s\t%s\n", int(rec.ID), rec.Name, state)
	}
}

// printSockets prints the socket list in the selected format
func printSockets(address string, status engine.Status, statusErr error, sockets []device.SocketRecord) error {
	switch outputFormat {
	case "json":
		report := statusReport{Address: address, Status: status, Sockets: sockets}
		if statusErr != nil {
			report.Error = statusErr.Error()
		}
		return printJSON(report)
	case "compact":
		writeCompact(os.Stdout, sockets)
	default:
		ui.NewPrinter(nil).PrintSockets(fmt.Sprintf("%s  %s", strings.ToUpper(address), status), sockets)
	}
	return nil
}

// printResult prints the outcome of a command on one socket
func printResult(title string, rec device.SocketRecord, err error) error {
	switch outputFormat {
	case "json":
		resp := map[string]any{"ok": err == nil, "socket": rec}
		if err != nil {
			resp["error"] = err.Error()
		}
		if jerr := printJSON(resp); jerr != nil {
			return jerr
		}
	case "compact":
		if err == nil {
			writeCompact(os.Stdout, []device.SocketRecord{rec})
		}
	default:
		p := ui.NewPrinter(nil)
		if err != nil {
			p.PrintError(title+" failed", err)
		} else {
			p.PrintSuccess(title, []string{"Socket", "Name", "Power"}, map[string]string{
				"Socket": fmt.Sprintf("%d", int(rec.ID)),
				"Name":   rec.Name,
				"Power":  rec.Power.String(),
			})
		}
	}
	return err
}
