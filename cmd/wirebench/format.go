package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/shhac/wirebench/internal/domain"
	"github.com/shhac/wirebench/internal/model"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printWorkspace(w io.Writer, ws *model.Workspace) {
	fmt.Fprintf(w, "workspace %s\n", ws.Name())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, col := range ws.Collections() {
		fmt.Fprintf(tw, "%s (%d)\n", col.Name(), col.Len())
		for _, t := range col.Tabs() {
			mark := " "
			if t.Selected() {
				mark = "*"
			}
			fmt.Fprintf(tw, "  %s %s\t%s\t%s\t%s\n", mark, shortID(t.ID()), t.DisplayLabel(), t.Name(), tabStatus(t))
		}
	}
	tw.Flush()
}

func tabStatus(t *model.Tab) string {
	if t.Kind() == model.KindWebSocket {
		return t.WebSocket().State().String()
	}
	return t.Status().String()
}

func printFailure(w io.Writer, f *model.Failure) {
	if f == nil {
		return
	}
	fmt.Fprintf(w, "error: %s: %s\n", f.Title, f.Message)
	if f.Details != "" {
		fmt.Fprintln(w, f.Details)
	}
}

func printHeaders(w io.Writer, headers []model.Header) {
	for _, h := range headers {
		fmt.Fprintf(w, "%s: %s\n", h.Name, h.Value)
	}
}

// printResult writes the outcome of the last attempt of t.
func printResult(w io.Writer, t *model.Tab) {
	switch t.Kind() {
	case model.KindHTTP:
		x := t.HTTP()
		resp := x.Response()
		fmt.Fprintf(w, "%s %s  %s\n", x.Method(), x.EffectiveTarget(), x.Status())
		if resp.Failure != nil {
			printFailure(w, resp.Failure)
			return
		}
		if !resp.Present {
			return
		}
		fmt.Fprintf(w, "%d %s  %s  %s\n", resp.StatusCode, resp.StatusText,
			model.FormatElapsed(resp.Elapsed), model.FormatSize(resp.SizeBytes))
		printHeaders(w, resp.Headers)
		fmt.Fprintln(w)
		fmt.Fprintln(w, resp.Preview)

	case model.KindGRPC:
		call := t.GRPC()
		fmt.Fprintf(w, "%s/%s @ %s  %s\n", call.Service(), call.Method(), call.Target(), call.Status())
		if code := call.StatusCode(); code != "" {
			fmt.Fprintf(w, "status %s  %s\n", code, model.FormatElapsed(call.Elapsed()))
		}
		printHeaders(w, call.ResponseHeaders())
		if f := call.Failure(); f != nil {
			printFailure(w, f)
		} else if p := call.ResponsePayload(); p != "" {
			fmt.Fprintln(w, p)
		}
		if trailers := call.ResponseTrailers(); len(trailers) > 0 {
			fmt.Fprintln(w, "trailers:")
			printHeaders(w, trailers)
		}

	case model.KindWebSocket:
		s := t.WebSocket()
		for _, e := range s.Transcript() {
			fmt.Fprintf(w, "%s [%s] %s\n", e.Timestamp.Format("15:04:05.000"), e.Direction, e.Text)
		}
		printFailure(w, s.LastError())
	}
}

func printServices(w io.Writer, services []domain.Service) {
	for _, svc := range services {
		fmt.Fprintln(w, svc.FullName)
		for _, m := range svc.Methods {
			fmt.Fprintf(w, "  %s(%s) returns (%s)  %s\n", m.Name, m.InputType, m.OutputType, m.Kind())
		}
	}
}

func printHistory(w io.Writer, entries []domain.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		status := e.Status
		if e.StatusCode != "" {
			status += " " + e.StatusCode
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			humanize.Time(e.Timestamp),
			strings.ToUpper(e.Protocol),
			e.Method, e.Target,
			status,
			model.FormatElapsed(e.Duration),
			model.FormatSize(e.Size),
		)
	}
	tw.Flush()
}
