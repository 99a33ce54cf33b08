// Command dlog_server hosts the NATS JetStream endpoint bridge nodes ship
// audit events to and shows signing progress per action in a terminal UI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/nats-io/nats.go"
	"github.com/rivo/tview"

	"github.com/rafnixschaf/iota-sub000/log"
	"github.com/rafnixschaf/iota-sub000/utils"
)

var (
	host     = flag.String("host", "127.0.0.1", "NATS listen host")
	port     = flag.Int("port", 4222, "NATS listen port")
	storeDir = flag.String("store", "", "JetStream storage directory")
)

// handleMessage decodes one audit event, feeds the tracker and returns the
// line for the raw view.
func handleMessage(tracker *Tracker, data []byte) string {
	lw := LogWrapper{}
	if err := json.Unmarshal(data, &lw); err != nil {
		log.Warningf("message unmarshal error: %s: %s", err, string(data))
		return ""
	}
	tracker.Apply(lw)

	now := time.Now().Format(time.TimeOnly)
	switch v := lw.Log.(type) {
	case *ActionSignedLog:
		return fmt.Sprintf("[purple]%s [green]signed [white]node[red]%s [white]%s #%d by [red]%s\n", now, v.NodeID, v.ActionType, v.Nonce, v.Authority)
	case *SignatureRejectedLog:
		return fmt.Sprintf("[purple]%s [yellow]rejected [white]node[red]%s [white]digest[red]%s [white]%s\n", now, v.NodeID, v.Digest, v.Error)
	case *ActionCertifiedLog:
		return fmt.Sprintf("[purple]%s [green]certified [white]node[red]%s [white]%s #%d weight=[red]%d\n", now, v.NodeID, v.ActionType, v.Nonce, v.Weight)
	case *QuorumNotMetLog:
		return fmt.Sprintf("[purple]%s [yellow]quorum not met [white]node[red]%s [white]%s #%d [red]%d/%d\n", now, v.NodeID, v.ActionType, v.Nonce, v.Have, v.Need)
	}
	return fmt.Sprintf("[purple]%s [green]unknown [white]type[red]%s\n", now, lw.Type)
}

func main() {
	flag.Parse()

	app := tview.NewApplication()
	contentPages := tview.NewPages()

	funcSelect := tview.NewTable().SetBorders(false).SetFixed(1, 2)
	funcSelect.SetSelectable(true, false).SetBackgroundColor(tcell.ColorBlack)
	funcSelect.SetCell(0, 0, tview.NewTableCell("raw").SetAlign(tview.AlignCenter))
	funcSelect.SetCell(0, 1, tview.NewTableCell("log").SetAlign(tview.AlignCenter))
	funcSelect.SetCell(0, 2, tview.NewTableCell("act").SetAlign(tview.AlignCenter))
	funcSelect.SetCell(0, 3, tview.NewTableCell("ans").SetAlign(tview.AlignCenter))
	funcSelect.Select(0, 0)

	rootFlex := tview.NewFlex()
	rootFlex.SetDirection(tview.FlexRow)
	rootFlex.AddItem(contentPages, 0, 1, false).AddItem(funcSelect, 1, 0, true)

	rawMsgView := tview.NewTextView().SetDynamicColors(true)
	rawMsgView.SetTitle("raw event view").SetBorder(true)
	contentPages.AddPage("raw", rawMsgView, true, true)

	programLogView := tview.NewTextView().SetDynamicColors(true)
	programLogView.SetTitle("program log view").SetBorder(true)
	contentPages.AddPage("log", programLogView, true, true)
	log.Setup("info", false, tview.ANSIWriter(programLogView))

	actionViewTable := tview.NewTable().SetBorders(true)
	actionView := tview.NewFlex()
	actionView.AddItem(actionViewTable, 0, 1, true)
	contentPages.AddPage("act", actionView, true, true)
	actionViewTable.Select(0, 0)

	analysisView := tview.NewTextView().SetDynamicColors(true)
	analysisView.SetTitle("analysis view").SetBorder(true)
	contentPages.AddPage("ans", analysisView, true, true)

	tracker := NewTracker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	utils.Schedule(ctx, time.Second, func() {
		app.QueueUpdateDraw(func() {
			for r, row := range tracker.Rows() {
				for c, col := range row {
					actionViewTable.SetCell(r, c, tview.NewTableCell(col))
				}
			}
			analysisView.SetText(tracker.Summary())
			rawMsgView.ScrollToEnd()
			programLogView.ScrollToEnd()
		})
	})

	nctx, err := setupNATS(*host, *port, *storeDir, func(msg *nats.Msg, ackError error) {
		if ackError != nil {
			log.Warningf("ack error: %s", ackError)
			return
		}
		if line := handleMessage(tracker, msg.Data); line != "" {
			fmt.Fprint(rawMsgView, line)
		}
	})
	if err != nil {
		log.Fatal(err)
	}

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		r, c := funcSelect.GetSelection()
		nc := c

		switch event.Key() {
		case tcell.KeyF3: // prev
			if c > 0 {
				nc -= 1
			}
		case tcell.KeyF4: // next
			if c < funcSelect.GetColumnCount()-1 {
				nc += 1
			}
		}

		if c != nc {
			funcSelect.GetCell(r, c).SetTextColor(tcell.ColorWhite)
			funcSelect.GetCell(r, nc).SetTextColor(tcell.ColorPurple)
			funcSelect.Select(r, nc)
			contentPages.SwitchToPage(funcSelect.GetCell(r, nc).Text)
		}

		if funcSelect.GetCell(r, nc).Text == "act" {
			switch event.Key() {
			case tcell.KeyUp:
				app.SetFocus(actionViewTable)
			case tcell.KeyDown:
				app.SetFocus(funcSelect)
			}
		}
		return event
	})

	if err := app.SetRoot(rootFlex, true).SetFocus(funcSelect).Run(); err != nil {
		log.Fatal(err)
	}

	if err := nctx.Shutdown(); err != nil {
		log.Warningf("error shutting down NATS connection: %v", err)
	}
	log.Info("NATS server shutdown complete")
}
