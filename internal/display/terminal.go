package display

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Terminal renders the buffer as a bordered panel in a full-screen terminal
// application. Run blocks in its own goroutine; Render may be called from
// any goroutine.
type Terminal struct {
	app  *tview.Application
	view *tview.TextView
}

// NewTerminal builds the panel for a cols by rows display.
func NewTerminal(title string, cols, rows int) *Terminal {
	view := tview.NewTextView().
		SetDynamicColors(false).
		SetTextColor(tcell.ColorLightGreen)
	view.SetBorder(true).SetTitle(" " + title + " ")
	view.SetBackgroundColor(tcell.ColorDarkBlue)

	// Centre a fixed-size box: border adds two cells each way.
	box := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(view, rows+2, 0, false).
			AddItem(nil, 0, 1, false), cols+2, 0, false).
		AddItem(nil, 0, 1, false)

	app := tview.NewApplication().SetRoot(box, true)
	return &Terminal{app: app, view: view}
}

// Run starts the terminal event loop and blocks until Stop.
func (t *Terminal) Run() error {
	return t.app.Run()
}

// Stop ends the event loop and restores the terminal.
func (t *Terminal) Stop() {
	t.app.Stop()
}

func (t *Terminal) Render(rows []string) {
	text := strings.Join(rows, "\n")
	t.app.QueueUpdateDraw(func() {
		t.view.SetText(text)
	})
}
