package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeyPause    = " "
	KeyStep     = "n"
	KeySuspend  = "s"
	KeySettings = "c"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView(paused bool) string {
	drive := "space: pause"
	if paused {
		drive = "space: resume | n: step"
	}
	return StyleHelp.Render("Tab: cycle focus | j/k: select | s: suspend/resume task | " + drive + " | c: settings | q: quit")
}
