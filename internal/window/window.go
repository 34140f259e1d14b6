package window

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
)

var ErrPopupBlocked = errors.New("popup blocked")
var ErrClosed = fmt.Errorf("window closed: %w", channel.ErrChannelUnavailable)
var ErrNotLoaded = fmt.Errorf("window not loaded: %w", channel.ErrChannelUnavailable)

// Window is a handle to another browsing context.
type Window interface {
	channel.Target
	Name() string
	Closed() bool
	Focus()
	Close()
}

// Opener creates child windows. A window whose name is already in use and
// still open is handed back instead of a new one.
type Opener interface {
	Open(url, name string, features Features) (Window, error)
}

type Features struct {
	Width      int
	Height     int
	Resizable  bool
	Scrollbars bool
	Menubar    bool
	Toolbar    bool
}

// DisplayFeatures are the hints the control page opens its display with.
var DisplayFeatures = Features{Width: 1200, Height: 800, Resizable: true}

// String renders f the way window.open expects its feature list.
func (f Features) String() string {
	parts := make([]string, 0, 6)
	if f.Width > 0 {
		parts = append(parts, fmt.Sprintf("width=%d", f.Width))
	}
	if f.Height > 0 {
		parts = append(parts, fmt.Sprintf("height=%d", f.Height))
	}
	parts = append(parts,
		"resizable="+yesNo(f.Resizable),
		"scrollbars="+yesNo(f.Scrollbars),
		"menubar="+yesNo(f.Menubar),
		"toolbar="+yesNo(f.Toolbar),
	)
	return strings.Join(parts, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
