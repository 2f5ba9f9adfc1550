package display

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Color identifies a semantic terminal color.
type Color string

const (
	ColorReset   Color = "reset"
	ColorRed     Color = "red"
	ColorGreen   Color = "green"
	ColorYellow  Color = "yellow"
	ColorBlue    Color = "blue"
	ColorMagenta Color = "magenta"
	ColorCyan    Color = "cyan"
	ColorWhite   Color = "white"
)

// ColorTheme maps report roles onto terminal colors.
type ColorTheme struct {
	Success   Color
	Warning   Color
	Error     Color
	Info      Color
	Muted     Color
	Highlight Color
}

// DefaultTheme returns the theme used by both pipelines' reports.
func DefaultTheme() ColorTheme {
	return ColorTheme{
		Success:   ColorGreen,
		Warning:   ColorYellow,
		Error:     ColorRed,
		Info:      ColorCyan,
		Muted:     ColorWhite,
		Highlight: ColorBlue,
	}
}

// ColorSystem handles color application and terminal detection.
type ColorSystem interface {
	Colorize(text string, clr Color) string
	Sprintf(clr Color, format string, args ...interface{}) string
	IsColorSupported() bool
	Theme() ColorTheme
}

type colorSystem struct {
	theme          ColorTheme
	colorSupported bool
	profile        termenv.Profile
	colorMap       map[Color]*color.Color
}

// NewColorSystem creates a color system with terminal detection. Passing
// noColor true forces plain output regardless of the terminal.
func NewColorSystem(theme ColorTheme, noColor bool) ColorSystem {
	cs := &colorSystem{
		theme:          theme,
		colorSupported: !noColor && detectColorSupport(),
		profile:        termenv.ColorProfile(),
	}
	cs.colorMap = map[Color]*color.Color{
		ColorReset:   color.New(color.Reset),
		ColorRed:     color.New(color.FgRed),
		ColorGreen:   color.New(color.FgGreen),
		ColorYellow:  color.New(color.FgYellow),
		ColorBlue:    color.New(color.FgBlue),
		ColorMagenta: color.New(color.FgMagenta),
		ColorCyan:    color.New(color.FgCyan),
		ColorWhite:   color.New(color.FgWhite),
	}
	if !cs.colorSupported {
		color.NoColor = true
	}
	return cs
}

// detectColorSupport checks whether stdout is a color-capable terminal.
func detectColorSupport() bool {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return termenv.ColorProfile() != termenv.Ascii
}

func (cs *colorSystem) Colorize(text string, clr Color) string {
	if !cs.colorSupported {
		return text
	}
	if colorFunc, exists := cs.colorMap[clr]; exists {
		return colorFunc.Sprint(text)
	}
	return text
}

func (cs *colorSystem) Sprintf(clr Color, format string, args ...interface{}) string {
	return cs.Colorize(fmt.Sprintf(format, args...), clr)
}

func (cs *colorSystem) IsColorSupported() bool {
	return cs.colorSupported
}

func (cs *colorSystem) Theme() ColorTheme {
	return cs.theme
}
