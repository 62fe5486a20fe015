package tui

import (
	"errors"
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// ErrUnknownTheme is returned for an unrecognized theme name.
var ErrUnknownTheme = errors.New("unknown theme")

// Theme holds the styles of the stepper.
type Theme struct {
	Name        string
	Base        tcell.Style
	Gutter      tcell.Style
	CurrentLine tcell.Style
	Title       tcell.Style
	Error       tcell.Style
	Status      tcell.Style
	Modal       tcell.Style
	Tokens      map[Class]tcell.Style
}

// Token returns the style of a token class.
func (t Theme) Token(c Class) tcell.Style {
	if s, ok := t.Tokens[c]; ok {
		return s
	}
	return t.Base
}

// ThemeByName returns a built-in theme: dark, light or mono.
func ThemeByName(name string) (Theme, error) {
	switch name {
	case "", "dark":
		return darkTheme(), nil
	case "light":
		return lightTheme(), nil
	case "mono":
		return monoTheme(), nil
	default:
		return Theme{}, fmt.Errorf("%w: %q", ErrUnknownTheme, name)
	}
}

func darkTheme() Theme {
	base := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorSilver)
	return Theme{
		Name:        "dark",
		Base:        base,
		Gutter:      base.Foreground(tcell.ColorGray),
		CurrentLine: base.Background(tcell.ColorNavy).Foreground(tcell.ColorWhite),
		Title:       base.Foreground(tcell.ColorYellow).Bold(true),
		Error:       base.Foreground(tcell.ColorRed).Bold(true),
		Status:      base.Background(tcell.ColorTeal).Foreground(tcell.ColorBlack),
		Modal:       base.Background(tcell.ColorMaroon).Foreground(tcell.ColorWhite),
		Tokens: map[Class]tcell.Style{
			ClassKeyword:  base.Foreground(tcell.ColorFuchsia),
			ClassString:   base.Foreground(tcell.ColorGreen),
			ClassNumber:   base.Foreground(tcell.ColorAqua),
			ClassComment:  base.Foreground(tcell.ColorGray).Italic(true),
			ClassConstant: base.Foreground(tcell.ColorOrange),
			ClassFunction: base.Foreground(tcell.ColorBlue).Bold(true),
		},
	}
}

func lightTheme() Theme {
	base := tcell.StyleDefault.Background(tcell.ColorWhite).Foreground(tcell.ColorBlack)
	return Theme{
		Name:        "light",
		Base:        base,
		Gutter:      base.Foreground(tcell.ColorGray),
		CurrentLine: base.Background(tcell.ColorLightYellow),
		Title:       base.Foreground(tcell.ColorNavy).Bold(true),
		Error:       base.Foreground(tcell.ColorRed).Bold(true),
		Status:      base.Background(tcell.ColorSilver),
		Modal:       base.Background(tcell.ColorLightBlue),
		Tokens: map[Class]tcell.Style{
			ClassKeyword:  base.Foreground(tcell.ColorPurple),
			ClassString:   base.Foreground(tcell.ColorGreen),
			ClassNumber:   base.Foreground(tcell.ColorTeal),
			ClassComment:  base.Foreground(tcell.ColorGray).Italic(true),
			ClassConstant: base.Foreground(tcell.ColorOlive),
			ClassFunction: base.Foreground(tcell.ColorBlue),
		},
	}
}

func monoTheme() Theme {
	base := tcell.StyleDefault
	return Theme{
		Name:        "mono",
		Base:        base,
		Gutter:      base.Dim(true),
		CurrentLine: base.Reverse(true),
		Title:       base.Bold(true),
		Error:       base.Bold(true).Underline(true),
		Status:      base.Reverse(true),
		Modal:       base.Reverse(true),
		Tokens: map[Class]tcell.Style{
			ClassKeyword: base.Bold(true),
			ClassComment: base.Dim(true),
		},
	}
}
