// Package cvwindow shows render scenes in a full-screen OpenCV window.
package cvwindow

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/render"
)

// KeyEsc is the key code that quits the window.
const KeyEsc = 27

// IconSize is the edge of the minimized window in pixels.
const IconSize = 50

// Draw paints s onto mat, which must be a 3-channel BGR image of the
// scene's screen size.
func Draw(mat *gocv.Mat, s render.Scene) {
	mat.SetTo(scalar(s.Background))
	for _, c := range s.Circles {
		gocv.Circle(mat, pt(c.Center), c.Radius, rgba(c.Color), -1)
	}
	for _, t := range s.Texts {
		const scale, thickness = 1.0, 2
		size := gocv.GetTextSize(t.Content, gocv.FontHersheySimplex, scale, thickness)
		org := image.Pt(t.Center.X-size.X/2, t.Center.Y+size.Y/2)
		gocv.PutText(mat, t.Content, org, gocv.FontHersheySimplex, scale, rgba(t.Color), thickness)
	}
}

// Window is a render.Display backed by a gocv window.
type Window struct {
	win    *gocv.Window
	screen gaze.Screen
	canvas gocv.Mat
	icon   gocv.Mat

	minimized bool
	quit      bool
}

var _ render.Display = (*Window)(nil)

// Open creates a full-screen window named name.
func Open(name string, screen gaze.Screen) (*Window, error) {
	if err := screen.Validate(); err != nil {
		return nil, err
	}
	win := gocv.NewWindow(name)
	win.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowFullscreen)
	return &Window{
		win:    win,
		screen: screen,
		canvas: gocv.NewMatWithSize(screen.Height, screen.Width, gocv.MatTypeCV8UC3),
		icon:   gocv.NewMatWithSize(IconSize, IconSize, gocv.MatTypeCV8UC3),
	}, nil
}

// Render implements render.Display. A minimizing scene shrinks the window
// to an icon in the bottom-right corner once; later scenes keep it there.
func (w *Window) Render(s render.Scene) error {
	if s.Minimize {
		if !w.minimized {
			w.win.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowNormal)
			w.win.ResizeWindow(IconSize, IconSize)
			w.win.MoveWindow(w.screen.Width-IconSize, w.screen.Height-IconSize)
			w.icon.SetTo(scalar(render.Background))
			w.minimized = true
		}
		w.win.IMShow(w.icon)
	} else {
		if w.minimized {
			w.win.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowFullscreen)
			w.minimized = false
		}
		Draw(&w.canvas, s)
		w.win.IMShow(w.canvas)
	}
	if w.win.WaitKey(1) == KeyEsc {
		w.quit = true
	}
	return nil
}

// Quit implements render.Display.
func (w *Window) Quit() bool {
	return w.quit
}

// Close releases the window and its buffers.
func (w *Window) Close() error {
	w.canvas.Close()
	w.icon.Close()
	return w.win.Close()
}

func pt(p gaze.Point) image.Point {
	return image.Pt(p.X, p.Y)
}

func rgba(c render.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0}
}

func scalar(c render.Color) gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}
