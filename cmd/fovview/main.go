// Command fovview shows the field of view of an observer walking through a
// scene document, in the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"slices"
	"syscall"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/davecgh/go-spew/spew"
	"github.com/gdamore/tcell/v2"
)

const (
	moveStep = 0.25
	turnStep = 5
)

var _ = reflect.TypeOf(config{})

type config struct {
	Scene   string  `cli:"" env:"FOV_VIEW_SCENE" help:"The scene document to open (.json, .yaml or .yml)."`
	X       float64 `cli:"" env:"-"              help:"Initial observer X position."`
	Z       float64 `cli:"" env:"-"              help:"Initial observer Z position."`
	Heading float64 `cli:"" env:"-"              help:"Initial observer heading, in degrees."`
	Scale   float64 `cli:"" env:"-"              help:"Terminal cells per meter."`
	Dump    bool    `cli:"" env:"-"              help:"Print one evaluation and exit."`
	Help    bool    `cli:"" env:"-"              help:"Show help."`
}

func main() {
	conf := config{
		Scale: 2,
	}

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Shows the field of view of an observer in a scene.").
		Options(&conf)
	cli.Load()

	world, doc, err := loadWorld(conf.Scene)
	if err != nil {
		logs.Fatal(err)
	}

	observer := visibility.Observer{
		Position: geometry.Vector3{X: conf.X, Z: conf.Z},
		Heading:  conf.Heading,
	}
	engine := visibility.NewEngine(visibility.DefaultConfig(), world)

	if conf.Dump {
		spew.Dump(observer, engine.ComputeVisibilityPolygon(observer), engine.ComputeVisibleTargets(observer))
		return
	}

	v, err := newViewer(engine, doc, observer, conf.Scale)
	if err != nil {
		logs.Fatal(errors.New("initializing the terminal failed").Wrap(err))
	}
	defer v.screen.Fini()

	v.run(ctx)
}

func loadWorld(filename string) (*scene.World, scene.Document, error) {
	format, ok := scene.FormatOf(filename)
	if !ok {
		return nil, scene.Document{}, errors.New("unknown scene document format").
			WithTag("file", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, scene.Document{}, errors.New("reading scene document failed").
			WithTag("file", filename).
			Wrap(err)
	}

	doc, err := scene.DecodeDocument(data, format)
	if err != nil {
		return nil, scene.Document{}, err
	}

	world, err := scene.NewWorld(doc)
	return world, doc, err
}

type viewer struct {
	screen   tcell.Screen
	engine   *visibility.Engine
	doc      scene.Document
	observer visibility.Observer
	viewport viewport
}

func newViewer(engine *visibility.Engine, doc scene.Document, o visibility.Observer, scale float64) (*viewer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	width, height := screen.Size()
	return &viewer{
		screen:   screen,
		engine:   engine,
		doc:      doc,
		observer: o,
		viewport: viewport{
			width:  width,
			height: height,
			scale:  scale,
		}.zoom(1),
	}, nil
}

func (v *viewer) run(ctx context.Context) {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	v.draw()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok || !v.handleEvent(ev) {
				return
			}
			v.draw()
		}
	}
}

// handleEvent returns false when the viewer should quit.
func (v *viewer) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		v.viewport.width, v.viewport.height = v.screen.Size()
		v.screen.Sync()

	case *tcell.EventKey:
		forward := v.observer.Forward()

		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyUp:
			v.observer.Position = v.observer.Position.Add(forward.Mul(moveStep))
		case tcell.KeyDown:
			v.observer.Position = v.observer.Position.Sub(forward.Mul(moveStep))
		case tcell.KeyLeft:
			v.observer.Heading = normalizeAngle(v.observer.Heading - turnStep)
		case tcell.KeyRight:
			v.observer.Heading = normalizeAngle(v.observer.Heading + turnStep)

		case tcell.KeyRune:
			c := v.engine.Config
			switch ev.Rune() {
			case 'q':
				return false
			case '+':
				v.viewport = v.viewport.zoom(2)
			case '-':
				v.viewport = v.viewport.zoom(0.5)
			case ']':
				c.ViewAngle = min(c.ViewAngle+10, 360)
			case '[':
				c.ViewAngle = max(c.ViewAngle-10, 10)
			case '}':
				c.ViewRadius += 1
			case '{':
				c.ViewRadius = max(c.ViewRadius-1, 1)
			}
			v.engine.Config = c
		}
	}
	return true
}

func (v *viewer) draw() {
	o := v.observer
	c := v.engine.Config
	mesh := v.engine.ComputeVisibilityPolygon(o)
	visible := v.engine.ComputeVisibleTargets(o)

	v.viewport.center = o.Position
	vp := v.viewport

	v.screen.Clear()

	fanStyle := tcell.StyleDefault.Background(tcell.ColorDarkSlateGray)
	for row := 0; row < vp.height; row++ {
		for col := 0; col < vp.width; col++ {
			if insideFan(o, c, mesh, vp.toWorld(col, row)) {
				v.screen.SetContent(col, row, ' ', nil, fanStyle)
			}
		}
	}

	obstacleStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for _, obstacle := range v.doc.Obstacles {
		for _, cell := range obstacleCells(vp, obstacle) {
			v.screen.SetContent(cell[0], cell[1], '█', nil, obstacleStyle)
		}
	}

	hitStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	for _, cast := range mesh.ViewCasts {
		if !cast.Hit {
			continue
		}
		if col, row, ok := vp.toScreen(cast.Point); ok {
			v.screen.SetContent(col, row, '·', nil, hitStyle)
		}
	}

	edgeStyle := tcell.StyleDefault.Foreground(tcell.ColorOrange)
	for _, edge := range mesh.Edges {
		for _, p := range []*geometry.Vector3{edge.PointA, edge.PointB} {
			if p == nil {
				continue
			}
			if col, row, ok := vp.toScreen(*p); ok {
				v.screen.SetContent(col, row, '+', nil, edgeStyle)
			}
		}
	}

	for _, t := range v.doc.Targets {
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		if slices.Contains(visible, visibility.TargetHandle(t.Handle)) {
			style = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
		}
		if col, row, ok := vp.toScreen(t.Position); ok {
			v.screen.SetContent(col, row, []rune(t.Handle)[0], nil, style)
		}
	}

	if col, row, ok := vp.toScreen(o.Position); ok {
		v.screen.SetContent(col, row, '@', nil, tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true))
	}

	status := fmt.Sprintf(" x:%.2f z:%.2f heading:%.0f angle:%.0f radius:%.0f casts:%d edges:%d visible:%v ",
		o.Position.X, o.Position.Z, o.Heading, c.ViewAngle, c.ViewRadius,
		len(mesh.ViewCasts), len(mesh.Edges), visible)
	statusStyle := tcell.StyleDefault.Reverse(true)
	for i, r := range []rune(status) {
		if i >= vp.width {
			break
		}
		v.screen.SetContent(i, 0, r, nil, statusStyle)
	}

	v.screen.Show()
}
