package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"sort"
	"strings"

	"github.com/fogleman/gg"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font/basicfont"

	"microcraft/internal/game"
	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
	"microcraft/internal/logger"
	"microcraft/internal/metrics"
)

// HUDHeight is the strip under the map holding the status line.
const HUDHeight = 18

var (
	colorGround     = color.RGBA{34, 40, 30, 255}
	colorRock       = color.RGBA{92, 88, 84, 255}
	colorMineral    = color.RGBA{80, 200, 230, 255}
	colorHUD        = color.RGBA{12, 12, 28, 255}
	colorText       = color.RGBA{230, 230, 230, 255}
	colorUnexplored = color.RGBA{0, 0, 0, 255}
	colorExplored   = color.RGBA{0, 0, 0, 140}
)

// factionColors indexes by faction id; unknown factions are gray.
var factionColors = map[game.Faction]color.RGBA{
	1: {66, 135, 245, 255},
	2: {235, 64, 52, 255},
	3: {240, 200, 60, 255},
	4: {120, 220, 90, 255},
}

// FactionColor returns the draw color of faction f.
func FactionColor(f game.Faction) color.RGBA {
	if c, ok := factionColors[f]; ok {
		return c
	}
	return color.RGBA{160, 160, 160, 255}
}

// FrameConfig controls the PNG renderer.
type FrameConfig struct {
	CellSize int          // pixels per cell
	Faction  game.Faction // fog to draw; 0 draws the whole world
	Every    int          // draw one frame every N ticks
}

// FrameRenderer draws snapshots to PNG and hands them to a FrameRing. It
// takes no input.
type FrameRenderer struct {
	cfg      FrameConfig
	ring     *FrameRing
	lastTick uint64
	drawn    bool
	log      *logrus.Entry
}

// NewFrameRenderer creates a renderer. ring may be nil, in which case frames
// are drawn and discarded.
func NewFrameRenderer(cfg FrameConfig, ring *FrameRing) *FrameRenderer {
	if cfg.CellSize <= 0 {
		cfg.CellSize = 16
	}
	if cfg.Every <= 0 {
		cfg.Every = 1
	}
	return &FrameRenderer{
		cfg:  cfg,
		ring: ring,
		log:  logger.Component("frames").WithField("faction", cfg.Faction),
	}
}

// Render implements Renderer.
func (r *FrameRenderer) Render(snap *game.Snapshot) error {
	if r.drawn && snap.Tick-r.lastTick < uint64(r.cfg.Every) && !snap.GameOver {
		return nil
	}
	data, err := r.Encode(snap)
	if err != nil {
		metrics.RecordFrame("error")
		return err
	}
	r.lastTick = snap.Tick
	r.drawn = true
	if r.ring != nil && !r.ring.TryWrite(Frame{Tick: snap.Tick, Data: data}) {
		metrics.RecordFrame("dropped")
		r.log.WithField("tick", snap.Tick).Debug("frame ring full")
	}
	return nil
}

// PollInput implements Renderer. Frames have no input.
func (r *FrameRenderer) PollInput() (game.Command, bool) {
	return game.Command{}, false
}

// Encode draws snap and returns it as PNG bytes.
func (r *FrameRenderer) Encode(snap *game.Snapshot) ([]byte, error) {
	dc := r.draw(snap)
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", snap.Tick, err)
	}
	return buf.Bytes(), nil
}

// Draw returns the image for snap.
func (r *FrameRenderer) Draw(snap *game.Snapshot) image.Image {
	return r.draw(snap).Image()
}

func (r *FrameRenderer) draw(snap *game.Snapshot) *gg.Context {
	view := snap
	if r.cfg.Faction != game.Neutral {
		view = snap.ForFaction(r.cfg.Faction)
	}
	cs := float64(r.cfg.CellSize)
	dc := gg.NewContext(snap.Width*r.cfg.CellSize, snap.Height*r.cfg.CellSize+HUDHeight)

	r.drawTerrain(dc, view, cs)
	r.drawMinerals(dc, view, cs)
	r.drawEntities(dc, view, cs)
	if r.cfg.Faction != game.Neutral {
		r.drawFog(dc, view, cs)
	}
	r.drawHUD(dc, view, cs)
	return dc
}

func (r *FrameRenderer) drawTerrain(dc *gg.Context, snap *game.Snapshot, cs float64) {
	dc.SetColor(colorGround)
	dc.DrawRectangle(0, 0, float64(snap.Width)*cs, float64(snap.Height)*cs)
	dc.Fill()

	dc.SetColor(colorRock)
	for y := 0; y < snap.Height; y++ {
		for x := 0; x < snap.Width; x++ {
			if !snap.Passable(spatial.Coord{X: x, Y: y}) {
				dc.DrawRectangle(float64(x)*cs, float64(y)*cs, cs, cs)
			}
		}
	}
	dc.Fill()
}

func (r *FrameRenderer) drawMinerals(dc *gg.Context, snap *game.Snapshot, cs float64) {
	dc.SetColor(colorMineral)
	for _, m := range snap.Minerals {
		inset := cs * 0.2
		dc.DrawRectangle(float64(m.Cell.X)*cs+inset, float64(m.Cell.Y)*cs+inset, cs-2*inset, cs-2*inset)
	}
	dc.Fill()
}

func (r *FrameRenderer) drawEntities(dc *gg.Context, snap *game.Snapshot, cs float64) {
	for _, e := range snap.Entities {
		x, y := float64(e.Cell.X)*cs, float64(e.Cell.Y)*cs
		size := float64(max(1, e.Footprint)) * cs
		c := FactionColor(e.Faction)

		if e.Kind.IsBuilding() {
			if !e.Complete {
				c.A = 150
			}
			dc.SetColor(c)
			dc.DrawRectangle(x+1, y+1, size-2, size-2)
			dc.Fill()
			if e.Kind == game.KindBarracks {
				dc.SetColor(colorHUD)
				dc.SetLineWidth(2)
				dc.DrawLine(x+size*0.25, y+size*0.5, x+size*0.75, y+size*0.5)
				dc.Stroke()
			}
		} else {
			radius := cs * 0.4
			if e.Kind == game.KindWorker {
				radius = cs * 0.3
			}
			dc.SetColor(c)
			dc.DrawCircle(x+cs/2, y+cs/2, radius)
			dc.Fill()
		}

		if e.MaxHP > 0 && e.HP < e.MaxHP {
			frac := float64(e.HP) / float64(e.MaxHP)
			dc.SetColor(color.RGBA{51, 51, 51, 255})
			dc.DrawRectangle(x, y, size, 2)
			dc.Fill()
			switch {
			case frac > 0.5:
				dc.SetColor(color.RGBA{83, 255, 69, 255})
			case frac > 0.25:
				dc.SetColor(color.RGBA{255, 149, 0, 255})
			default:
				dc.SetColor(color.RGBA{255, 62, 62, 255})
			}
			dc.DrawRectangle(x, y, size*frac, 2)
			dc.Fill()
		}
	}
}

func (r *FrameRenderer) drawFog(dc *gg.Context, snap *game.Snapshot, cs float64) {
	for y := 0; y < snap.Height; y++ {
		for x := 0; x < snap.Width; x++ {
			switch snap.FogAt(r.cfg.Faction, spatial.Coord{X: x, Y: y}) {
			case visibility.Unexplored:
				dc.SetColor(colorUnexplored)
			case visibility.Explored:
				dc.SetColor(colorExplored)
			default:
				continue
			}
			dc.DrawRectangle(float64(x)*cs, float64(y)*cs, cs, cs)
			dc.Fill()
		}
	}
}

func (r *FrameRenderer) drawHUD(dc *gg.Context, snap *game.Snapshot, cs float64) {
	top := float64(snap.Height) * cs
	dc.SetColor(colorHUD)
	dc.DrawRectangle(0, top, float64(snap.Width)*cs, HUDHeight)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawString(StatusLine(snap), 4, top+HUDHeight-5)
}

// StatusLine summarizes a snapshot in one line: tick, banks and opponent
// states in faction order.
func StatusLine(snap *game.Snapshot) string {
	factions := make([]game.Faction, 0, len(snap.Resources))
	for f := range snap.Resources {
		factions = append(factions, f)
	}
	sort.Slice(factions, func(i, j int) bool { return factions[i] < factions[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "tick %d", snap.Tick)
	for _, f := range factions {
		fmt.Fprintf(&b, "  f%d %dm", f, snap.Resources[f])
		if state, ok := snap.AIStates[f]; ok {
			fmt.Fprintf(&b, " %s", state)
		}
	}
	if snap.GameOver {
		fmt.Fprintf(&b, "  game over, winner f%d", snap.Winner)
	}
	return b.String()
}
