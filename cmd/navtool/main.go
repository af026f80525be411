// navtool is the operator CLI for nav meshes: inspect a mesh file, plan a
// route through it, or audit every connection for geometric feasibility.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"github.com/mkoval/navgo/internal/config"
	"github.com/mkoval/navgo/internal/nav"
	"github.com/mkoval/navgo/internal/nav/mesh"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  navtool info <mesh.nav>
  navtool path <mesh.nav> <x,y,z> <x,y,z>
  navtool audit <mesh.nav>
`)
	os.Exit(2)
}

func main() {
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := flag.Args()
	if len(args) < 2 {
		usage()
	}

	if err := run(ctx, args[0], args[1:]); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "info":
		return runInfo(args[0])
	case "path":
		if len(args) != 3 {
			usage()
		}
		return runPath(args[0], args[1], args[2])
	case "audit":
		return runAudit(ctx, args[0])
	default:
		usage()
		return nil
	}
}

func runInfo(path string) error {
	f, err := mesh.Load(path)
	if err != nil {
		return err
	}

	conns := 0
	for i := range f.Areas {
		conns += len(f.Areas[i].Connections)
	}
	fmt.Printf("level:       %s\n", f.Level)
	fmt.Printf("areas:       %d\n", len(f.Areas))
	fmt.Printf("connections: %d\n", conns)
	return nil
}

func runPath(path, fromArg, toArg string) error {
	from, err := parseVec(fromArg)
	if err != nil {
		return fmt.Errorf("start point: %w", err)
	}
	to, err := parseVec(toArg)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	cfg := config.DefaultNav()
	cfg.MeshDir = filepath.Dir(path)

	clock := wallClock{start: time.Now(), interval: 1.0 / 66.0}
	engine := nav.NewEngine(cfg, openWorld{}, clock, staticAgent{origin: from}, noControls{}, time.Now)
	if err := engine.LevelInit(filepath.Base(path)); err != nil {
		return err
	}

	if err := engine.NavTo(to, true); err != nil {
		return err
	}
	for i, c := range engine.Crumbs() {
		fmt.Printf("%3d  area=%-4d  (%.1f, %.1f, %.1f)\n",
			i, c.Area, c.Point.X(), c.Point.Y(), c.Point.Z())
	}
	return nil
}

// runAudit checks every connection's waypoint geometry: a neighbor more
// than a jump height above its entry waypoint can never be traversed, no
// matter what the world looks like.
func runAudit(ctx context.Context, path string) error {
	f, err := mesh.Load(path)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var bad int

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i := range f.Areas {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			area := &f.Areas[i]
			for _, next := range area.Connections {
				points := nav.DeterminePoints(area, &f.Areas[next])
				rise := points.Center.Z() - points.Current.Z()
				if rise > nav.PlayerJumpHeight {
					mu.Lock()
					bad++
					fmt.Printf("area %d -> %d: rise %.1f exceeds jump height\n",
						area.ID, f.Areas[next].ID, rise)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("audited %d areas, %d untraversable connections\n", len(f.Areas), bad)
	return nil
}

func parseVec(s string) (mgl32.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl32.Vec3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v mgl32.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return mgl32.Vec3{}, fmt.Errorf("component %d of %q: %w", i, s, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openWorld is a tracer with no geometry: every ray flies clear. Offline
// tooling has no world to trace against, so routes reflect mesh topology
// only.
type openWorld struct{}

func (openWorld) TraceRay(_, _ mgl32.Vec3, _ uint32) bool { return false }

// wallClock derives tick counts from wall time at a fixed tick rate.
type wallClock struct {
	start    time.Time
	interval float64
}

func (c wallClock) TickCount() int        { return int(time.Since(c.start).Seconds() / c.interval) }
func (c wallClock) TickInterval() float64 { return c.interval }

// staticAgent stands still at a fixed origin.
type staticAgent struct {
	origin mgl32.Vec3
}

func (a staticAgent) Origin() mgl32.Vec3   { return a.origin }
func (staticAgent) Velocity() mgl32.Vec3   { return mgl32.Vec3{} }
func (staticAgent) Alive() bool            { return true }
func (staticAgent) OnGround() bool         { return true }
func (staticAgent) Scoped() bool           { return false }
func (staticAgent) Revved() bool           { return false }

type noControls struct{}

func (noControls) WalkTo(mgl32.Vec3) {}
func (noControls) Jump()             {}
func (noControls) Duck()             {}
