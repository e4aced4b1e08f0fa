package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/milk9111/blockfuse/ecs"
	"github.com/milk9111/blockfuse/ecs/component"
	"github.com/milk9111/blockfuse/ecs/system"
	"github.com/milk9111/blockfuse/journal"
	"github.com/milk9111/blockfuse/merge"
	"github.com/milk9111/blockfuse/prefabs"
	"github.com/milk9111/blockfuse/scene"
)

type Options struct {
	Scene      string
	Debug      bool
	Watch      bool
	JournalDir string
	IndexPath  string
}

// Game steps a block scene headlessly: physics first, then the merge system
// consumes the contacts the step produced.
type Game struct {
	frames int
	scene  string
	debug  bool

	world     *ecs.World
	scheduler *ecs.Scheduler
	physics   *system.PhysicsSystem
	engine    *merge.Engine

	watcher *prefabs.Watcher
	closers []io.Closer
	step    time.Duration
}

func NewGame(ctx context.Context, opts Options) (*Game, error) {
	tuning, err := prefabs.LoadMergeTuning()
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}

	g := &Game{
		scene: opts.Scene,
		debug: opts.Debug,
		world: ecs.NewWorld(),
	}
	g.engine = merge.NewEngine(mergeConfig(tuning, opts.Debug))
	g.physics = system.NewPhysicsSystem(system.PhysicsConfigFromTuning(tuning.Physics))
	g.scheduler = ecs.NewScheduler(g.physics, system.NewMergeSystem(g.engine))
	g.step = stepDuration(tuning)

	spec, err := scene.Load(opts.Scene)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	populated, err := scene.Populate(ctx, g.world, spec)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	log.Printf("game: loaded scene %q floors=%d blocks=%d", spec.Name, len(populated.Floors), len(populated.Blocks))

	if opts.JournalDir != "" {
		j, err := journal.OpenJournal(opts.JournalDir)
		if err != nil {
			return nil, g.abort(err)
		}
		g.engine.AddListener(j)
		g.closers = append(g.closers, j)
	}
	if opts.IndexPath != "" {
		idx, err := journal.OpenSQLite(opts.IndexPath, "")
		if err != nil {
			return nil, g.abort(err)
		}
		g.engine.AddListener(idx)
		g.closers = append(g.closers, idx)
		log.Printf("game: indexing fusions as run %s", idx.Run())
	}
	if opts.Debug {
		g.engine.AddListener(merge.ListenerFunc(func(fu merge.Fusion) {
			log.Printf("game: fused %v+%v -> %v axis=%s size=%v", fu.Self, fu.Other, fu.Result, fu.Axis, fu.Geometry.Size)
		}))
	}

	if opts.Watch {
		w, err := prefabs.NewWatcher(prefabs.Dir)
		if err != nil {
			return nil, g.abort(fmt.Errorf("game: watch %s: %w", prefabs.Dir, err))
		}
		g.watcher = w
	}

	return g, nil
}

func (g *Game) abort(err error) error {
	return errors.Join(err, g.Close())
}

func mergeConfig(t *prefabs.MergeTuningSpec, debug bool) merge.Config {
	cfg := merge.DefaultConfig()
	tol := t.Tolerance.WithDefaults()
	cfg.Tolerance = merge.Tolerance{
		MinAlong:   tol.MinAlong,
		MaxAlong:   tol.MaxAlong,
		MaxLateral: tol.MaxLateral,
	}
	cfg.Debug = debug || t.Debug
	return cfg
}

func stepDuration(t *prefabs.MergeTuningSpec) time.Duration {
	return time.Duration(t.Physics.Step * float64(time.Second))
}

func (g *Game) Update() error {
	g.frames++
	g.pollWatcher()
	g.scheduler.Update(g.world)
	return nil
}

// Run steps frames updates as fast as possible, or in real time until ctx
// is done when frames is zero.
func (g *Game) Run(ctx context.Context, frames int) error {
	if frames > 0 {
		for i := 0; i < frames; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := g.Update(); err != nil {
				return err
			}
		}
		return nil
	}

	ticker := time.NewTicker(g.step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := g.Update(); err != nil {
				return err
			}
		}
	}
}

func (g *Game) pollWatcher() {
	if g.watcher == nil {
		return
	}
	for {
		select {
		case path, ok := <-g.watcher.Events:
			if !ok {
				g.watcher = nil
				return
			}
			if prefabs.IsMergeTuning(path) {
				g.reloadTuning()
			} else if g.debug {
				log.Printf("game: %s changed; restart to apply", path)
			}
		case err, ok := <-g.watcher.Errors:
			if ok && err != nil {
				log.Printf("game: watcher: %v", err)
			}
		default:
			return
		}
	}
}

func (g *Game) reloadTuning() {
	tuning, err := prefabs.LoadMergeTuning()
	if err != nil {
		log.Printf("game: reload merge tuning: %v; keeping previous tuning", err)
		return
	}
	cfg := mergeConfig(tuning, g.debug)
	g.engine.SetConfig(cfg)
	g.physics.SetConfig(system.PhysicsConfigFromTuning(tuning.Physics))
	g.step = stepDuration(tuning)
	log.Printf("game: reloaded merge tuning tolerance=%+v", cfg.Tolerance)
}

func (g *Game) World() *ecs.World { return g.world }

func (g *Game) Engine() *merge.Engine { return g.engine }

func (g *Game) Frames() int { return g.frames }

// LogSummary prints the merge statistics and surviving blocks.
func (g *Game) LogSummary() {
	st := g.engine.Stats()
	blocks := g.world.Query(component.BlockComponent.Kind())
	log.Printf("game: frames=%d contacts=%d fusions=%d rejected=%d spawn_failures=%d blocks=%d",
		g.frames, st.Contacts, st.Fusions, st.Rejected, st.SpawnFailures, len(blocks))
	if !g.debug {
		return
	}
	for _, e := range blocks {
		t, ok := ecs.Get(g.world, e, component.TransformComponent.Kind())
		if !ok {
			continue
		}
		log.Printf("game: block %v pos=%v size=%v", e, t.Position, t.Scale)
	}
}

// Close stops the watcher and flushes fusion listeners.
func (g *Game) Close() error {
	var errs []error
	if g.watcher != nil {
		errs = append(errs, g.watcher.Close())
		g.watcher = nil
	}
	for _, c := range g.closers {
		errs = append(errs, c.Close())
	}
	g.closers = nil
	return errors.Join(errs...)
}
