package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/milk9111/blockfuse/scene"
)

func main() {
	sceneName := flag.String("scene", "demo", "scene name in prefabs/scenes or path to a scene file")
	frames := flag.Int("frames", 600, "frames to simulate; 0 runs in real time until interrupted")
	debug := flag.Bool("debug", false, "log every contact and fusion")
	watch := flag.Bool("watch", false, "hot reload prefabs/merge.yaml")
	journalDir := flag.String("journal", "", "directory for the compressed fusion journal")
	indexPath := flag.String("index", "", "path of the SQLite fusion index")
	savePath := flag.String("save", "", "write the final scene to this YAML file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	game, err := NewGame(ctx, Options{
		Scene:      *sceneName,
		Debug:      *debug,
		Watch:      *watch,
		JournalDir: *journalDir,
		IndexPath:  *indexPath,
	})
	if err != nil {
		log.Fatal(err)
	}

	runErr := game.Run(ctx, *frames)
	game.LogSummary()

	if *savePath != "" {
		if err := scene.Save(*savePath, scene.Snapshot(game.World(), snapshotName(*sceneName))); err != nil {
			log.Printf("save snapshot: %v", err)
		} else {
			log.Printf("saved snapshot to %s", *savePath)
		}
	}

	if err := game.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	if runErr != nil && runErr != context.Canceled {
		log.Fatal(runErr)
	}
}

func snapshotName(sceneName string) string {
	base := filepath.Base(sceneName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-snapshot"
}
