package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/animotaku/animotaku/internal/session"
	"github.com/animotaku/animotaku/internal/util"
	"github.com/animotaku/animotaku/pkg/animotaku"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	util.IsDebug = *debug
	util.InitLogger()

	if err := godotenv.Load(); err != nil {
		util.Debugf("no .env file loaded: %v", err)
	}

	cfg := animotaku.Config{
		StreamingBaseURL: os.Getenv("ANIMOTAKU_STREAMING_URL"),
		MetadataBaseURL:  os.Getenv("ANIMOTAKU_METADATA_URL"),
		BackendBaseURL:   os.Getenv("ANIMOTAKU_BACKEND_URL"),
		CachePath:        cachePath(),
		SystemTheme:      session.ThemeDark,
		AdURL:            os.Getenv("ANIMOTAKU_AD_URL"),
	}

	client, err := animotaku.New(cfg)
	if err != nil {
		util.Errorf("failed to start: %s", util.ErrorHandler(err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			util.Warnf("cache close failed: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	orch := client.Anime()
	orch.LoadWatched(ctx)
	orch.FetchLastUpdates(ctx, false)
	orch.FetchTopRated(ctx, 1)
	orch.FetchAirDates(ctx, false)

	if updates := orch.LastUpdates(); updates.Err != "" {
		util.Errorf("last updates: %s", updates.Err)
	} else {
		fmt.Println("Recently updated:")
		for i, a := range updates.Items {
			if i >= 10 {
				break
			}
			fmt.Printf("  %s (sub %d / dub %d)\n", a.Name, a.Episodes.Sub, a.Episodes.Dub)
		}
	}

	if top := orch.TopRated(); top.Err == "" {
		fmt.Println("Most popular:")
		for i, a := range top.Items {
			if i >= 10 {
				break
			}
			fmt.Printf("  %s\n", a.Name)
		}
	}

	if air := orch.AirDates(); air.Err == "" {
		fmt.Println("Airing today:")
		for _, e := range air.Items {
			fmt.Printf("  %s  ep %s at %s\n", e.Name, e.Episode, e.Time)
		}
	}
}

func cachePath() string {
	if p := os.Getenv("ANIMOTAKU_CACHE_PATH"); p != "" {
		return p
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "animotaku", "cache.db")
}
