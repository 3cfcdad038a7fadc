package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chorus/internal/config"
	factspg "github.com/nextlevelbuilder/chorus/internal/facts/pg"
	factssqlite "github.com/nextlevelbuilder/chorus/internal/facts/sqlite"
	storeredis "github.com/nextlevelbuilder/chorus/internal/store/redis"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("chorus doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  State store:")
	if cfg.Store.Backend == "redis" {
		if cfg.Store.RedisURL == "" {
			fmt.Println("    redis     CHORUS_REDIS_URL not set (will fall back to memory)")
		} else if rs, rErr := storeredis.Open(ctx, cfg.Store.RedisURL); rErr != nil {
			fmt.Printf("    redis     CONNECT FAILED (%s)\n", rErr)
		} else {
			rs.Close()
			fmt.Println("    redis     OK")
		}
	} else {
		fmt.Println("    memory    OK (single-instance only)")
	}

	fmt.Println()
	fmt.Println("  Facts backend:")
	switch {
	case cfg.Facts.Backend == "postgres" && cfg.Facts.PostgresDSN != "":
		db, dbErr := factspg.OpenDB(cfg.Facts.PostgresDSN)
		if dbErr != nil {
			fmt.Printf("    postgres  CONNECT FAILED (%s)\n", dbErr)
		} else {
			db.Close()
			fmt.Println("    postgres  OK")
		}
	case cfg.Facts.Backend == "postgres":
		fmt.Println("    postgres  CHORUS_POSTGRES_DSN not set")
	default:
		path := config.ExpandPath(cfg.Facts.SQLitePath)
		db, dbErr := factssqlite.OpenDB(path)
		if dbErr != nil {
			fmt.Printf("    sqlite    OPEN FAILED %s (%s)\n", path, dbErr)
		} else {
			db.Close()
			fmt.Printf("    sqlite    OK (%s)\n", path)
		}
	}

	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    listen    %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token == "" {
		fmt.Println("    auth      DISABLED (set CHORUS_GATEWAY_TOKEN)")
	} else {
		fmt.Println("    auth      bearer token")
	}
}
