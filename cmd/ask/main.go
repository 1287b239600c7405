package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"ai-docs-helper/internal/bootstrap"
	"ai-docs-helper/internal/config"
	"ai-docs-helper/pkg/database"
	"ai-docs-helper/pkg/store"

	"github.com/fatih/color"
)

// Interactive console client for asking questions against the document
// corpus without going through the REST server.
func main() {
	cfg := config.Load()

	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Unable to connect to GORM DB: %v", err)
	}

	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.SysLogger.Sync()

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	cyan.Println("=== Docs Helper ===")
	fmt.Println("Ask a question, or use /strategy <name>, /stats, /clear, /quit")

	strategy := cfg.Retrieval.DefaultStrategy
	scanner := bufio.NewScanner(os.Stdin)

	for {
		yellow.Printf("\n[%s] > ", strategy)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := runCommand(container, line, &strategy); done {
				break
			}
			continue
		}

		start := time.Now()
		answer := container.Pipeline.Ask(context.Background(), line, strategy)
		elapsed := time.Since(start)

		fmt.Println()
		green.Println(answer.Generation)

		if len(answer.Sources) > 0 {
			faint.Println("\nSources:")
			for i, src := range answer.Sources {
				faint.Printf("  %d. %s (confidence %.2f)\n", i+1, src.Source, src.Confidence)
			}
		}
		if len(answer.ErrorLog) > 0 {
			faint.Printf("\nWarnings: %s\n", strings.Join(answer.ErrorLog, "; "))
		}
		cached := ""
		if answer.FromCache {
			cached = ", cached"
		}
		faint.Printf("\n(%.2fs, confidence %.2f%s)\n", elapsed.Seconds(), answer.Confidence, cached)
	}
}

func runCommand(container *bootstrap.Container, line string, strategy *string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/stats":
		stats := container.QueryCache.Stats()
		fmt.Printf("hits=%d misses=%d hit_rate=%.2f local_size=%d redis=%v evictions=%d\n",
			stats.Hits, stats.Misses, stats.HitRate, stats.LocalSize, stats.RedisAvailable, stats.Evictions)
	case "/clear":
		container.QueryCache.Clear(context.Background())
		fmt.Println("cache cleared")
	case "/strategy":
		if len(fields) < 2 {
			fmt.Println("usage: /strategy fast|standard|comprehensive")
			break
		}
		switch fields[1] {
		case store.StrategyFast, store.StrategyStandard, store.StrategyComprehensive:
			*strategy = fields[1]
			fmt.Printf("strategy set to %s\n", *strategy)
		default:
			fmt.Printf("unknown strategy %q\n", fields[1])
		}
	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}
