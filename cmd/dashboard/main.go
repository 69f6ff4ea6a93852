package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-dashboard/internal/app"
	"github.com/uma-arai/sbcntr-dashboard/internal/client"
	"github.com/uma-arai/sbcntr-dashboard/internal/common/config"
)

const (
	projectName = "sbcntr-dashboard"
)

func main() {
	timeout := flag.Duration("timeout", 0, "予約APIへのリクエストのタイムアウト時間 (未指定の場合はRESERVATION_API_TIMEOUT)")
	color := flag.Bool("color", true, "ステータスを色付きで表示する")
	flag.Parse()

	// ログは画面の描画と混ざらないよう標準エラー出力に出す
	log.SetOutput(os.Stderr)

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}
	if *timeout > 0 {
		cfg.API.Timeout = *timeout
	}

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	h, err := client.NewHTTP(client.HTTPConfig{
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout,
		Location: cfg.Location,
	})
	if err != nil {
		log.Fatalf("Failed to create HTTP client: %v", err)
	}

	d := app.New(app.Options{
		Client:      client.NewReservationClient(h),
		Location:    cfg.Location,
		NoticeDelay: cfg.NoticeDelay,
		Color:       *color,
	})
	defer d.Close()

	// シグナルを受け取ったらコンテキストをキャンセルする
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, projectName)
		defer seg.Close(nil)

		if err := seg.AddMetadata("base_url", cfg.API.BaseURL); err != nil {
			log.Printf("Failed to add base_url metadata: %v", err)
		}
	}

	if err := d.Start(ctx); err != nil {
		log.Printf("Initial load failed: %v", err)
	}

	// 引数がある場合は1回だけコマンドを実行して終了する
	if flag.NArg() > 0 {
		err := d.Exec(ctx, strings.Join(flag.Args(), " "))
		if renderErr := d.Render(os.Stdout); renderErr != nil {
			log.Printf("Failed to render: %v", renderErr)
		}
		if err != nil && !errors.Is(err, app.ErrQuit) {
			log.Printf("Command failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := interactive(ctx, d); err != nil {
		log.Fatalf("Dashboard stopped: %v", err)
	}
}

// interactive は標準入力から1行ずつコマンドを読み取って実行します
func interactive(ctx context.Context, d *app.Dashboard) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		if err := d.Render(os.Stdout); err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
		fmt.Print("> ")

		select {
		case <-ctx.Done():
			fmt.Println()
			log.Printf("Received signal, shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}

			cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			err := d.Exec(cmdCtx, line)
			cancel()
			if errors.Is(err, app.ErrQuit) {
				return nil
			}
			if err != nil {
				log.Printf("Command failed: %v", err)
			}
		}
	}
}
