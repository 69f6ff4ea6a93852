package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-dashboard/internal/client"
	"github.com/uma-arai/sbcntr-dashboard/internal/common/config"
	"github.com/uma-arai/sbcntr-dashboard/internal/common/utils"
	"github.com/uma-arai/sbcntr-dashboard/internal/service/batch"
)

const (
	projectName = "sbcntr-approval-batch"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	// 最後の引数として渡されたタスクトークンを取得
	// ENV=LOCALの場合はタスクトークンを取得しない
	taskToken := "DUMMY_TASK_TOKEN"
	if os.Getenv("ENV") != "LOCAL" {
		if flag.NArg() == 0 || flag.Arg(flag.NArg()-1) == "" {
			log.Fatalf("Task token is required")
		}
		taskToken = flag.Arg(flag.NArg() - 1)
	}

	cfg, err := config.LoadConfig(taskToken)
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalf("Failed to configure default X-Ray settings: %v", configErr)
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	// Step Functionsクライアントの初期化
	var notifier batch.TaskNotifier
	if os.Getenv("ENV") != "LOCAL" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v\nStack trace:\n%s", err, debug.Stack())
		}
		notifier = sfn.NewFromConfig(awsCfg)
	}

	h, err := client.NewHTTP(client.HTTPConfig{
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout,
		Location: cfg.Location,
	})
	if err != nil {
		log.Fatalf("Failed to create HTTP client: %v", err)
	}

	service := batch.NewApprovalBatchService(cfg, client.NewReservationClient(h), notifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// X-Rayセグメントの作成
	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, projectName)
		defer seg.Close(nil)

		if err := seg.AddMetadata("timeout", timeout.String()); err != nil {
			log.Printf("Failed to add timeout metadata: %v", err)
		}
	}

	// シグナルハンドリングの設定
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, *timeout, service.Run)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			log.Printf("Batch process failed: %v", err)

			// 通知用のコンテキストはタイムアウト済みの可能性があるため新しく作る
			failCtx, failCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if sendErr := service.SendTaskFailure(failCtx, err); sendErr != nil {
				log.Printf("Failed to send task failure: %v\nStack trace:\n%s", sendErr, debug.Stack())
			}
			failCancel()

			os.Exit(1)
		}
		log.Println("Batch process completed successfully")
	}
}
