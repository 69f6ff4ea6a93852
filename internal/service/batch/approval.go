package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/uma-arai/sbcntr-dashboard/internal/client"
	"github.com/uma-arai/sbcntr-dashboard/internal/common/config"
	"github.com/uma-arai/sbcntr-dashboard/internal/common/utils"
	"github.com/uma-arai/sbcntr-dashboard/internal/model"
	"github.com/uma-arai/sbcntr-dashboard/internal/service/dashboard"
)

// maxCauseLength はSendTaskFailureのCauseに指定できる最大文字数です
const maxCauseLength = 32768

// TaskNotifier はStep Functionsへタスクの結果を通知するインターフェースです
// *sfn.Clientがそのまま満たします
type TaskNotifier interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error)
}

// ApprovalResult はバッチ処理の結果です
type ApprovalResult struct {
	Notifications []model.Notification `json:"notifications"`
	Failed        []string             `json:"failed"`
}

// ApprovalBatchService は承認待ちの予約をまとめて処理するバッチです
// 予約日時を過ぎたものはキャンセルし、それ以外は承認します
type ApprovalBatchService struct {
	store    *dashboard.ReservationStore
	notifier TaskNotifier
	clock    clockwork.Clock
	cfg      *config.Config
}

// NewApprovalBatchService は新しいApprovalBatchServiceを作成します
// notifierがnilの場合はStep Functionsへの通知を行いません
func NewApprovalBatchService(cfg *config.Config, c client.ReservationClient, notifier TaskNotifier, clock clockwork.Clock) *ApprovalBatchService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ApprovalBatchService{
		store:    dashboard.NewReservationStore(c),
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
	}
}

// Run はバッチ処理を実行します
func (s *ApprovalBatchService) Run(ctx context.Context) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ApprovalBatchService.Run")
	if seg != nil {
		defer seg.Close(nil)
	}

	startTime := s.clock.Now()

	result, err := s.process(ctx)
	if err != nil {
		return utils.GetStackWithError(fmt.Errorf("failed to process pending reservations: %w", err))
	}

	if err := s.sendTaskSuccess(ctx, result); err != nil {
		return utils.GetStackWithError(fmt.Errorf("failed to send task success: %w", err))
	}

	duration := s.clock.Since(startTime)
	if seg != nil {
		if err := seg.AddMetadata("duration", duration.String()); err != nil {
			log.Printf("Failed to add duration metadata: %v", err)
		}
	}

	log.Printf("Approval batch process completed. Processed: %d, Failed: %d, Duration: %v",
		len(result.Notifications), len(result.Failed), duration)
	return nil
}

// process は承認待ちの予約を並行して処理し、結果を返します
// 個々の予約の失敗はログに残して処理を続けます
func (s *ApprovalBatchService) process(ctx context.Context) (*ApprovalResult, error) {
	if err := s.store.Mount(ctx); err != nil {
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}

	now := s.clock.Now()
	var pending []model.Reservation
	for _, r := range s.store.Snapshot().Reservations {
		if r.Status == model.StatusPending {
			pending = append(pending, r)
		}
	}
	log.Printf("Found %d reservations with status %s", len(pending), model.StatusPending)

	concurrency := 1
	if s.cfg != nil && s.cfg.Concurrency > 0 {
		concurrency = s.cfg.Concurrency
	}

	// 結果は予約ごとの添字に書き込み、完了順に依存しないようにする
	succeeded := make([]bool, len(pending))
	attempted := make([]bool, len(pending))

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, r := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var err error
			if r.ReservedAt.Before(now) {
				err = s.store.Cancel(ctx, r.ID)
			} else {
				err = s.store.Approve(ctx, r.ID)
			}

			attempted[i] = true
			if err != nil {
				log.Printf("Failed to process reservation %s: %v", r.ID, err)
				return nil
			}
			succeeded[i] = true
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 通知は一覧の並び順で作成する
	final := s.store.Snapshot().Reservations
	notifications := []model.Notification{}
	failed := []string{}
	for i, r := range pending {
		if !succeeded[i] {
			if attempted[i] {
				failed = append(failed, r.ID)
			}
			continue
		}
		for _, f := range final {
			if f.ID == r.ID {
				notifications = append(notifications, model.NewReservationNotification(f, now))
				break
			}
		}
	}

	return &ApprovalResult{Notifications: notifications, Failed: failed}, nil
}

// sendTaskSuccess は、Step Functionsのタスク成功を通知します
func (s *ApprovalBatchService) sendTaskSuccess(ctx context.Context, result *ApprovalResult) error {
	output, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	// ローカルの場合はStep Functionsの処理をスキップ
	if os.Getenv("ENV") == "LOCAL" || s.notifier == nil {
		log.Printf("Local environment detected. Skipping Step Functions task success notification: %s", string(output))
		return nil
	}

	taskToken := ""
	if s.cfg != nil {
		taskToken = s.cfg.SFN.TaskToken
	}
	if taskToken == "" {
		return errors.New("SFN_TASK_TOKEN is not set in config")
	}

	input := &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	}
	if _, err := s.notifier.SendTaskSuccess(ctx, input); err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	log.Printf("Successfully sent task success with result: %s", string(output))
	return nil
}

// SendTaskFailure は、Step Functionsのタスク失敗を通知します
// ローカル環境、またはnotifierがnilの場合は何もしません
func (s *ApprovalBatchService) SendTaskFailure(ctx context.Context, cause error) error {
	if os.Getenv("ENV") == "LOCAL" || s.notifier == nil {
		return nil
	}
	if s.cfg == nil || s.cfg.SFN.TaskToken == "" {
		return errors.New("SFN_TASK_TOKEN is not set in config")
	}

	input := &sfn.SendTaskFailureInput{
		TaskToken: aws.String(s.cfg.SFN.TaskToken),
		Error:     aws.String("Batch process failed"),
	}
	if cause != nil {
		msg := cause.Error()
		if len(msg) > maxCauseLength {
			msg = msg[:maxCauseLength]
		}
		input.Cause = aws.String(msg)
	}
	if _, err := s.notifier.SendTaskFailure(ctx, input); err != nil {
		return fmt.Errorf("failed to send task failure: %w", err)
	}
	return nil
}
