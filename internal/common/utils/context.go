package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout はRunWithTimeoutで処理が制限時間内に終わらなかったことを表します
var ErrTimeout = errors.New("process timed out")

// RunWithTimeout は指定されたタイムアウト時間内でfnを実行します
// タイムアウトを超えた場合、または親のコンテキストがキャンセルされた場合は
// fnに渡したコンテキストをキャンセルしてエラーを返します
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		return ctx.Err()
	}
}
