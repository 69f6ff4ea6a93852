package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-dashboard/internal/client"
	"github.com/uma-arai/sbcntr-dashboard/internal/model"
)

const (
	MessageCreated   = "予約を登録しました。"
	MessageApproved  = "予約を承認しました。"
	MessageCancelled = "予約をキャンセルしました。"

	messageInFlight = "この予約は現在処理中です。"
	messageNotFound = "予約が見つかりません。"
)

var (
	// ErrTransitionInFlight は同じ予約に対するステータス変更が処理中であることを表します
	ErrTransitionInFlight = errors.New("status transition already in flight")
	// ErrReservationNotFound は一覧に存在しない予約を操作しようとしたことを表します
	ErrReservationNotFound = errors.New("reservation not found")
)

// State は画面に渡す状態のスナップショットです
// ErrorとSuccessは空文字列の場合に未設定を表します
type State struct {
	Reservations []model.Reservation
	Loading      bool
	Error        string
	Success      string
}

func (s State) clone() State {
	s.Reservations = append([]model.Reservation(nil), s.Reservations...)
	return s
}

// ReservationStore は予約一覧の状態を保持し、予約APIの呼び出しを調整します
// 状態の変更はすべて「直前の状態から次の状態を作る」関数として適用されます
type ReservationStore struct {
	client client.ReservationClient

	mu        sync.Mutex
	state     State
	revision  uint64
	inFlight  map[string]struct{}
	mounted   bool
	listeners map[int]func(State)
	nextID    int

	// published は状態を変更した回数、delivered は購読者に届けた回数です
	// delivering がtrueの間は配信中のゴルーチンが最新の状態までまとめて届けます
	published  uint64
	delivered  uint64
	delivering bool
}

// NewReservationStore は新しいReservationStoreを作成します
func NewReservationStore(c client.ReservationClient) *ReservationStore {
	return &ReservationStore{
		client:    c,
		inFlight:  make(map[string]struct{}),
		listeners: make(map[int]func(State)),
	}
}

// Snapshot は現在の状態のコピーを返します
func (s *ReservationStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe は状態が変わるたびに呼ばれる関数を登録します
// 戻り値の関数を呼ぶと登録を解除します
func (s *ReservationStore) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update は次の状態を計算して反映し、登録された関数に通知します
// listChangedがtrueの場合は一覧のリビジョンを進めます
func (s *ReservationStore) update(next func(State) State, listChanged bool) {
	s.mu.Lock()
	s.state = next(s.state.clone())
	if listChanged {
		s.revision++
	}
	s.published++
	s.mu.Unlock()

	s.deliver()
}

// deliver は未配信の状態を購読者に届けます
// 配信は常に1つのゴルーチンだけが行い、購読者は状態を変更順に受け取ります
// 配信中に別の変更があった場合は途中の状態を飛ばして最新の状態を届けます
// 購読者の中からStoreを操作した場合も、その変更は同じ配信ループで届けられます
func (s *ReservationStore) deliver() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for s.delivered < s.published {
		s.delivered = s.published
		state := s.state.clone()
		listeners := make([]func(State), 0, len(s.listeners))
		for _, fn := range s.listeners {
			listeners = append(listeners, fn)
		}
		s.mu.Unlock()

		for _, fn := range listeners {
			fn(state)
		}

		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

// Mount は初回の一覧取得を行います
// 同じStoreに対して2回目以降の呼び出しは何もしません
func (s *ReservationStore) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = true
	s.mu.Unlock()

	return s.Load(ctx)
}

// Load は予約一覧を取得し、ローカルの一覧を丸ごと置き換えます
func (s *ReservationStore) Load(ctx context.Context) (err error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationStore.Load")
	if seg != nil {
		defer func() { seg.Close(err) }()
	}

	s.update(func(st State) State {
		st.Loading = true
		st.Error = ""
		return st
	}, false)

	reservations, err := s.client.List(ctx)
	if err != nil {
		log.Printf("Failed to load reservations: %v", err)
		s.update(func(st State) State {
			st.Error = client.DisplayMessage(err)
			st.Loading = false
			return st
		}, false)
		return err
	}

	s.update(func(st State) State {
		st.Reservations = append([]model.Reservation(nil), reservations...)
		st.Loading = false
		return st
	}, true)

	log.Printf("Loaded %d reservations", len(reservations))
	return nil
}

// Create は予約を作成し、成功した場合は一覧の先頭に追加します
// 失敗した場合は一覧を変更せずエラーを返します
func (s *ReservationStore) Create(ctx context.Context, req model.CreateRequest) (created model.Reservation, err error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationStore.Create")
	if seg != nil {
		defer func() { seg.Close(err) }()
	}

	s.update(func(st State) State {
		st.Error = ""
		st.Success = ""
		return st
	}, false)

	created, err = s.client.Create(ctx, req)
	if err != nil {
		log.Printf("Failed to create reservation: %v", err)
		s.update(func(st State) State {
			st.Error = client.DisplayMessage(err)
			return st
		}, false)
		return model.Reservation{}, err
	}

	s.update(func(st State) State {
		st.Reservations = append([]model.Reservation{created}, st.Reservations...)
		st.Success = MessageCreated
		return st
	}, true)

	log.Printf("Created reservation %s", created.ID)
	return created, nil
}

// Approve は予約を楽観的に承認します
func (s *ReservationStore) Approve(ctx context.Context, id string) error {
	return s.transition(ctx, id, model.StatusApproved, s.client.Approve, MessageApproved)
}

// Cancel は予約を楽観的にキャンセルします
func (s *ReservationStore) Cancel(ctx context.Context, id string) error {
	return s.transition(ctx, id, model.StatusCancelled, s.client.Cancel, MessageCancelled)
}

// transition は楽観的更新でステータスを変更します
// 1. エラーをクリア
// 2. 現在の一覧のスナップショットを取得
// 3. 対象の予約だけステータスを書き換えて即座に反映
// 4. 予約APIを呼び出す
// 5. 成功すれば書き換えた状態を確定、失敗すればスナップショットに戻してエラーを返す
func (s *ReservationStore) transition(
	ctx context.Context,
	id string,
	next model.Status,
	call func(context.Context, string) error,
	successMessage string,
) (err error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationStore.Transition")
	if seg != nil {
		defer func() { seg.Close(err) }()
		if mdErr := seg.AddMetadata("reservation_id", id); mdErr != nil {
			log.Printf("Failed to add reservation_id metadata: %v", mdErr)
		}
	}

	s.mu.Lock()
	if _, busy := s.inFlight[id]; busy {
		s.state = s.state.clone()
		s.state.Error = messageInFlight
		s.published++
		s.mu.Unlock()
		s.deliver()
		return fmt.Errorf("reservation %s: %w", id, ErrTransitionInFlight)
	}

	idx := indexOf(s.state.Reservations, id)
	if idx < 0 {
		s.state = s.state.clone()
		s.state.Error = messageNotFound
		s.published++
		s.mu.Unlock()
		s.deliver()
		return fmt.Errorf("reservation %s: %w", id, ErrReservationNotFound)
	}

	s.inFlight[id] = struct{}{}
	before := s.state.clone().Reservations
	previous := before[idx]

	optimistic := s.state.clone()
	optimistic.Error = ""
	optimistic.Success = ""
	optimistic.Reservations[idx] = previous.WithStatus(next)
	s.state = optimistic
	s.revision++
	optimisticRevision := s.revision
	s.published++
	s.mu.Unlock()
	s.deliver()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}()

	if err = call(ctx, id); err == nil {
		s.update(func(st State) State {
			st.Success = successMessage
			return st
		}, false)
		log.Printf("Reservation %s transitioned to %s", id, next)
		return nil
	}

	log.Printf("Failed to transition reservation %s to %s, rolling back: %v", id, next, err)

	s.mu.Lock()
	rolledBack := s.state.clone()
	if s.revision == optimisticRevision {
		// 楽観的更新以降に一覧が変わっていなければスナップショットに丸ごと戻す
		rolledBack.Reservations = before
	} else if i := indexOf(rolledBack.Reservations, id); i >= 0 {
		// 他の操作で一覧が変わっている場合は対象の予約だけを戻す
		rolledBack.Reservations[i] = previous
	}
	rolledBack.Error = client.DisplayMessage(err)
	s.state = rolledBack
	s.revision++
	s.published++
	s.mu.Unlock()
	s.deliver()

	return err
}

// ClearError はエラーメッセージをクリアします
func (s *ReservationStore) ClearError() {
	s.update(func(st State) State {
		st.Error = ""
		return st
	}, false)
}

// ClearSuccess は成功メッセージをクリアします
func (s *ReservationStore) ClearSuccess() {
	s.update(func(st State) State {
		st.Success = ""
		return st
	}, false)
}

func indexOf(reservations []model.Reservation, id string) int {
	for i, r := range reservations {
		if r.ID == id {
			return i
		}
	}
	return -1
}
