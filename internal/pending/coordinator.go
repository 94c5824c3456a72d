// Package pending はログイン前に要求された操作を保留し、ログイン完了時に一度だけ実行する。
//
// 匿名クライアント（cookie pending_action で識別）ごとに保留できる操作は1件で、
// 新しい操作を保留すると前の操作は置き換えられる。
package pending

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName は匿名クライアントを識別するcookie名。
const CookieName = "pending_action"

// Continuation はログインしたユーザーとして保留中の操作を実行する関数。
type Continuation func(ctx context.Context, userID string) error

// Action は保留中の操作。
type Action struct {
	Kind         string // 例: "reaction", "bookmark"
	Label        string // 利用者に表示する説明（フランス語）
	Continuation Continuation
}

type slot struct {
	action    Action
	expiresAt time.Time
}

// Coordinator はクライアントごとに1件の保留操作を保持する。
type Coordinator struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	slots map[string]slot
}

// NewCoordinator はCoordinatorを生成する。ttlを過ぎた保留操作は実行されない。
func NewCoordinator(ttl time.Duration) *Coordinator {
	return &Coordinator{
		ttl:   ttl,
		now:   time.Now,
		slots: make(map[string]slot),
	}
}

// NewClientID は匿名クライアントの識別子を生成する。
func NewClientID() string {
	return uuid.New().String()
}

// Defer は操作を保留する。同じクライアントの既存の保留操作は置き換える。
func (c *Coordinator) Defer(clientID string, action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[clientID] = slot{action: action, expiresAt: c.now().Add(c.ttl)}
}

// Peek は保留中の操作を返す。期限切れの場合は保留なしとして扱う。
func (c *Coordinator) Peek(clientID string) (Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[clientID]
	if !ok || !c.now().Before(s.expiresAt) {
		return Action{}, false
	}
	return s.action, true
}

// Cancel は保留中の操作を破棄する。
func (c *Coordinator) Cancel(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, clientID)
}

// OnAuthenticated はクライアントがログインしたときに呼ばれる。
// 保留操作があればスロットから取り除いてから実行するため、同じ操作が二度実行されることはない。
// 戻り値のboolは操作を実行したかどうか。
func (c *Coordinator) OnAuthenticated(ctx context.Context, clientID, userID string) (bool, error) {
	if clientID == "" {
		return false, nil
	}

	c.mu.Lock()
	s, ok := c.slots[clientID]
	delete(c.slots, clientID)
	c.mu.Unlock()

	if !ok || !c.now().Before(s.expiresAt) || s.action.Continuation == nil {
		return false, nil
	}

	if err := s.action.Continuation(ctx, userID); err != nil {
		slog.Warn("pending action failed",
			slog.String("kind", s.action.Kind),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return true, err
	}

	slog.Info("pending action executed",
		slog.String("kind", s.action.Kind),
		slog.String("user_id", userID),
	)
	return true, nil
}

// Purge は期限切れの保留操作を削除し、削除件数を返す。
func (c *Coordinator) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for id, s := range c.slots {
		if !now.Before(s.expiresAt) {
			delete(c.slots, id)
			n++
		}
	}
	return n
}

// Run はctxが終了するまでinterval間隔でPurgeを実行する。
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

// Len は保留中の操作数を返す。
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}
