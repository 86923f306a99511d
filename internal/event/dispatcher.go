package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blues/wallet-reward/internal/logger"
)

// Event 对外发布的领域事件
type Event struct {
	Type       Type
	Payload    interface{}
	OccurredAt time.Time
}

// Listener 事件监听器
type Listener interface {
	Handle(ctx context.Context, e Event) error
}

// ListenerFunc 函数形式的监听器
type ListenerFunc func(ctx context.Context, e Event) error

// Handle 实现 Listener
func (f ListenerFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Dispatcher 事件分发器
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[Type][]Listener
}

// NewDispatcher 创建事件分发器
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[Type][]Listener),
	}
}

// Register 注册监听器
func (d *Dispatcher) Register(eventType Type, listener Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.listeners[eventType] = append(d.listeners[eventType], listener)
	logger.Info("Registered listener for event type: %s", eventType)
}

// Publish 同步通知所有监听器，单个监听器失败不影响其他监听器
func (d *Dispatcher) Publish(ctx context.Context, eventType Type, payload interface{}) int {
	d.mu.RLock()
	listeners := make([]Listener, len(d.listeners[eventType]))
	copy(listeners, d.listeners[eventType])
	d.mu.RUnlock()

	if len(listeners) == 0 {
		logger.Debug("No listener found for event type: %s", eventType)
		return 0
	}

	e := Event{Type: eventType, Payload: payload, OccurredAt: time.Now()}
	failed := 0
	for _, listener := range listeners {
		if err := safeHandle(ctx, listener, e); err != nil {
			failed++
			logger.Error("Listener failed for event %s: %v", eventType, err)
		}
	}
	return failed
}

func safeHandle(ctx context.Context, listener Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return listener.Handle(ctx, e)
}

// ListenerCount 获取某类事件的监听器数量
func (d *Dispatcher) ListenerCount(eventType Type) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[eventType])
}
