package generation

import (
	"sync"
	"time"
)

// EventType 进度事件类型
type EventType string

const (
	EventGenerationStart   EventType = "generation_start"
	EventOutputStart       EventType = "output_start"
	EventOutputComplete    EventType = "output_complete"
	EventStepStart         EventType = "step_start"
	EventStepComplete      EventType = "step_complete"
	EventVerticalStart     EventType = "vertical_start"
	EventVerticalComplete  EventType = "vertical_complete"
	EventBatchItemStart    EventType = "batch_item_start"
	EventBatchItemComplete EventType = "batch_item_complete"
	EventError             EventType = "error"
	// EventEnd 终止哨兵，任何序列的最后一条
	EventEnd EventType = "end"
)

// Event 类型化进度事件，按产出顺序发射：
// 同一产出的 *_start 先于 *_complete；并行分支之间不保证顺序。
type Event struct {
	Type      EventType `json:"type"`
	Mode      string    `json:"mode,omitempty"`
	Task      string    `json:"task,omitempty"`
	Step      string    `json:"step,omitempty"`
	Vertical  string    `json:"vertical,omitempty"`
	Index     int       `json:"index,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink 进度事件接收端；nil 表示调用方不关心进度
type Sink func(event *Event) error

// emitter 包装 sink：发射失败视为接收端断开，之后静默丢弃。
// 并行分支会并发发射，串行化由 emitter 保证。
type emitter struct {
	mu   sync.Mutex
	sink Sink
	mode string
}

func newEmitter(sink Sink, mode string) *emitter {
	return &emitter{sink: sink, mode: mode}
}

func (e *emitter) emit(event *Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink == nil {
		return
	}
	event.Mode = e.mode
	event.Timestamp = time.Now()
	if err := e.sink(event); err != nil {
		e.sink = nil
	}
}
