// Package streamcall implements the tool-argument streaming manager: a
// client streams a tool call's arguments chunk by chunk (tools/stream_call,
// tools/stream_chunk, tools/stream_complete) instead of delivering them in
// one unary tools/call, and the manager merges the chunks per a declared
// strategy once every argument is complete.
package streamcall

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MergeStrategy names how an argument's chunks combine into its final
// value.
type MergeStrategy string

const (
	MergeConcatenate MergeStrategy = "concatenate"
	MergeJSONMerge   MergeStrategy = "json_merge"
	MergeLast        MergeStrategy = "last"
)

// StreamingArgument declares one argument a tool accepts as a stream,
// and the strategy used to merge its chunks.
type StreamingArgument struct {
	Name          string        `json:"name"`
	MergeStrategy MergeStrategy `json:"mergeStrategy"`
}

// Status is a stream's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusWarning   Status = "warning"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Config bounds a stream's lifetime: DefaultTimeoutMs is clamped into
// [1000, MaxTimeoutMs] and WarningThresholdMs fires a warning callback
// before the hard timeout.
type Config struct {
	DefaultTimeoutMs   int64
	WarningThresholdMs int64
	MaxTimeoutMs       int64
}

const defaultMaxTimeoutMs = 300_000

func (c Config) normalized() Config {
	out := c
	if out.MaxTimeoutMs <= 0 {
		out.MaxTimeoutMs = defaultMaxTimeoutMs
	}
	if out.DefaultTimeoutMs <= 0 {
		out.DefaultTimeoutMs = 60_000
	}
	if out.DefaultTimeoutMs < 1000 {
		out.DefaultTimeoutMs = 1000
	}
	if out.DefaultTimeoutMs > out.MaxTimeoutMs {
		out.DefaultTimeoutMs = out.MaxTimeoutMs
	}
	return out
}

// argumentState tracks one streaming argument's chunks.
type argumentState struct {
	strategy MergeStrategy
	chunks   []json.RawMessage
	complete bool
}

// StreamState is the per-call record of one argument stream, exported so
// callers can inspect an in-flight stream (e.g. for diagnostics).
type StreamState struct {
	CallID           string
	ToolName         string
	StartTime        time.Time
	LastActivityTime time.Time
	Status           Status
	Config           Config
	Annotations      []StreamingArgument

	arguments map[string]*argumentState

	idleTimer    *time.Timer
	warningTimer *time.Timer
}

// ValidationError reports a chunk whose type doesn't match its argument's
// declared merge strategy.
type ValidationError struct {
	CallID   string
	Argument string
	Strategy MergeStrategy
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("streamcall: call %q argument %q: value is not valid for merge strategy %q", e.CallID, e.Argument, e.Strategy)
}

// Manager owns every active stream and the four public event callbacks:
// OnError, OnWarning, OnTimeout, OnCancel. Exactly one idle timer and one
// warning timer run per active stream, both cancelled on any terminal
// transition.
type Manager struct {
	mu      sync.Mutex
	streams map[string]*StreamState

	OnError   func(callID string, err error)
	OnWarning func(callID string, elapsed time.Duration)
	OnTimeout func(callID string, elapsed time.Duration)
	OnCancel  func(callID string)
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{streams: make(map[string]*StreamState)}
}

// StartCall registers a new stream for callID, per tools/stream_call.
func (m *Manager) StartCall(callID, toolName string, annotations []StreamingArgument, cfg Config) error {
	cfg = cfg.normalized()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.streams[callID]; exists {
		return errors.Errorf("streamcall: call %q already active", callID)
	}

	args := make(map[string]*argumentState, len(annotations))
	for _, a := range annotations {
		args[a.Name] = &argumentState{strategy: a.MergeStrategy}
	}

	now := time.Now()
	st := &StreamState{
		CallID:           callID,
		ToolName:         toolName,
		StartTime:        now,
		LastActivityTime: now,
		Status:           StatusActive,
		Config:           cfg,
		Annotations:      annotations,
		arguments:        args,
	}
	m.streams[callID] = st
	m.armTimers(st)
	return nil
}

// armTimers (re)starts the idle and warning timers for st. Caller must
// hold m.mu.
func (m *Manager) armTimers(st *StreamState) {
	if st.idleTimer != nil {
		st.idleTimer.Stop()
	}
	if st.warningTimer != nil {
		st.warningTimer.Stop()
	}

	hard := time.Duration(st.Config.DefaultTimeoutMs) * time.Millisecond
	st.idleTimer = time.AfterFunc(hard, func() { m.onHardTimeout(st.CallID) })

	if st.Config.WarningThresholdMs > 0 && st.Config.WarningThresholdMs < st.Config.DefaultTimeoutMs {
		warn := time.Duration(st.Config.WarningThresholdMs) * time.Millisecond
		st.warningTimer = time.AfterFunc(warn, func() { m.onWarning(st.CallID) })
	}
}

func (m *Manager) onWarning(callID string) {
	m.mu.Lock()
	st, ok := m.streams[callID]
	if !ok || st.Status != StatusActive {
		m.mu.Unlock()
		return
	}
	st.Status = StatusWarning
	elapsed := time.Since(st.StartTime)
	m.mu.Unlock()

	if m.OnWarning != nil {
		m.OnWarning(callID, elapsed)
	}
}

func (m *Manager) onHardTimeout(callID string) {
	m.mu.Lock()
	st, ok := m.streams[callID]
	if !ok {
		m.mu.Unlock()
		return
	}
	st.Status = StatusTimeout
	elapsed := time.Since(st.StartTime)
	if st.warningTimer != nil {
		st.warningTimer.Stop()
	}
	delete(m.streams, callID)
	m.mu.Unlock()

	if m.OnTimeout != nil {
		m.OnTimeout(callID, elapsed)
	}
}

// HandleChunk appends one chunk to argument on callID's stream, per
// tools/stream_chunk. It resets the idle timer and validates data against
// the argument's merge strategy, reporting a *ValidationError via OnError
// and returning it if the value doesn't fit the strategy.
func (m *Manager) HandleChunk(callID, argument string, data json.RawMessage, isFinal bool) error {
	m.mu.Lock()
	st, ok := m.streams[callID]
	if !ok {
		m.mu.Unlock()
		return errors.Errorf("streamcall: unknown call %q", callID)
	}
	if st.Status != StatusActive && st.Status != StatusWarning {
		m.mu.Unlock()
		return errors.Errorf("streamcall: call %q is not accepting chunks (status %s)", callID, st.Status)
	}

	arg, ok := st.arguments[argument]
	if !ok {
		m.mu.Unlock()
		return errors.Errorf("streamcall: call %q has no streaming argument %q", callID, argument)
	}

	if !validForStrategy(arg.strategy, data) {
		m.mu.Unlock()
		verr := &ValidationError{CallID: callID, Argument: argument, Strategy: arg.strategy}
		if m.OnError != nil {
			m.OnError(callID, verr)
		}
		return verr
	}

	arg.chunks = append(arg.chunks, data)
	if isFinal {
		arg.complete = true
	}
	st.LastActivityTime = time.Now()
	st.Status = StatusActive
	m.armTimers(st)
	m.mu.Unlock()
	return nil
}

// validForStrategy: concatenate accepts string/number/boolean, json_merge
// accepts object or null, last accepts anything.
func validForStrategy(strategy MergeStrategy, data json.RawMessage) bool {
	trimmed := trimSpace(data)
	if len(trimmed) == 0 {
		return false
	}
	switch strategy {
	case MergeConcatenate:
		switch trimmed[0] {
		case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 't', 'f':
			return true
		default:
			return false
		}
	case MergeJSONMerge:
		return trimmed[0] == '{' || string(trimmed) == "null"
	case MergeLast:
		return true
	default:
		return true
	}
}

func trimSpace(b json.RawMessage) json.RawMessage {
	start, end := 0, len(b)
	for start < end && isJSONSpace(b[start]) {
		start++
	}
	for end > start && isJSONSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Complete attempts to finalize callID's stream, per tools/stream_complete.
// It returns (nil, nil) when any argument is still incomplete or has no
// chunks; the stream stays open in that case. On success it returns a JSON
// object mapping each argument name to its merged value and removes the
// stream.
func (m *Manager) Complete(callID string) (json.RawMessage, error) {
	m.mu.Lock()
	st, ok := m.streams[callID]
	if !ok {
		m.mu.Unlock()
		return nil, errors.Errorf("streamcall: unknown call %q", callID)
	}

	for _, arg := range st.arguments {
		if !arg.complete || len(arg.chunks) == 0 {
			m.mu.Unlock()
			return nil, nil
		}
	}

	merged := make(map[string]json.RawMessage, len(st.arguments))
	for name, arg := range st.arguments {
		value, err := merge(arg.strategy, arg.chunks)
		if err != nil {
			m.mu.Unlock()
			if m.OnError != nil {
				m.OnError(callID, err)
			}
			return nil, err
		}
		merged[name] = value
	}

	st.Status = StatusCompleted
	if st.idleTimer != nil {
		st.idleTimer.Stop()
	}
	if st.warningTimer != nil {
		st.warningTimer.Stop()
	}
	delete(m.streams, callID)
	m.mu.Unlock()

	return json.Marshal(merged)
}

// Cancel aborts callID's stream, firing OnCancel and releasing its
// timers.
func (m *Manager) Cancel(callID string) error {
	m.mu.Lock()
	st, ok := m.streams[callID]
	if !ok {
		m.mu.Unlock()
		return errors.Errorf("streamcall: unknown call %q", callID)
	}
	st.Status = StatusCancelled
	if st.idleTimer != nil {
		st.idleTimer.Stop()
	}
	if st.warningTimer != nil {
		st.warningTimer.Stop()
	}
	delete(m.streams, callID)
	m.mu.Unlock()

	if m.OnCancel != nil {
		m.OnCancel(callID)
	}
	return nil
}

// merge combines chunks per strategy.
func merge(strategy MergeStrategy, chunks []json.RawMessage) (json.RawMessage, error) {
	switch strategy {
	case MergeConcatenate:
		return mergeConcatenate(chunks)
	case MergeJSONMerge:
		return mergeJSONMerge(chunks)
	case MergeLast:
		return chunks[len(chunks)-1], nil
	default:
		return nil, errors.Errorf("streamcall: unknown merge strategy %q", strategy)
	}
}

// mergeConcatenate joins strings directly and stringifies numeric/bool
// chunks before joining. Stringifying numbers is inherited wire behavior;
// callers relying on numeric chunks get "42", not 42.
func mergeConcatenate(chunks []json.RawMessage) (json.RawMessage, error) {
	var sb []byte
	for _, c := range chunks {
		s, err := coerceToString(c)
		if err != nil {
			return nil, err
		}
		sb = append(sb, s...)
	}
	return json.Marshal(string(sb))
}

func coerceToString(raw json.RawMessage) (string, error) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", errors.Wrap(err, "streamcall: decoding string chunk")
		}
		return s, nil
	}
	if string(trimmed) == "true" || string(trimmed) == "false" {
		return string(trimmed), nil
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return "", errors.Wrap(err, "streamcall: decoding numeric chunk")
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// mergeJSONMerge spreads each object chunk left-to-right, later keys
// winning; null chunks are skipped.
func mergeJSONMerge(chunks []json.RawMessage) (json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	for _, c := range chunks {
		trimmed := trimSpace(c)
		if string(trimmed) == "null" {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, errors.Wrap(err, "streamcall: decoding object chunk")
		}
		for k, v := range obj {
			out[k] = v
		}
	}
	return json.Marshal(out)
}
