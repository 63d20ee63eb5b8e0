// Package lua runs a user script against incoming notifications. A script
// defines on_notification(handle, hex) and may print; printed lines are
// captured into a bounded output feed.
package lua

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/blip/internal/ringchan"
)

// HookName is the global function called for every notification
const HookName = "on_notification"

// OutputRecord is one line written by the script
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
}

// Error is a script failure
type Error struct {
	Type    string // "syntax", "runtime" or "api"
	Message string
	Line    int
	Source  string
	Err     error
}

func (e *Error) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, "in "+e.Source)
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("lua %s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("lua %s error (%s): %s", e.Type, strings.Join(parts, ", "), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var le *Error
	if errors.As(target, &le) {
		return e.Type == le.Type
	}
	return false
}

// Engine owns one Lua state. Calls are serialised, so it can be fed from the
// connection goroutine while another goroutine drains Output.
type Engine struct {
	mu     sync.Mutex
	state  *lua.State
	logger *logrus.Logger
	name   string
	output *ringchan.RingChannel[OutputRecord]
}

// NewEngine creates an engine whose output feed keeps the newest capacity lines
func NewEngine(logger *logrus.Logger, capacity int) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		logger: logger,
		output: ringchan.New[OutputRecord](capacity),
	}
	e.state = lua.NewState()
	e.state.OpenLibs()
	e.registerPrint()
	return e
}

func (e *Engine) emit(source, line string) {
	if e.output.Send(OutputRecord{Content: line, Timestamp: time.Now(), Source: source}) {
		e.logger.Debug("Lua output feed full, oldest line dropped")
	}
}

func (e *Engine) registerPrint() {
	e.state.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			switch L.Type(i) {
			case lua.LUA_TNIL:
				parts = append(parts, "nil")
			case lua.LUA_TBOOLEAN:
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			case lua.LUA_TNUMBER:
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case lua.LUA_TSTRING:
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}
		e.emit("stdout", strings.Join(parts, "\t"))
		return 0
	})
	e.state.SetGlobal("print")
}

// parseError splits `[string "..."]:LINE: message` into its parts
func parseError(errType, source string, err error) *Error {
	msg := err.Error()
	line := 0
	if parts := strings.SplitN(msg, ":", 3); len(parts) == 3 {
		if n, serr := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); serr == nil && n == 1 {
			msg = strings.TrimSpace(parts[2])
		}
	}
	return &Error{Type: errType, Message: msg, Line: line, Source: source, Err: err}
}

// Load runs a script so its globals, including the hook, are defined
func (e *Engine) Load(script, name string) error {
	if strings.TrimSpace(script) == "" {
		return &Error{Type: "api", Message: "empty script", Source: name}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return &Error{Type: "api", Message: "engine closed", Source: name}
	}

	if status := e.state.LoadString(script); status != 0 {
		lerr := parseError("syntax", name, errors.New(e.state.ToString(-1)))
		e.state.SetTop(0)
		e.emit("stderr", lerr.Error())
		return lerr
	}
	if err := e.state.Call(0, 0); err != nil {
		lerr := parseError("runtime", name, err)
		e.state.SetTop(0)
		e.emit("stderr", lerr.Error())
		return lerr
	}
	e.name = name
	e.logger.WithField("script", name).Info("Lua script loaded")
	return nil
}

// LoadFile reads and loads a script file
func (e *Engine) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return e.Load(string(content), path)
}

// HasHook reports whether the loaded script defines the notification hook
func (e *Engine) HasHook() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return false
	}
	e.state.GetGlobal(HookName)
	defer e.state.Pop(1)
	return e.state.IsFunction(-1)
}

// Notify calls the hook with the handle and the payload as lowercase hex.
// Without a hook it does nothing.
func (e *Engine) Notify(handle uint16, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return &Error{Type: "api", Message: "engine closed"}
	}

	e.state.GetGlobal(HookName)
	if !e.state.IsFunction(-1) {
		e.state.Pop(1)
		return nil
	}
	e.state.PushInteger(int64(handle))
	e.state.PushString(hex.EncodeToString(data))
	if err := e.state.Call(2, 0); err != nil {
		lerr := parseError("runtime", e.name, err)
		e.state.SetTop(0)
		e.emit("stderr", lerr.Error())
		return lerr
	}
	return nil
}

// OnNotification lets the engine observe a connection; script failures are
// logged and the notification stream continues.
func (e *Engine) OnNotification(handle uint16, data []byte) {
	if err := e.Notify(handle, data); err != nil {
		e.logger.WithError(err).WithField("handle", handle).Warn("Lua notification hook failed")
	}
}

// SetGlobal exposes a scalar to the script
func (e *Engine) SetGlobal(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return &Error{Type: "api", Message: "engine closed"}
	}
	switch v := value.(type) {
	case string:
		e.state.PushString(v)
	case int:
		e.state.PushInteger(int64(v))
	case int64:
		e.state.PushInteger(v)
	case float64:
		e.state.PushNumber(v)
	case bool:
		e.state.PushBoolean(v)
	default:
		return &Error{Type: "api", Message: fmt.Sprintf("unsupported type %T for global %s", value, name)}
	}
	e.state.SetGlobal(name)
	return nil
}

// GetGlobal reads a string, number or boolean global; nil otherwise
func (e *Engine) GetGlobal(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	e.state.GetGlobal(name)
	defer e.state.Pop(1)
	switch {
	case e.state.IsNumber(-1):
		return e.state.ToNumber(-1)
	case e.state.IsString(-1):
		return e.state.ToString(-1)
	case e.state.IsBoolean(-1):
		return e.state.ToBoolean(-1)
	default:
		return nil
	}
}

// Output is the feed of printed lines and script errors
func (e *Engine) Output() <-chan OutputRecord {
	return e.output.C()
}

// Dropped is how many output lines were discarded unread
func (e *Engine) Dropped() int64 {
	return e.output.Metrics().Overwritten
}

// Close releases the Lua state and ends the output feed
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
		e.output.Close()
	}
}
