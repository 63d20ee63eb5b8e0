package lua

import (
	"testing"

	"github.com/srg/blip/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type EngineTestSuite struct {
	suite.Suite
	engine *Engine
}

func (s *EngineTestSuite) SetupTest() {
	s.engine = NewEngine(testutils.QuietLogger(), 16)
}

func (s *EngineTestSuite) TearDownTest() {
	s.engine.Close()
}

func (s *EngineTestSuite) lines() []string {
	var out []string
	for {
		select {
		case rec := <-s.engine.Output():
			out = append(out, rec.Source+": "+rec.Content)
		default:
			return out
		}
	}
}

func (s *EngineTestSuite) TestPrintIsCaptured() {
	s.Require().NoError(s.engine.Load(`print("hello", 42, true, nil)`, "inline"))
	s.Equal([]string{"stdout: hello\t42\ttrue\tnil"}, s.lines())
}

func (s *EngineTestSuite) TestNotifyCallsHook() {
	s.Require().NoError(s.engine.Load(`
count = 0
function on_notification(handle, hex)
  count = count + 1
  print(handle, hex)
end`, "hook"))
	s.True(s.engine.HasHook())

	s.Require().NoError(s.engine.Notify(0x25, []byte{0x01, 0xab}))
	s.engine.OnNotification(0x26, nil)

	s.Equal([]string{"stdout: 37\t01ab", "stdout: 38\t"}, s.lines())
	s.Equal(float64(2), s.engine.GetGlobal("count"))
}

func (s *EngineTestSuite) TestNotifyWithoutHookIsNoop() {
	s.Require().NoError(s.engine.Load(`x = 1`, "nohook"))
	s.False(s.engine.HasHook())
	s.NoError(s.engine.Notify(1, []byte{0}))
	s.Empty(s.lines())
}

func (s *EngineTestSuite) TestSyntaxError() {
	err := s.engine.Load("function (", "broken.lua")
	s.Require().Error(err)

	var lerr *Error
	s.Require().ErrorAs(err, &lerr)
	s.Equal("syntax", lerr.Type)
	s.Equal(1, lerr.Line)
	s.ErrorIs(err, &Error{Type: "syntax"})

	out := s.lines()
	s.Require().Len(out, 1)
	s.Contains(out[0], "stderr: lua syntax error (in broken.lua, line 1)")
}

func (s *EngineTestSuite) TestHookRuntimeErrorKeepsEngineUsable() {
	s.Require().NoError(s.engine.Load(`
function on_notification(handle, hex)
  if handle == 1 then error("bad handle") end
  print("ok", handle)
end`, "hook"))

	err := s.engine.Notify(1, nil)
	s.Require().Error(err)
	s.ErrorIs(err, &Error{Type: "runtime"})

	s.NoError(s.engine.Notify(2, nil))
	out := s.lines()
	s.Require().Len(out, 2)
	s.Contains(out[0], "bad handle")
	s.Equal("stdout: ok\t2", out[1])
}

func (s *EngineTestSuite) TestGlobals() {
	s.Require().NoError(s.engine.SetGlobal("address", "11:22:33:44:55:66"))
	s.Require().NoError(s.engine.SetGlobal("mtu", 185))
	s.Require().NoError(s.engine.Load(`print(address, mtu)`, "globals"))
	s.Equal([]string{"stdout: 11:22:33:44:55:66\t185"}, s.lines())

	s.Error(s.engine.SetGlobal("bad", []int{1}))
	s.Nil(s.engine.GetGlobal("missing"))
}

func (s *EngineTestSuite) TestEmptyScriptAndClosedEngine() {
	s.ErrorIs(s.engine.Load("  ", "empty"), &Error{Type: "api"})

	s.engine.Close()
	s.ErrorIs(s.engine.Notify(1, nil), &Error{Type: "api"})
	s.False(s.engine.HasHook())
}

func (s *EngineTestSuite) TestOutputDropsOldest() {
	e := NewEngine(testutils.QuietLogger(), 2)
	defer e.Close()
	s.Require().NoError(e.Load(`for i = 1, 5 do print(i) end`, "loop"))

	s.Equal(int64(3), e.Dropped())
	s.Equal("4", (<-e.Output()).Content)
	s.Equal("5", (<-e.Output()).Content)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) TestBatteryExampleScript() {
	script, err := testutils.LoadScript("examples/battery.lua")
	s.Require().NoError(err)
	s.Require().NoError(s.engine.Load(script, "battery.lua"))
	s.Require().True(s.engine.HasHook())

	s.Require().NoError(s.engine.Notify(3, []byte{0x50}))
	s.Require().NoError(s.engine.Notify(3, []byte{0x4b}))
	s.Require().NoError(s.engine.Notify(3, nil))

	s.Equal([]string{
		"stdout: battery 80%",
		"stdout: battery 75% (down 5)",
		"stdout: handle 0x0003: empty payload",
	}, s.lines())
}
