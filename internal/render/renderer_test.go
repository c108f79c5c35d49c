package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/atinylittleshell/farcode/internal/approval"
	"github.com/stretchr/testify/assert"
)

func TestRenderToolCall_WrapsLongArguments(t *testing.T) {
	var out bytes.Buffer
	renderer := New(&out, func() int { return 40 })

	args := strings.Repeat("word ", 30)
	renderer.RenderToolCall(approval.Request{Tool: "write_file", Args: args})

	for _, line := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 44, "line too wide: %q", line)
	}
	assert.Contains(t, out.String(), "write_file")
}

func TestRenderToolCall_ClampsLines(t *testing.T) {
	var out bytes.Buffer
	renderer := New(&out, nil)

	args := strings.Repeat("line\n", maxArgsLines+5)
	renderer.RenderToolCall(approval.Request{Tool: "write_file", Args: args})
	assert.Contains(t, out.String(), "more lines)")
}

func TestRenderMessages(t *testing.T) {
	var out bytes.Buffer
	renderer := New(&out, nil)

	renderer.RenderSystemMessage("Conversation cleared")
	renderer.RenderError("boom")
	renderer.RenderSuccess("ok")
	renderer.RenderWarning("Keeping the previous configuration.")
	renderer.RenderAgentHeader("groq", "openai/gpt-oss-120b")
	renderer.RenderToolResult("read_file", 1500*time.Millisecond, true)
	renderer.RenderAgentFooter(10, 20, 2*time.Second)

	output := out.String()
	assert.Contains(t, output, SymbolSystemMessage+" Conversation cleared")
	assert.Contains(t, output, "boom")
	assert.Contains(t, output, "ok")
	assert.Contains(t, output, "Keeping the previous configuration.")
	assert.Contains(t, output, "groq · openai/gpt-oss-120b")
	assert.Contains(t, output, "read_file")
	assert.Contains(t, output, "(1.5s)")
	assert.Contains(t, output, "10 in · 20 out · 2.0s")
}

func TestStyledSymbol(t *testing.T) {
	for _, symbol := range []string{SymbolExec, SymbolToolPending, SymbolToolComplete, SymbolSuccess, SymbolError, SymbolSystemMessage} {
		assert.Contains(t, StyledSymbol(symbol, true), symbol)
		assert.Contains(t, StyledSymbol(symbol, false), symbol)
	}
	assert.Equal(t, "x", StyledSymbol("x", true))
}

func TestRenderWelcome(t *testing.T) {
	var out bytes.Buffer
	RenderWelcome(&out, WelcomeInfo{Provider: "open_router", Model: "xiaomi/mimo-v2-flash:free", Version: "1.2.0", MCPServers: 2}, 80)

	output := out.String()
	assert.Contains(t, output, "open_router/xiaomi/mimo-v2-flash:free")
	assert.Contains(t, output, "1.2.0")
	assert.Contains(t, output, "2 server(s)")
	assert.Contains(t, output, "/help")
	assert.Contains(t, output, "tip: ")

	out.Reset()
	RenderWelcome(&out, WelcomeInfo{}, 10)
	assert.Contains(t, out.String(), "not configured")
	assert.NotContains(t, out.String(), farcodeLogo[1])
}

func TestGetTipOfTheDay(t *testing.T) {
	day := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, getTipOfTheDay(day), getTipOfTheDay(day.Add(10*time.Hour)))
	assert.NotEmpty(t, getTipOfTheDay(day))
}
