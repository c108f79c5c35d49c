//go:build !windows

package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processGone reports whether pid has exited. Zombies count as gone since
// they no longer run.
func processGone(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return true
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return os.IsNotExist(err)
	}
	// The state follows the parenthesized command name.
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}

func TestExecute_TimeoutKillsProcessGroup(t *testing.T) {
	work := newWorkDir(t)
	script := "sleep 4711 &\necho $! > bg.pid\necho $$ > sh.pid\nsleep 4712\n"
	require.NoError(t, os.WriteFile(filepath.Join(work, "spawn.sh"), []byte(script), 0755))

	sb := newTestSandbox(t, PolicyConfig{
		AllowedCommands: []string{"sh"},
		Timeout:         300 * time.Millisecond,
		WorkDir:         work,
	})

	start := time.Now()
	result, err := sb.Execute(context.Background(), "sh ./spawn.sh")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	require.NotNil(t, result)
	assert.True(t, result.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)

	shPID := readPID(t, filepath.Join(work, "sh.pid"))
	bgPID := readPID(t, filepath.Join(work, "bg.pid"))

	assert.Eventually(t, func() bool { return processGone(shPID) }, 3*time.Second, 50*time.Millisecond, "shell still running")
	assert.Eventually(t, func() bool { return processGone(bgPID) }, 3*time.Second, 50*time.Millisecond, "background child still running")
}
