package daemon

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonCommand_DetachedRunWithFlags(t *testing.T) {
	cmd := daemonCommand("/usr/bin/focustrack", []string{"--name", "desk", "--verbose"})

	assert.Equal(t, []string{"/usr/bin/focustrack", "daemon", "run", "--name", "desk", "--verbose"}, cmd.Args)
	assert.Contains(t, cmd.Env, EnvDaemonMode+"=1")
	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setsid)
	assert.Nil(t, cmd.Stdin)
	assert.Nil(t, cmd.Stdout)
	assert.Nil(t, cmd.Stderr)
}

func TestIsDaemonMode(t *testing.T) {
	t.Setenv(EnvDaemonMode, "")
	assert.False(t, IsDaemonMode())

	t.Setenv(EnvDaemonMode, "1")
	assert.True(t, IsDaemonMode())
}

func TestWaitUntil(t *testing.T) {
	var calls atomic.Int32
	ok := waitUntil(time.Second, func() bool { return calls.Add(1) == 3 })
	assert.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())

	start := time.Now()
	assert.False(t, waitUntil(2*pollInterval, func() bool { return false }))
	assert.GreaterOrEqual(t, time.Since(start), 2*pollInterval)
}
