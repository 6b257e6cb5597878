package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayFixed(t *testing.T) {
	p := NewPolicy(BackoffFixed, 2*time.Second, 30*time.Second, 3)
	require.Equal(t, 2*time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(5))
	require.Equal(t, time.Duration(0), p.Delay(0))
}

func TestDelayLinearGrowsAndCaps(t *testing.T) {
	p := NewPolicy(BackoffLinear, 2*time.Second, 5*time.Second, 3)
	require.Equal(t, 2*time.Second, p.Delay(1))
	require.Equal(t, 4*time.Second, p.Delay(2))
	require.Equal(t, 5*time.Second, p.Delay(3), "capped at max")
}

func TestDelayExponentialGrowsAndCaps(t *testing.T) {
	p := NewPolicy(BackoffExponential, time.Second, 10*time.Second, 5)
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
	require.Equal(t, 8*time.Second, p.Delay(4))
	require.Equal(t, 10*time.Second, p.Delay(5), "capped at max")
}

func TestNewPolicyFallsBackToDefaults(t *testing.T) {
	p := NewPolicy("bogus", 0, 0, -1)
	require.Equal(t, DefaultPolicy(), p)
}

func TestPolicyFromEnv(t *testing.T) {
	t.Setenv("SPECSYNC_RETRY_MODE", "exponential")
	t.Setenv("SPECSYNC_RETRY_INITIAL", "500ms")
	t.Setenv("SPECSYNC_RETRY_MAX", "8s")
	t.Setenv("SPECSYNC_RETRY_COUNT", "4")

	p, err := PolicyFromEnv()
	require.NoError(t, err)
	require.Equal(t, BackoffExponential, p.Mode)
	require.Equal(t, 500*time.Millisecond, p.Initial)
	require.Equal(t, 8*time.Second, p.Max)
	require.Equal(t, 4, p.MaxRetries)
	require.NoError(t, p.Validate())
}

func TestPolicyFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("SPECSYNC_RETRY_MODE", "quadratic")
	_, err := PolicyFromEnv()
	require.Error(t, err)
}
