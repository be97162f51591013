package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/ratelimiter/internal/keys"
)

func newTestEngine(t *testing.T) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewStore(client)
	require.NoError(t, store.Initialize(context.Background()))

	engine := NewEngine(EngineConfig{Store: store, WindowSeconds: 60})
	return engine, mr
}

var scenarioLimits = keys.Limits{APIKey: "sk-scenario", RPM: 5, InputTPM: 1000, OutputTPM: 500}

// Scenario 1: five admissions of (100, 50) within the same second all
// succeed; the sixth is throttled on rpm with the usages frozen.
func TestEngine_Scenario1_FiveAdmitSixthThrottled(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		out, err := engine.CheckAndConsume(ctx, scenarioLimits.APIKey, scenarioLimits, 100, 50)
		require.NoError(t, err)
		assert.True(t, out.Allowed, "admission %d should be allowed", i+1)
	}

	out, err := engine.CheckAndConsume(ctx, scenarioLimits.APIKey, scenarioLimits, 100, 50)
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, DimensionRPM, out.LimitFlag)
	assert.Equal(t, int64(5), out.RPMUsage)
	assert.Equal(t, int64(500), out.InputUsage)
	assert.Equal(t, int64(250), out.OutputUsage)
}

// Scenario 2: a single oversized input-token request is rejected on the
// input dimension and mutates nothing.
func TestEngine_Scenario2_InputTooLarge(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	out, err := engine.CheckAndConsume(ctx, "sk-s2", scenarioLimits, 1500, 50)
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, DimensionInputTokens, out.LimitFlag)
	assert.Equal(t, int64(0), out.RPMUsage)
	assert.Equal(t, int64(0), out.InputUsage)
	assert.Equal(t, int64(0), out.OutputUsage)
}

// Scenario 3: a single oversized output-token request is rejected on the
// output dimension and mutates nothing.
func TestEngine_Scenario3_OutputTooLarge(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	out, err := engine.CheckAndConsume(ctx, "sk-s3", scenarioLimits, 100, 600)
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, DimensionOutputTokens, out.LimitFlag)
	assert.Equal(t, int64(0), out.RPMUsage)
}

// Scenario 4: after window_seconds+1 of inactivity, usage has fully reset.
func TestEngine_Scenario4_ExpiryAcrossWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewStore(client)
	require.NoError(t, store.Initialize(context.Background()))

	clock := time.Now()
	engine := NewEngine(EngineConfig{Store: store, WindowSeconds: 60, now: func() time.Time { return clock }})
	ctx := context.Background()

	out, err := engine.CheckAndConsume(ctx, "sk-s4", scenarioLimits, 400, 100)
	require.NoError(t, err)
	require.True(t, out.Allowed)
	assert.Equal(t, int64(400), out.InputUsage)

	clock = clock.Add(61 * time.Second)
	mr.FastForward(61 * time.Second)

	out, err = engine.CheckAndConsume(ctx, "sk-s4", scenarioLimits, 400, 100)
	require.NoError(t, err)
	require.True(t, out.Allowed)
	assert.Equal(t, int64(1), out.RPMUsage)
	assert.Equal(t, int64(400), out.InputUsage)
	assert.Equal(t, int64(100), out.OutputUsage)
}

// Scenario 5: two concurrent bursts of 10 admissions for the same rpm=5 key
// result in exactly 5 successes and 15 throttles, with RunningTotal_rpm
// settling at 5.
func TestEngine_Scenario5_ConcurrentBurstExactlyFiveAdmitted(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	throttledCount := 0

	burst := func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			out, err := engine.CheckAndConsume(ctx, "sk-s5", scenarioLimits, 1, 1)
			require.NoError(t, err)
			mu.Lock()
			if out.Allowed {
				allowedCount++
			} else {
				throttledCount++
			}
			mu.Unlock()
		}
	}

	wg.Add(2)
	go burst()
	go burst()
	wg.Wait()

	assert.Equal(t, 5, allowedCount)
	assert.Equal(t, 15, throttledCount)

	out, err := engine.CheckAndConsume(ctx, "sk-s5", keys.Limits{APIKey: "sk-s5", RPM: 0, InputTPM: 0, OutputTPM: 0}, 0, 0)
	require.NoError(t, err)
	// rpm disabled here so this call always admits; read back the running
	// total it reports instead of relying on the disabled dimension's flag.
	assert.Equal(t, int64(6), out.RPMUsage)
}

// Scenario 6 (store script cache flushed between admissions) is covered in
// store_test.go's NOSCRIPT recovery test, exercised through Eval directly;
// this variant exercises it through the engine end to end.
func TestEngine_Scenario6_SurvivesScriptCacheFlush(t *testing.T) {
	engine, mr := newTestEngine(t)
	ctx := context.Background()

	out, err := engine.CheckAndConsume(ctx, "sk-s6", scenarioLimits, 10, 5)
	require.NoError(t, err)
	require.True(t, out.Allowed)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	require.NoError(t, client.ScriptFlush(ctx).Err())

	out, err = engine.CheckAndConsume(ctx, "sk-s6", scenarioLimits, 10, 5)
	require.NoError(t, err)
	require.True(t, out.Allowed)
	assert.Equal(t, int64(2), out.RPMUsage)
	assert.Equal(t, int64(20), out.InputUsage)
}

// Edge case: zero-token request still consumes 1 rpm and admits trivially
// on the token dimensions.
func TestEngine_ZeroTokenRequestStillConsumesRPM(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	out, err := engine.CheckAndConsume(ctx, "sk-zero", scenarioLimits, 0, 0)
	require.NoError(t, err)
	assert.True(t, out.Allowed)
	assert.Equal(t, int64(1), out.RPMUsage)
	assert.Equal(t, int64(0), out.InputUsage)
	assert.Equal(t, int64(0), out.OutputUsage)
}

// Edge case: negative token counts are clamped to 0 rather than rejected or
// subtracted.
func TestEngine_NegativeTokensClampToZero(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	out, err := engine.CheckAndConsume(ctx, "sk-neg", scenarioLimits, -50, -10)
	require.NoError(t, err)
	assert.True(t, out.Allowed)
	assert.Equal(t, int64(0), out.InputUsage)
	assert.Equal(t, int64(0), out.OutputUsage)
}

// Two admissions landing in the same one-second bucket both succeed and
// accumulate rather than overwrite each other.
func TestEngine_SameSecondBucketAccumulates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewStore(client)
	require.NoError(t, store.Initialize(context.Background()))

	frozen := time.Now()
	engine := NewEngine(EngineConfig{Store: store, WindowSeconds: 60, now: func() time.Time { return frozen }})
	ctx := context.Background()

	out1, err := engine.CheckAndConsume(ctx, "sk-p6", scenarioLimits, 100, 50)
	require.NoError(t, err)
	require.True(t, out1.Allowed)

	out2, err := engine.CheckAndConsume(ctx, "sk-p6", scenarioLimits, 100, 50)
	require.NoError(t, err)
	require.True(t, out2.Allowed)

	assert.Equal(t, int64(2), out2.RPMUsage)
	assert.Equal(t, int64(200), out2.InputUsage)
	assert.Equal(t, int64(100), out2.OutputUsage)
}

func TestEngine_Bypass(t *testing.T) {
	engine, _ := newTestEngine(t)
	bypassed := engine.WithBypass(true)

	out, err := bypassed.CheckAndConsume(context.Background(), "sk-bypass", scenarioLimits, 99999, 99999)
	require.NoError(t, err)
	assert.True(t, out.Allowed)
	assert.Equal(t, int64(0), out.RPMUsage)
}

func TestEngine_DisabledDimensionNeverFlags(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	disabledOutput := keys.Limits{APIKey: "sk-disabled", RPM: 1, InputTPM: 1, OutputTPM: 0}

	out, err := engine.CheckAndConsume(ctx, "sk-disabled", disabledOutput, 1, 999999)
	require.NoError(t, err)
	assert.True(t, out.Allowed)
	assert.NotEqual(t, DimensionOutputTokens, out.LimitFlag)
}
