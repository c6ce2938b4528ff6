package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", tf.Key)
	assert.Equal(t, time.Hour, tf.Duration)

	_, err = ParseTimeframe("2h")
	assert.Error(t, err)
}

func TestTimeframe_AlignRange(t *testing.T) {
	tf, err := ParseTimeframe("1h")
	require.NoError(t, err)
	step := tf.durationMillis()

	start, end := tf.AlignRange(step+1234, 3*step+step/2)
	assert.Equal(t, step, start)
	assert.Equal(t, 3*step, end)

	// 颠倒的区间自动交换
	start, end = tf.AlignRange(3*step, step)
	assert.Equal(t, step, start)
	assert.Equal(t, 3*step, end)
}

func TestTimeframe_ExpectedCandles(t *testing.T) {
	tf, err := ParseTimeframe("1h")
	require.NoError(t, err)
	step := tf.durationMillis()

	assert.Equal(t, int64(1), tf.ExpectedCandles(step, step))
	assert.Equal(t, int64(4), tf.ExpectedCandles(step, 4*step))
	assert.Equal(t, int64(0), tf.ExpectedCandles(4*step, step))
}

func TestTimeframe_FindGaps(t *testing.T) {
	tf, err := ParseTimeframe("1h")
	require.NoError(t, err)
	step := tf.durationMillis()

	// 网格 [1,5]*step，本地只有 1、4
	present := []int64{step, 4 * step}
	gaps := tf.findGaps(present, step, 5*step)
	require.Len(t, gaps, 2)
	assert.Equal(t, Gap{From: 2 * step, To: 3 * step}, gaps[0])
	assert.Equal(t, Gap{From: 5 * step, To: 5 * step}, gaps[1])

	assert.Empty(t, tf.findGaps([]int64{step, 2 * step}, step, 2*step))
}

func TestIntegrityReport_Complete(t *testing.T) {
	assert.True(t, IntegrityReport{Expected: 3, Present: 3}.Complete())
	assert.False(t, IntegrityReport{Expected: 3, Present: 2, Gaps: []Gap{{From: 1, To: 1}}}.Complete())
}
