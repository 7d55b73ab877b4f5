package kcomp

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	e := mustNew(t, &Config{BlockSize: 1024, Workers: 2})

	rle := engineBlocksEncodedTotal.WithLabelValues("rle")
	store := engineBlocksEncodedTotal.WithLabelValues("store")
	fallback := engineBlocksFallbackTotal.WithLabelValues("dictionary")
	decoded := engineBlocksDecodedTotal.WithLabelValues("rle")
	bytesIn := engineBytesTotal.WithLabelValues("compress", "in")
	bytesOut := engineBytesTotal.WithLabelValues("decompress", "out")

	rleBefore := testutil.ToFloat64(rle)
	storeBefore := testutil.ToFloat64(store)
	fallbackBefore := testutil.ToFloat64(fallback)
	decodedBefore := testutil.ToFloat64(decoded)
	inBefore := testutil.ToFloat64(bytesIn)
	outBefore := testutil.ToFloat64(bytesOut)

	// Three run blocks, then a short text block the dictionary cannot
	// shrink.
	data := append(bytes.Repeat([]byte{0}, 3*1024), "Hello, World!"...)
	container := compress(t, e, data)
	require.Equal(t, data, decompress(t, container))

	require.Equal(t, 3.0, testutil.ToFloat64(rle)-rleBefore)
	require.Equal(t, 1.0, testutil.ToFloat64(store)-storeBefore)
	require.Equal(t, 1.0, testutil.ToFloat64(fallback)-fallbackBefore)
	require.GreaterOrEqual(t, testutil.ToFloat64(decoded)-decodedBefore, 3.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(bytesIn)-inBefore, float64(len(data)))
	require.GreaterOrEqual(t, testutil.ToFloat64(bytesOut)-outBefore, float64(len(data)))
}
