package kcomp

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	data := generateMixedData(300 * 1024)
	for name, config := range map[string]*Config{
		"Default":         DefaultConfig(),
		"Fastest":         FastestConfig(),
		"BestCompression": BestCompressionConfig(),
		"Compatible":      CompatibleConfig(),
		"LowCPU":          LowCPUConfig(),
		"Archival":        ArchivalConfig(),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, config.Validate())
			container, err := CompressBytes(data, config)
			require.NoError(t, err)
			require.Less(t, len(container), len(data))

			got, err := DecompressBytes(container)
			require.NoError(t, err)
			require.Equal(t, data, got)
		})
	}

	t.Run("Constructors", func(t *testing.T) {
		e, err := NewWithFastestConfig()
		require.NoError(t, err)
		require.Equal(t, AlgorithmLZ4, e.Config().Algorithm)

		e, err = NewWithBestCompression()
		require.NoError(t, err)
		require.Equal(t, AllAlgorithms, e.Config().Candidates)
	})

	t.Run("Independent", func(t *testing.T) {
		c := BestCompressionConfig()
		c.Candidates[0] = AlgorithmGzip
		require.Equal(t, AlgorithmStore, AllAlgorithms[0])
		require.Equal(t, AlgorithmStore, BestCompressionConfig().Candidates[0])
	})
}

func TestBytesHelpers(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		container, err := CompressBytes(nil, nil)
		require.NoError(t, err)
		got, err := DecompressBytes(container)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Empty(t, got)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		_, err := CompressBytes([]byte("x"), &Config{BlockSize: 1})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("NoPartialOutput", func(t *testing.T) {
		container, err := CompressBytes(generateTestData(200*1024), &Config{BlockSize: 16 * 1024})
		require.NoError(t, err)
		container[len(container)-1] ^= 0xff
		got, err := DecompressBytes(container)
		require.ErrorIs(t, err, ErrCorruption)
		require.Nil(t, got)
	})
}

func TestCompressionRatio(t *testing.T) {
	require.Equal(t, 0.5, GetCompressionRatio(100, 50))
	require.Equal(t, 0.0, GetCompressionRatio(0, 50))
	require.Equal(t, 50.0, GetCompressionPercentage(100, 50))
	require.Equal(t, -10.0, GetCompressionPercentage(100, 110))
	require.Equal(t, 0.0, GetCompressionPercentage(0, 10))
}

func TestExtensions(t *testing.T) {
	require.Equal(t, "notes.txt.kc", CompressedName("notes.txt"))

	for name, want := range map[string]string{
		"notes.txt.kc": "notes.txt",
		"dir/a.kc":     "dir/a",
		"notes.txt":    "notes.txt.out",
		".kc":          ".kc.out",
		"archive.KC":   "archive.KC.out",
	} {
		require.Equal(t, want, DecompressedName(name), name)
	}

	stem, ok := StripExtension("a.kc")
	require.True(t, ok)
	require.Equal(t, "a", stem)
	stem, ok = StripExtension("a.gz")
	require.False(t, ok)
	require.Equal(t, "a.gz", stem)

	require.True(t, HasContainerExtension("x.kc"))
	require.False(t, HasContainerExtension(".kc"))
	require.False(t, HasContainerExtension("x.kcx"))
}

func TestDetectContainer(t *testing.T) {
	container, err := CompressBytes([]byte("some bytes"), nil)
	require.NoError(t, err)
	require.True(t, IsContainer(container))
	require.False(t, IsContainer([]byte("KCM")))
	require.False(t, IsContainer([]byte("PK\x03\x04")))

	for name, tc := range map[string]struct {
		input []byte
		want  bool
	}{
		"Container": {container, true},
		"Plain":     {[]byte("plain text"), false},
		"Short":     {[]byte("KC"), false},
		"Empty":     {nil, false},
	} {
		t.Run(name, func(t *testing.T) {
			ok, r, err := DetectContainer(bytes.NewReader(tc.input))
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
			all, err := io.ReadAll(r)
			require.NoError(t, err)
			require.True(t, bytes.Equal(tc.input, all))
		})
	}
}

func TestBenchmark(t *testing.T) {
	data := generateMixedData(64 * 1024)
	results, err := Benchmark(context.Background(), data, &Config{BlockSize: 8192}, []Algorithm{AlgorithmRLE, AlgorithmZstd})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "adaptive", results[0].Name)
	require.Equal(t, "rle", results[1].Name)
	require.Equal(t, "zstd", results[2].Name)
	for _, r := range results {
		require.Positive(t, r.CompressedSize)
		require.InDelta(t, float64(r.CompressedSize)/float64(len(data)), r.Ratio, 1e-12)
		total := 0
		for _, n := range r.AlgorithmCounts {
			total += n
		}
		require.Equal(t, 8, total)
	}
	require.Zero(t, results[2].AlgorithmCounts[AlgorithmRLE])

	t.Run("InvalidAlgorithm", func(t *testing.T) {
		_, err := Benchmark(context.Background(), data, nil, []Algorithm{Algorithm(99)})
		require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	})
}
