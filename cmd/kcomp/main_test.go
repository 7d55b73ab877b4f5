package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/khaledalam/kcomp"
	"github.com/stretchr/testify/require"
)

type harness struct {
	fsys           *kcomp.MemFS
	stdout, stderr bytes.Buffer
}

func newHarness(t *testing.T, files map[string][]byte) *harness {
	t.Helper()
	h := &harness{fsys: kcomp.NewMemFS()}
	for name, data := range files {
		f, err := h.fsys.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	return h
}

func (h *harness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	return newCLI(h.fsys, &h.stdout, &h.stderr).run(context.Background(), args)
}

func (h *harness) read(t *testing.T, name string) []byte {
	t.Helper()
	f, err := h.fsys.Open(name)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func (h *harness) exists(name string) bool {
	_, err := h.fsys.Stat(name)
	return err == nil
}

func TestCompressDecompress(t *testing.T) {
	text := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 5000)
	h := newHarness(t, map[string][]byte{"/doc.txt": text})

	require.Equal(t, exitOK, h.run("c", "/doc.txt"))
	require.True(t, h.exists("/doc.txt.kc"))
	require.Contains(t, h.stderr.String(), "Ratio: ")
	require.Contains(t, h.stderr.String(), "Output: /doc.txt.kc")
	require.Empty(t, h.stdout.String())

	require.Equal(t, exitOK, h.run("d", "/doc.txt.kc", "/restored.txt"))
	require.Equal(t, text, h.read(t, "/restored.txt"))
	require.Contains(t, h.stderr.String(), "Output: /restored.txt")

	t.Run("DefaultDecompressedName", func(t *testing.T) {
		require.Equal(t, exitOK, h.run("c", "/doc.txt", "/archive"))
		require.Equal(t, exitOK, h.run("d", "-s", "/archive"))
		require.Equal(t, text, h.read(t, "/archive.out"))
		require.Empty(t, h.stderr.String())
	})

	t.Run("Shorthand", func(t *testing.T) {
		h := newHarness(t, map[string][]byte{"/video.mp4": text})
		require.Equal(t, exitOK, h.run("/video.mp4"))
		require.True(t, h.exists("/video.mp4.kc"))

		h = newHarness(t, map[string][]byte{"/video.mp4": text})
		require.Equal(t, exitOK, h.run("-s", "/video.mp4"))
		require.True(t, h.exists("/video.mp4.kc"))
		require.Empty(t, h.stderr.String())
	})

	t.Run("Options", func(t *testing.T) {
		for _, args := range [][]string{
			{"c", "-s", "-strategy", "exhaustive", "/doc.txt", "/x1"},
			{"c", "/doc.txt", "-algorithm", "zstd", "-level", "19", "/x2"},
			{"c", "-strategy", "fixed", "-algorithm", "brotli", "/doc.txt", "/x3"},
			{"c", "-block-size", "4096", "-workers", "3", "-cdc", "/doc.txt", "/x4"},
		} {
			require.Equal(t, exitOK, h.run(args...), strings.Join(args, " "))
			output := args[len(args)-1]
			require.Equal(t, exitOK, h.run("d", "-s", output, output+".out"))
			require.Equal(t, text, h.read(t, output+".out"))
		}
	})
}

func TestInspect(t *testing.T) {
	data := append(bytes.Repeat([]byte{0}, 65536), "Hello, World!"...)
	h := newHarness(t, map[string][]byte{"/data": data})
	require.Equal(t, exitOK, h.run("c", "-s", "/data"))

	require.Equal(t, exitOK, h.run("i", "/data.kc"))
	out := h.stdout.String()
	require.Contains(t, out, "version:     1\n")
	require.Contains(t, out, "block size:  65536\n")
	require.Contains(t, out, "blocks:      2\n")
	require.Contains(t, out, "  store      1\n")
	require.Contains(t, out, "  rle        1\n")
	require.Less(t, strings.Index(out, "store"), strings.Index(out, "rle"))
	require.NotContains(t, out, "crc=")

	require.Equal(t, exitOK, h.run("i", "-blocks", "/data.kc"))
	require.Equal(t, 2, strings.Count(h.stdout.String(), "crc="))
}

func TestBenchmark(t *testing.T) {
	h := newHarness(t, map[string][]byte{"/input": bytes.Repeat([]byte("benchmark me "), 2000)})
	require.Equal(t, exitOK, h.run("b", "-block-size", "8192", "/input"))
	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	require.Len(t, lines, 1+len(kcomp.AllAlgorithms))
	require.True(t, strings.HasPrefix(lines[0], "adaptive "))
	require.True(t, strings.HasPrefix(lines[len(lines)-1], "s2 "))
}

func TestVersionAndHelp(t *testing.T) {
	h := newHarness(t, nil)
	for _, flag := range []string{"-v", "--version"} {
		require.Equal(t, exitOK, h.run(flag))
		require.Contains(t, h.stdout.String(), "kcomp "+version)
		require.Contains(t, h.stdout.String(), "Khaled Alam")
	}
	for _, flag := range []string{"-h", "--help"} {
		require.Equal(t, exitOK, h.run(flag))
		require.Contains(t, h.stderr.String(), "Usage:")
	}
}

func TestExitCodes(t *testing.T) {
	text := bytes.Repeat([]byte("some text to compress "), 3000)
	h := newHarness(t, map[string][]byte{
		"/plain":   []byte("definitely not a container"),
		"/doc.txt": text,
	})
	require.Equal(t, exitOK, h.run("c", "-s", "/doc.txt"))
	corrupt := h.read(t, "/doc.txt.kc")
	corrupt[len(corrupt)-1] ^= 0xff
	require.NoError(t, writeAll(h.fsys, "/corrupt.kc", corrupt))

	for name, tc := range map[string]struct {
		args []string
		want int
	}{
		"NoArgs":           {nil, exitUsage},
		"UnknownFlag":      {[]string{"-x"}, exitUsage},
		"BadFlagValue":     {[]string{"c", "-block-size", "many", "/doc.txt"}, exitUsage},
		"TooManyFiles":     {[]string{"c", "/a", "/b", "/c"}, exitUsage},
		"MissingInputName": {[]string{"d"}, exitUsage},
		"InvalidBlockSize": {[]string{"c", "-block-size", "1", "/doc.txt"}, exitUsage},
		"FixedWithoutAlgo": {[]string{"c", "-strategy", "fixed", "/doc.txt"}, exitUsage},
		"UnknownAlgorithm": {[]string{"c", "-algorithm", "zip", "/doc.txt"}, exitUsage},
		"UnknownStrategy":  {[]string{"c", "-strategy", "lucky", "/doc.txt"}, exitUsage},
		"MissingFile":      {[]string{"c", "/missing"}, exitIO},
		"NotAContainer":    {[]string{"d", "/plain"}, exitFormat},
		"InspectPlain":     {[]string{"i", "/plain"}, exitFormat},
		"Corrupted":        {[]string{"d", "/corrupt.kc", "/restored"}, exitCorruption},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, h.run(tc.args...))
		})
	}
	require.False(t, h.exists("/restored"))
	require.False(t, h.exists("/plain.out"))
}

func TestFailureIsLogged(t *testing.T) {
	h := newHarness(t, map[string][]byte{"/plain": []byte("nope")})
	require.Equal(t, exitFormat, h.run("d", "-s", "/plain"))
	require.Contains(t, h.stderr.String(), "kcomp d failed")
}

func TestFormatSize(t *testing.T) {
	for bytes, want := range map[int64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.00 KB",
		1536:        "1.50 KB",
		5 << 20:     "5.00 MB",
		3 << 30:     "3.00 GB",
		1<<30 - 1:   "1024.00 MB",
		1<<20 + 512: "1.00 MB",
	} {
		require.Equal(t, want, formatSize(bytes))
	}
}

func writeAll(fsys *kcomp.MemFS, name string, data []byte) error {
	f, err := fsys.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Close()
}
