package procfs

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"[heap]", "", false},
		{"[stack]", "", false},
		{"/bin/bash.#prelink#.12345", "/bin/bash", true},
		{"/usr/lib/libfoo.so (deleted)", "", false},
		{"/usr/bin/true", "/usr/bin/true", true},
	}
	for _, c := range cases {
		got, ok := Sanitize(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.want, got, c.in)
		}
	}
}

func TestPrefixFilterDefaults(t *testing.T) {
	exe := ParsePrefixFilter("!/usr/sbin/;!/usr/local/sbin/;/usr/;!/")
	assert.True(t, exe.Accept("/usr/bin/vim"))
	assert.False(t, exe.Accept("/usr/sbin/cron"))
	assert.False(t, exe.Accept("/home/user/bin/tool"), "default exeprefix rejects everything outside /usr")

	mp := ParsePrefixFilter("/usr/;/lib;/var/cache/;!/")
	assert.True(t, mp.Accept("/usr/lib/libc.so"))
	assert.True(t, mp.Accept("/lib/ld-linux.so"))
	assert.False(t, mp.Accept("/home/user/data.bin"))
}

func TestPrefixFilterNoMatchAccepts(t *testing.T) {
	f := ParsePrefixFilter("/opt/")
	assert.True(t, f.Accept("/usr/bin/anything"), "no matching rule defaults to accept")
}

// writeFakeProc builds a minimal synthetic /proc tree under a temp
// dir so ForEachProcess/ReadMaps/GetMemStat can be exercised without
// touching the real kernel process table.
func writeFakeProc(t *testing.T, pid int, exeTarget, mapsBody, statLine, cmdline string) string {
	t.Helper()
	root := t.TempDir()
	pidDir := filepath.Join(root, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(pidDir, 0o755))
	if exeTarget != "" {
		require.NoError(t, os.Symlink(exeTarget, filepath.Join(pidDir, "exe")))
	}
	if mapsBody != "" {
		require.NoError(t, os.WriteFile(filepath.Join(pidDir, "maps"), []byte(mapsBody), 0o644))
	}
	if statLine != "" {
		require.NoError(t, os.WriteFile(filepath.Join(pidDir, "stat"), []byte(statLine), 0o644))
	}
	if cmdline != "" {
		require.NoError(t, os.WriteFile(filepath.Join(pidDir, "cmdline"), []byte(cmdline), 0o644))
	}
	return root
}

func TestForEachProcessVisitsAndFilters(t *testing.T) {
	root := writeFakeProc(t, 100, "/usr/bin/realapp", "", "", "")
	// second pid under /tmp should be excluded by the default exeprefix
	pidDir2 := filepath.Join(root, "200")
	require.NoError(t, os.MkdirAll(pidDir2, 0o755))
	require.NoError(t, os.Symlink("/tmp/scratch/app", filepath.Join(pidDir2, "exe")))

	src := New(root, 999, ParsePrefixFilter("!/usr/sbin/;!/usr/local/sbin/;/usr/;!/"), ParsePrefixFilter(""))

	var seen []string
	require.NoError(t, src.ForEachProcess(func(pid int, exePath string) {
		seen = append(seen, exePath)
	}))
	assert.Equal(t, []string{"/usr/bin/realapp"}, seen)
}

func TestResolveExePathFallsBackToCmdline(t *testing.T) {
	root := writeFakeProc(t, 300, "", "", "", "/opt/app/bin\x00--flag\x00")
	src := New(root, 0, ParsePrefixFilter(""), ParsePrefixFilter(""))
	path, ok := src.resolveExePath(300)
	require.True(t, ok)
	assert.Equal(t, "/opt/app/bin", path)
}

func TestGetParent(t *testing.T) {
	root := writeFakeProc(t, 42, "", "", "42 (weird ) name) S 7 42 42 0 -1 4194304 100 0 0 0\n", "")
	src := New(root, 0, ParsePrefixFilter(""), ParsePrefixFilter(""))
	parent, ok := src.GetParent(42)
	require.True(t, ok)
	assert.Equal(t, 7, parent)
}

func TestGetParentMissing(t *testing.T) {
	src := New(t.TempDir(), 0, ParsePrefixFilter(""), ParsePrefixFilter(""))
	_, ok := src.GetParent(999999)
	assert.False(t, ok)
}

func TestReadMaps(t *testing.T) {
	body := "00400000-00401000 r-xp 00000000 08:01 1 /usr/bin/realapp\n" +
		"00600000-00700000 rw-p 00000000 00:00 0 \n" +
		"7f0000000000-7f0000100000 r--p 00000000 08:01 2 /usr/lib/libfoo.so\n" +
		"7f0000100000-7f0000200000 r--p 00000000 08:01 3 [heap]\n"
	root := writeFakeProc(t, 10, "", body, "", "")
	src := New(root, 0, ParsePrefixFilter(""), ParsePrefixFilter("/usr/;!/"))
	total, regions, ok := src.ReadMaps(10)
	require.True(t, ok)
	assert.Greater(t, total, int64(0))
	require.Len(t, regions, 2)
	assert.Equal(t, "/usr/bin/realapp", regions[0].Path)
	assert.Equal(t, "/usr/lib/libfoo.so", regions[1].Path)
}

func TestReadMapsMissingIsSoftMiss(t *testing.T) {
	src := New(t.TempDir(), 0, ParsePrefixFilter(""), ParsePrefixFilter(""))
	total, regions, ok := src.ReadMaps(777)
	assert.False(t, ok)
	assert.Zero(t, total)
	assert.Nil(t, regions)
}

func TestGetMemStat(t *testing.T) {
	root := t.TempDir()
	meminfo := "MemTotal:       16000000 kB\nMemFree:         2000000 kB\nBuffers:          100000 kB\nCached:          4000000 kB\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "meminfo"), []byte(meminfo), 0o644))
	vmstat := "pgpgin 12345\npgpgout 6789\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "vmstat"), []byte(vmstat), 0o644))

	src := New(root, 0, ParsePrefixFilter(""), ParsePrefixFilter(""))
	stat, err := src.GetMemStat()
	require.NoError(t, err)
	assert.Equal(t, int64(16000000), stat.TotalKB)
	assert.Equal(t, int64(2000000), stat.FreeKB)
	assert.Equal(t, int64(100000), stat.BuffersKB)
	assert.Equal(t, int64(4000000), stat.CachedKB)
	assert.Equal(t, int64(12345), stat.PageIn)
	assert.Equal(t, int64(6789), stat.PageOut)
}
