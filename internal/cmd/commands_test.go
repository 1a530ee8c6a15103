package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gocrack/internal/server"
	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/coordinator"
	"github.com/3leaps/gocrack/pkg/digest"
	"github.com/3leaps/gocrack/pkg/keyspace"
	"github.com/3leaps/gocrack/pkg/output"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

func isolateHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func startCoordinator(t *testing.T) string {
	t.Helper()
	c, err := coordinator.New(coordinator.Options{
		Encoder:      keyspace.Example{},
		KeyspaceName: keyspace.NameExample,
		Slices:       3,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(server.New("127.0.0.1", 0, server.WithCoordinator(c)).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestKeyspacePlanCommand(t *testing.T) {
	isolateHome(t)

	out, err := run(t, "keyspace", "plan", "--keyspace", "example", "--slices", "3", "-o", "json")
	require.NoError(t, err)

	var slices []output.SliceRecord
	require.NoError(t, json.Unmarshal([]byte(out), &slices))
	require.Len(t, slices, 3)
	assert.Equal(t, "EX-0", slices[0].StartStr)
	assert.Equal(t, "EX-9", slices[2].EndStr)

	var total int64
	for _, s := range slices {
		total += s.Size
	}
	assert.Equal(t, int64(10), total)
}

func TestKeyspacePlanSkipsEmptySlices(t *testing.T) {
	slices, err := planSlicesFor(keyspace.Example{}, 20)
	require.NoError(t, err)
	assert.Len(t, slices, 10)
	for i, s := range slices {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, int64(1), s.Size)
	}
}

func TestHashCommand(t *testing.T) {
	isolateHome(t)
	algo, err := digest.Lookup(digest.SHA1)
	require.NoError(t, err)

	out, err := run(t, "hash", "-a", "sha1", "EX-1", "EX-2")
	require.NoError(t, err)
	assert.Equal(t, algo.Sum("EX-1")+"\n"+algo.Sum("EX-2")+"\n", out)

	_, err = run(t, "hash", "-a", "crc32", "x")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitInvalidArgument, ee.Code)
}

func TestSubmitStatusAndTasks(t *testing.T) {
	isolateHome(t)
	url := startCoordinator(t)

	algo, err := digest.Lookup(digest.MD5)
	require.NoError(t, err)
	target := algo.Sum("EX-4")

	file := filepath.Join(t.TempDir(), "batch.txt")
	require.NoError(t, os.WriteFile(file, []byte(target+"\n"), 0o600))

	_, err = run(t, "submit", file, "-c", url)
	require.NoError(t, err)

	out, err := run(t, "status", "-c", url, "-o", "json")
	require.NoError(t, err)
	var snap api.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Hashes, 1)
	assert.Equal(t, target, snap.Hashes[0].HashValue)
	assert.Equal(t, 3, snap.Counts[taskstore.StatusPending])

	out, err = run(t, "tasks", "-c", url, "-o", "json")
	require.NoError(t, err)
	var tasks []taskstore.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 3)
	for i, task := range tasks {
		assert.Equal(t, i, task.SliceIndex)
		assert.Equal(t, taskstore.StatusPending, task.Status)
	}

	out, err = run(t, "status", "-c", url, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Hashes:")
	assert.Contains(t, out, target)
}

func TestSubmitCoordinatorDown(t *testing.T) {
	isolateHome(t)
	file := filepath.Join(t.TempDir(), "batch.txt")
	require.NoError(t, os.WriteFile(file, []byte("5f4dcc3b5aa765d61d8327deb882cf99\n"), 0o600))

	_, err := run(t, "submit", file, "-c", "http://127.0.0.1:1")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitServiceUnavailable, ee.Code)
}

func TestUploadName(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"hashes.txt", "hashes.txt"},
		{"/data/batch-01.TXT", "batch-01.TXT"},
		{"hashes.lst", "hashes.txt"},
		{"-", "hashes.txt"},
		{"batches/**/*.txt", "hashes.txt"},
		{"s3://bucket/dir/today.txt", "today.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, uploadName(tt.src))
		})
	}
}

func TestFilterTasks(t *testing.T) {
	now := time.Now()
	all := map[string]taskstore.Task{
		"b_1": {ID: "b_1", HashValue: "b", SliceIndex: 1, Status: taskstore.StatusPending, CreatedAt: now},
		"b_0": {ID: "b_0", HashValue: "b", SliceIndex: 0, Status: taskstore.StatusAssigned, CreatedAt: now},
		"a_0": {ID: "a_0", HashValue: "a", SliceIndex: 0, Status: taskstore.StatusPending, CreatedAt: now.Add(time.Second)},
	}

	ids := func(tasks []taskstore.Task) []string {
		var out []string
		for _, t := range tasks {
			out = append(out, t.ID)
		}
		return out
	}

	assert.Equal(t, []string{"a_0", "b_0", "b_1"}, ids(filterTasks(all, "", "")))
	assert.Equal(t, []string{"a_0", "b_1"}, ids(filterTasks(all, taskstore.StatusPending, "")))
	assert.Equal(t, []string{"b_0", "b_1"}, ids(filterTasks(all, "", "b")))
	assert.Empty(t, filterTasks(all, taskstore.StatusCompleted, ""))
}

func TestTasksRejectsUnknownStatus(t *testing.T) {
	isolateHome(t)
	defer func() { tasksStatusFilter = "" }()

	_, err := run(t, "tasks", "--status", "bogus", "-c", "http://127.0.0.1:1")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitInvalidArgument, ee.Code)
}

func TestInvalidOutputFormat(t *testing.T) {
	isolateHome(t)
	defer func() { statusFormat = FormatTable }()

	_, err := run(t, "minions", "-o", "xml", "-c", "http://127.0.0.1:1")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitInvalidArgument, ee.Code)
}
