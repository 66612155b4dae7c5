package main_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func TestCLI_OfflineServer(t *testing.T) {
	tmp := t.TempDir()

	body, err := os.ReadFile(filepath.Join("testdata", "lesson.html"))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}

	// Start local HTTP server serving the fixture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(body)
	}))
	defer srv.Close()

	// A small catalog in the tmp dir so nothing is downloaded
	hsk := filepath.Join(tmp, "hsk.json")
	if err := os.WriteFile(hsk, []byte(`{"中文": 1, "视频": 3}`), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	dbPath := filepath.Join(tmp, "hanzivid.db")
	bin := filepath.Join(tmp, "hanzivid.bin")

	// Build the CLI binary (use full import path so it builds correctly regardless of the current working directory)
	build := exec.Command("go", "build", "-o", bin, "github.com/japaniel/hanzivid/cmd/hanzivid")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		t.Fatalf("failed to build CLI: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	cli := func(args ...string) string {
		t.Helper()
		cmd := exec.CommandContext(ctx, bin, append([]string{"-db", dbPath, "-offline"}, args...)...)
		cmd.Dir = tmp
		cmd.Env = append(os.Environ(),
			"HANZIVID_CONFIG=",
			"HANZIVID_HSK_PATH="+hsk,
			"HANZIVID_CEDICT_PATH="+filepath.Join(tmp, "missing.u8"),
			"HANZIVID_TRANSCRIPT_CACHE="+filepath.Join(tmp, "cache.db"),
		)
		out, err := cmd.CombinedOutput()
		if ctx.Err() == context.DeadlineExceeded {
			t.Fatalf("cli timed out, output:\n%s", out)
		}
		if err != nil {
			t.Fatalf("cli %v failed: %v\noutput:\n%s", args, err, out)
		}
		return string(out)
	}

	out := cli("add", srv.URL+"/lessons/1")
	if !strings.Contains(out, "added") || !strings.Contains(out, "我爱学中文") {
		t.Fatalf("unexpected CLI output; expected the page title, got:\n%s", out)
	}
	if out := cli("add", srv.URL+"/lessons/1"); !strings.Contains(out, "exists") {
		t.Fatalf("re-adding should report the existing video, got:\n%s", out)
	}
	if out := cli("videos", "-status", "pending"); !strings.Contains(out, "pending") {
		t.Fatalf("expected a pending video, got:\n%s", out)
	}

	// Verify DB contains exactly one video row
	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer dbConn.Close()

	var cnt int
	if err := dbConn.QueryRow("SELECT COUNT(*) FROM videos").Scan(&cnt); err != nil {
		t.Fatalf("db query failed: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected one video in DB, found %d", cnt)
	}
}
