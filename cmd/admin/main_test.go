package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"eraforge.game/internal/persistence/savestore"
)

const configDir = "../../configs"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--configs", configDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "legacy.json")
	legacy := `{"currentEra":"paleolithic","resources":{"rawMeat":7,"sticks":3},"unlockedUpgrades":["fire"],"totalClicks":12}`
	if err := os.WriteFile(in, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "current.json")
	if _, err := run(t, "migrate", in, "--out", out); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Version     int                `json:"version"`
		Era         string             `json:"era"`
		Resources   map[string]float64 `json:"resources"`
		Upgrades    map[string]bool    `json:"upgrades"`
		Progression struct {
			TotalActions int64 `json:"total_actions"`
		} `json:"progression"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Version != 3 || doc.Era != "paleolithic" {
		t.Fatalf("header: %+v", doc)
	}
	if doc.Resources["meat"] != 7 || doc.Resources["sticks"] != 3 {
		t.Fatalf("resources: %v", doc.Resources)
	}
	if _, ok := doc.Resources["rawMeat"]; ok {
		t.Fatalf("legacy key kept: %v", doc.Resources)
	}
	if !doc.Upgrades["fireControl"] || doc.Progression.TotalActions != 12 {
		t.Fatalf("upgrades=%v progression=%+v", doc.Upgrades, doc.Progression)
	}

	if msg, err := run(t, "validate", out); err != nil || !strings.Contains(msg, "ok") {
		t.Fatalf("validate migrated: %q %v", msg, err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(p, []byte(`[1,2,3]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "validate", p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestHistoryAndRollback(t *testing.T) {
	dir := t.TempDir()
	db, err := savestore.OpenSQLite(filepath.Join(dir, "saves.sqlite"), savestore.DefaultHistory)
	if err != nil {
		t.Fatal(err)
	}
	first := []byte(`{"version":2,"era":"paleolithic","resources":{"sticks":1}}`)
	second := []byte(`{"version":2,"era":"paleolithic","resources":{"sticks":2}}`)
	for _, doc := range [][]byte{first, second} {
		if err := db.Write("main", doc); err != nil {
			t.Fatal(err)
		}
	}
	hist, err := db.History("main")
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %v %v", hist, err)
	}
	older := hist[1].ID
	db.Close()

	msg, err := run(t, "--data", dir, "--slot", "main", "history")
	if err != nil || strings.Count(msg, "\n") != 2 {
		t.Fatalf("history output %q: %v", msg, err)
	}
	if _, err := run(t, "--data", dir, "--slot", "main", "rollback", "--id", strconv.FormatInt(older, 10)); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	db, err = savestore.OpenSQLite(filepath.Join(dir, "saves.sqlite"), savestore.DefaultHistory)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	got, err := db.Read("main")
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("after rollback: %s %v", got, err)
	}
}

func TestRollbackNeedsSQLite(t *testing.T) {
	if _, err := run(t, "--backend", "file", "--data", t.TempDir(), "rollback", "--id", "1"); err == nil {
		t.Fatalf("expected error for file backend")
	}
}

func TestExportImport(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	fs, err := savestore.NewFile(filepath.Join(src, "saves"))
	if err != nil {
		t.Fatal(err)
	}
	doc := []byte(`{"version":2,"era":"paleolithic","resources":{"stones":9}}`)
	if err := fs.Write("main", doc); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(t.TempDir(), "main.save.zst")
	if _, err := run(t, "--backend", "file", "--data", src, "--slot", "main", "export", "--out", archive); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := run(t, "--backend", "file", "--data", dst, "import", archive); err != nil {
		t.Fatalf("import: %v", err)
	}
	msg, err := run(t, "--backend", "file", "--data", dst, "slots")
	if err != nil || strings.TrimSpace(msg) != "main" {
		t.Fatalf("slots: %q %v", msg, err)
	}
	out, err := savestore.NewFile(filepath.Join(dst, "saves"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := out.Read("main")
	if err != nil || !bytes.Equal(got, doc) {
		t.Fatalf("imported: %s %v", got, err)
	}
}

func TestStateCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/v1/state" {
			http.NotFound(rw, r)
			return
		}
		_, _ = rw.Write([]byte(`{"state":{"era":"bronze"}}`))
	}))
	defer srv.Close()

	msg, err := run(t, "state", "--url", srv.URL)
	if err != nil || !strings.Contains(msg, "bronze") {
		t.Fatalf("state: %q %v", msg, err)
	}
	if _, err := run(t, "save", "--url", srv.URL); err == nil {
		t.Fatalf("expected error from 404")
	}
}
