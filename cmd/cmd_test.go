package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cardledger/cardintake/internal/capture"
	"github.com/cardledger/cardintake/internal/config"
	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/storage"
	"github.com/cardledger/cardintake/internal/teach"
)

const templatesYAML = `templates:
  - set_id: topps-chrome-2023
    layout_class: base
    regions:
      front:
        - side: front
          x: 0.1
          y: 0.8
          width: 0.2
          height: 0.1
          field: cardNumber
          value: "150"
        - side: front
          x: 0.5
          y: 0.5
          width: 0.001
          height: 0.1
          field: playerName
          value: dropped
`

// testEnv points the config at a temp home and data dir.
func testEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	dataDir := filepath.Join(home, "data")
	t.Setenv("HOME", home)
	t.Setenv("CARDINTAKE_DATA_DIR", dataDir)
	return dataDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Logging{Level: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", "card", "c1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info to be filtered at warn level, got %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"card":"c1"`) {
		t.Errorf("Expected JSON output for a non-terminal writer, got %s", out)
	}

	buf.Reset()
	newLogger(&buf, config.Logging{Level: "debug", Format: "text"}).Debug("detail")
	if !strings.Contains(buf.String(), "msg=detail") {
		t.Errorf("Expected text output, got %s", buf.String())
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"Set", "Count"}, [][]string{{"Topps Chrome", "12"}, {"Bowman"}}, 1)

	out := buf.String()
	for _, want := range []string{"Set", "Count", "Topps Chrome", "12", "Bowman", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table to contain %q, got\n%s", want, out)
		}
	}
}

func TestImportTemplates(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	region := teach.Region{Side: models.SideBack, X: 0.1, Y: 0.1, Width: 0.3, Height: 0.1, Field: models.FieldYear, Value: "2023"}
	templates := []teach.Template{
		{Key: teach.Key{SetID: " bowman-2022 "}, Regions: teach.RegionsBySide{models.SideBack: {region}}},
		{Key: teach.Key{SetID: ""}, Regions: teach.RegionsBySide{models.SideBack: {region}}},
	}

	imported, err := importTemplates(context.Background(), db.Templates(), templates)
	if !errors.Is(err, teach.ErrMissingSetID) {
		t.Fatalf("Expected ErrMissingSetID for the second template, got %v", err)
	}
	if imported != 1 {
		t.Errorf("Expected 1 template imported before the failure, got %d", imported)
	}

	saved, err := db.Templates().List(context.Background(), "bowman-2022")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(saved) != 1 || saved[0].LayoutClass != teach.LayoutBase {
		t.Errorf("Expected one base template for bowman-2022, got %+v", saved)
	}
}

func TestTeachCommands(t *testing.T) {
	testEnv(t)
	file := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(file, []byte(templatesYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "teach", "import", file)
	if err != nil {
		t.Fatalf("teach import failed: %v", err)
	}
	if !strings.Contains(out, "Imported 1 templates") {
		t.Errorf("Expected import summary, got %s", out)
	}

	out, err = execute(t, "teach", "list")
	if err != nil {
		t.Fatalf("teach list failed: %v", err)
	}
	if !strings.Contains(out, "topps-chrome-2023") || !strings.Contains(out, "base") {
		t.Errorf("Expected template row, got %s", out)
	}

	out, err = execute(t, "teach", "export", "--set", "topps-chrome-2023")
	if err != nil {
		t.Fatalf("teach export failed: %v", err)
	}
	if !strings.Contains(out, "set_id: topps-chrome-2023") || !strings.Contains(out, "value: \"150\"") {
		t.Errorf("Expected YAML export, got %s", out)
	}
	if strings.Contains(out, "dropped") {
		t.Errorf("Expected the undersized region to be sanitized away, got %s", out)
	}

	if _, err := execute(t, "teach", "clear", "--set", "topps-chrome-2023"); err != nil {
		t.Fatalf("teach clear failed: %v", err)
	}
	out, err = execute(t, "teach", "list")
	if err != nil {
		t.Fatalf("teach list failed: %v", err)
	}
	if !strings.Contains(out, "No teach templates saved") {
		t.Errorf("Expected empty list after clear, got %s", out)
	}
}

func TestQueueList(t *testing.T) {
	dataDir := testEnv(t)

	db, err := storage.Open(dataDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	draft := &models.CardDraft{}
	draft.Required.Category = models.CategorySport
	draft.Set(models.FieldPlayerName, "Shohei Ohtani")
	draft.Set(models.FieldYear, "2023")
	if err := db.Queue().Enqueue(context.Background(), queueItem("card-1", draft)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	db.Close()

	out, err := execute(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	if !strings.Contains(out, "card-1") || !strings.Contains(out, "Shohei Ohtani") {
		t.Errorf("Expected queued card row, got %s", out)
	}

	if _, err := execute(t, "queue", "remove", "card-1"); err != nil {
		t.Fatalf("queue remove failed: %v", err)
	}
	out, err = execute(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Errorf("Expected empty queue, got %s", out)
	}
}

func TestConfigInit(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "cardintake.toml")

	out, err := execute(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("Expected written path in output, got %s", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected sample config on disk: %v", err)
	}

	if _, err := execute(t, "config", "validate", "--config", path); err != nil {
		t.Errorf("Expected sample config to validate, got %v", err)
	}
	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Error("Expected second init to refuse overwriting")
	}
}

func TestInvalidLogFormat(t *testing.T) {
	testEnv(t)
	if _, err := execute(t, "config", "validate", "--log-format", "xml"); err == nil {
		t.Error("Expected error for unsupported log format")
	}
}

func queueItem(cardID string, draft *models.CardDraft) capture.QueueItem {
	return capture.QueueItem{CardID: cardID, Draft: draft, EnqueuedAt: time.Now()}
}
