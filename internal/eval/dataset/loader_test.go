package dataset

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/parquet-go/parquet-go"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/remote"
)

const sampleJSONL = `{"id":"c1","category":"sport","draft":[{"field":"year","value":"2023"},{"field":"manufacturer","value":"Topps"},{"field":"sport","value":"Baseball"}],"readings":[{"field":"playerName","value":"Shohei Ohtani","confidence":0.93},{"field":"setName","value":"Topps Chrome","confidence":0.88}],"sets":[{"id":"s1","name":"Topps Chrome"}],"parallels":[{"label":"Refractor","setIds":["s1"]}],"truth":[{"field":"playerName","value":"Shohei Ohtani"},{"field":"setName","value":"Topps Chrome"}]}

{"category":"tcg","touched":["cardName"],"readings":[{"field":"cardName","value":"Charizard","confidence":0.4}]}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	path := "./test.parquet"
	loader := NewLoader(path)

	if loader.datasetPath != path {
		t.Errorf("Expected path %s, got %s", path, loader.datasetPath)
	}
}

func TestLoadJSONL(t *testing.T) {
	samples, err := NewLoader(writeFile(t, "samples.jsonl", sampleJSONL)).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[0].ID != "c1" {
		t.Errorf("Expected id c1, got %q", samples[0].ID)
	}
	// blank line 2 is skipped but still counted
	if samples[1].ID != "line-3" {
		t.Errorf("Expected generated id line-3, got %q", samples[1].ID)
	}
}

func TestLoadSampleLimit(t *testing.T) {
	samples, err := NewLoader(writeFile(t, "samples.jsonl", sampleJSONL)).LoadSample(1)
	if err != nil {
		t.Fatalf("LoadSample failed: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("Expected 1 sample, got %d", len(samples))
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	_, err := NewLoader(writeFile(t, "bad.jsonl", "{\"id\":\"ok\"}\n{nope\n")).Load()
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected parse error naming line 2, got %v", err)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := NewLoader("samples.csv").Load(); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestLoadWithFilter(t *testing.T) {
	samples, err := NewLoader(writeFile(t, "samples.jsonl", sampleJSONL)).LoadWithFilter(func(s *Sample) bool {
		return s.Category == "tcg"
	})
	if err != nil {
		t.Fatalf("LoadWithFilter failed: %v", err)
	}
	if len(samples) != 1 || samples[0].Category != "tcg" {
		t.Errorf("Expected only the tcg sample, got %+v", samples)
	}
}

func TestLoadParquet(t *testing.T) {
	rows := []Sample{
		{
			ID:       "p1",
			Category: "sport",
			Readings: []Reading{{Field: "setName", Value: "Prizm", Confidence: 0.9}},
			Sets:     []PoolSet{{ID: "s9", Name: "Prizm"}},
			Truth:    []FieldValue{{Field: "setName", Value: "Prizm"}},
		},
		{ID: "p2", Category: "tcg"},
		{ID: "p3", Category: "sport"},
	}
	path := filepath.Join(t.TempDir(), "samples.parquet")
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("Failed to write parquet: %v", err)
	}

	samples, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(samples))
	}
	if len(samples[0].Readings) != 1 || samples[0].Readings[0].Value != "Prizm" {
		t.Errorf("Expected Prizm reading, got %+v", samples[0].Readings)
	}

	limited, err := NewLoader(path).LoadSample(2)
	if err != nil {
		t.Fatalf("LoadSample failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 samples, got %d", len(limited))
	}
}

func TestSampleHelpers(t *testing.T) {
	samples, err := NewLoader(writeFile(t, "samples.jsonl", sampleJSONL)).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s := samples[0]

	draft := s.NewDraft()
	if draft.Required.Year != "2023" || draft.Required.Manufacturer != "Topps" {
		t.Errorf("Expected scope fields on draft, got %+v", draft.Required)
	}

	fields, conf := s.OCR()
	if fields[models.FieldPlayerName] != "Shohei Ohtani" {
		t.Errorf("Expected player reading, got %q", fields[models.FieldPlayerName])
	}
	if conf[models.FieldSetName] != 0.88 {
		t.Errorf("Expected confidence 0.88, got %v", conf[models.FieldSetName])
	}

	p := s.Pool()
	if p == nil {
		t.Fatal("Expected a pool")
	}
	if !p.Scope.Complete() {
		t.Errorf("Expected complete scope, got %+v", p.Scope)
	}
	if got := p.Labels(models.FieldParallel); len(got) != 1 || got[0] != "Refractor" {
		t.Errorf("Expected [Refractor], got %v", got)
	}

	if s.Expected(models.FieldSetName) != "Topps Chrome" {
		t.Errorf("Expected truth Topps Chrome, got %q", s.Expected(models.FieldSetName))
	}
	if s.HasTruth(models.FieldParallel) {
		t.Error("Expected no parallel truth")
	}

	tcg := samples[1]
	if tcg.NewDraft().Required.Category != models.CategoryTCG {
		t.Error("Expected tcg draft")
	}
	if !tcg.TouchedFields()[models.FieldCardName] {
		t.Error("Expected cardName touched")
	}
	if tcg.Pool() != nil {
		t.Error("Expected nil pool without sets")
	}
}

func TestDownloaderCachesFile(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	const url = "https://data.test/labels/intake.jsonl"
	httpmock.RegisterResponder(http.MethodGet, url, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer secret" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, "no token"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, sampleJSONL), nil
	})

	d := NewDownloader(DownloadConfig{CacheDir: t.TempDir(), Token: "secret", Client: client})
	path, err := d.Download(context.Background(), url)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if filepath.Ext(path) != ".jsonl" {
		t.Errorf("Expected cached file to keep its extension, got %s", path)
	}

	if _, err := d.Download(context.Background(), url); err != nil {
		t.Fatalf("Second download failed: %v", err)
	}
	if calls := httpmock.GetTotalCallCount(); calls != 1 {
		t.Errorf("Expected 1 request, got %d", calls)
	}

	samples, err := NewLoader(path).Load()
	if err != nil || len(samples) != 2 {
		t.Errorf("Expected 2 samples from cache, got %d (%v)", len(samples), err)
	}
}

func TestDownloaderReportsStatus(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	const url = "https://data.test/missing.parquet"
	httpmock.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(http.StatusNotFound, "gone"))

	d := NewDownloader(DownloadConfig{CacheDir: t.TempDir(), Client: client})
	_, err := d.Download(context.Background(), url)
	if !errors.Is(err, remote.ErrTransport) {
		t.Fatalf("Expected transport error, got %v", err)
	}
	if remote.StatusCode(err) != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", remote.StatusCode(err))
	}
	cached, _ := d.GetCachePath(url)
	if _, statErr := os.Stat(cached); !os.IsNotExist(statErr) {
		t.Errorf("Expected nothing cached, stat returned %v", statErr)
	}
}

func TestLoadOrDownloadLocalPath(t *testing.T) {
	loader, err := LoadOrDownload(context.Background(), "local/samples.jsonl", DownloadConfig{})
	if err != nil {
		t.Fatalf("LoadOrDownload failed: %v", err)
	}
	if loader.datasetPath != "local/samples.jsonl" {
		t.Errorf("Expected local path, got %s", loader.datasetPath)
	}
}
