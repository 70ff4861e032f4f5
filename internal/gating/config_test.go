package gating

import (
	"errors"
	"testing"
)

// testTableYAML — реалистичная gating-таблица для тестов пакета.
const testTableYAML = `
version: "1"
flags:
  - name: SOURCE_CHANGED
    paths: ["src/**", "go.mod"]
  - name: TESTING_CHANGED
    paths: ["tests/**", "testdata/**"]
jobs:
  - name: dev-tests
    uses: "ci/workflows/run-tests@v3"
    if:
      flag: SOURCE_CHANGED
    params:
      suite: dev
  - name: live-service-tests
    uses: "ci/workflows/run-live-tests@v3"
    if:
      any:
        - flag: SOURCE_CHANGED
        - flag: TESTING_CHANGED
    secrets: [DANDI_API_KEY]
  - name: check-links
    uses: "ci/workflows/check-links@v1"
    best_effort: true
  - name: publish-preview
    uses: "ci/workflows/publish@v2"
    needs: [dev-tests]
schedules:
  - name: nightly-full
    cron: "0 4 * * *"
    ref: main
`

func TestParse_ValidTable(t *testing.T) {
	table, err := Parse([]byte(testTableYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(table.Flags) != 2 {
		t.Errorf("expected 2 flags, got %d", len(table.Flags))
	}
	if len(table.Jobs) != 4 {
		t.Errorf("expected 4 jobs, got %d", len(table.Jobs))
	}

	dev := table.Job("dev-tests")
	if dev == nil {
		t.Fatal("dev-tests not found")
	}
	if dev.Guard == nil {
		t.Error("dev-tests should have a guard")
	}
	if dev.Params["suite"] != "dev" {
		t.Errorf("expected suite=dev, got %v", dev.Params["suite"])
	}

	live := table.Job("live-service-tests")
	if len(live.Secrets) != 1 || live.Secrets[0] != "DANDI_API_KEY" {
		t.Errorf("unexpected secrets: %v", live.Secrets)
	}

	// Job без guard запускается безусловно
	links := table.Job("check-links")
	if links.Guard != nil {
		t.Error("check-links should have nil guard")
	}
	if !links.GuardOrTrue().Eval(nil) {
		t.Error("absent guard must evaluate to true")
	}
	if !links.BestEffort {
		t.Error("check-links should be best_effort")
	}

	preview := table.Job("publish-preview")
	if len(preview.Needs) != 1 || preview.Needs[0] != "dev-tests" {
		t.Errorf("unexpected needs: %v", preview.Needs)
	}

	if len(table.Schedules) != 1 || table.Schedules[0].Cron != "0 4 * * *" {
		t.Errorf("unexpected schedules: %+v", table.Schedules)
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("jobs: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestParse_NoJobs(t *testing.T) {
	_, err := Parse([]byte(`flags: [{name: A, paths: ["x"]}]`))
	if !errors.Is(err, ErrNoJobs) {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}
}
