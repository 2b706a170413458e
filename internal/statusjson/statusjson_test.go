package statusjson

import (
	"encoding/json"
	"testing"
)

func TestBuildPlainDescription(t *testing.T) {
	out := Build(Params{
		ProtocolVersion: 765,
		VersionName:     "1.20.4",
		MaxPlayers:      20,
		OnlinePlayers:   0,
		Description:     "Survival server",
	})

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	desc := doc["description"].(map[string]any)
	if desc["text"] != "Survival server" {
		t.Fatalf("unexpected description: %v", desc)
	}
}

func TestBuildColoredDescriptionSplitsComponents(t *testing.T) {
	out := Build(Params{
		VersionName: "1.20.4",
		Description: "§aAwake§r and ready",
	})

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	desc := doc["description"].(map[string]any)
	if desc["text"] != "Awake" || desc["color"] != "green" {
		t.Fatalf("unexpected first component: %v", desc)
	}
	extra, ok := desc["extra"].([]any)
	if !ok || len(extra) != 1 {
		t.Fatalf("expected one trailing component, got %v", desc["extra"])
	}
	tail := extra[0].(map[string]any)
	if tail["text"] != " and ready" {
		t.Fatalf("unexpected tail text: %v", tail)
	}
}

func TestBuildFaviconOmittedWhenEmpty(t *testing.T) {
	out := Build(Params{VersionName: "1.20.4", Description: "hi"})
	var doc map[string]any
	json.Unmarshal(out, &doc)
	if _, ok := doc["favicon"]; ok {
		t.Fatal("expected favicon to be omitted when empty")
	}
}
