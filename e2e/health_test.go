package e2e

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta, http.MethodGet, "/health", nil, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "ok" {
		t.Errorf("expected ok, got %v", result["status"])
	}
}

func TestVoices_ListsSortedCodes(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta, http.MethodGet, "/api/voices", nil, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	voices, _ := result["voices"].([]interface{})
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %v", result)
	}
	first, _ := voices[0].(map[string]interface{})
	if first["code"] != "a" || first["sampleRef"] != "philip.wav" {
		t.Errorf("unexpected first voice: %v", first)
	}
}

func TestVoices_RequiresAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta, http.MethodGet, "/api/voices", nil, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}
