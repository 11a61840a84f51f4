package revision_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"flowrunner/internal/flow"
	"flowrunner/internal/revision"
)

const sampleJSON = `{
  "Revision": 7,
  "MaxNodes": 10,
  "Variables": {"ffmpeg": "/usr/bin/ffmpeg"},
  "PluginSettings": {"VideoNodes": "{\"HardwareEncoding\":true}"},
  "Flows": [
    {"Uid": "6f1f7b7e-0000-4000-8000-000000000001", "Name": "Movies", "Enabled": true, "Type": 0,
     "Parts": [{"Uid": "6f1f7b7e-0000-4000-8000-0000000000a1", "FlowElementUid": "core.InputFile", "Inputs": 0, "Outputs": 1}]},
    {"Uid": "6f1f7b7e-0000-4000-8000-000000000002", "Name": "Disabled failure", "Enabled": false, "Type": 1, "Default": true},
    {"Uid": "6f1f7b7e-0000-4000-8000-000000000003", "Name": "On failure", "Enabled": true, "Type": 1, "Default": true}
  ],
  "Libraries": [
    {"Uid": "6f1f7b7e-0000-4000-8000-0000000000b1", "Name": "Movies", "Path": "/media/movies", "Enabled": true,
     "Flow": {"Uid": "6f1f7b7e-0000-4000-8000-000000000001", "Name": "Movies"}}
  ]
}`

func TestParseAndLookups(t *testing.T) {
	rev, err := revision.Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rev.Revision != 7 || len(rev.Flows) != 3 || len(rev.Libraries) != 1 {
		t.Fatalf("unexpected revision %+v", rev)
	}
	movies, ok := rev.FlowByID(uuid.MustParse("6f1f7b7e-0000-4000-8000-000000000001"))
	if !ok || movies.Name != "Movies" || movies.Type != flow.TypeStandard {
		t.Fatalf("unexpected flow %+v", movies)
	}
	lib, ok := rev.LibraryByID(uuid.MustParse("6f1f7b7e-0000-4000-8000-0000000000b1"))
	if !ok || lib.Flow == nil || lib.Flow.UID != movies.UID {
		t.Fatalf("unexpected library %+v", lib)
	}
	failure, ok := rev.DefaultFailureFlow()
	if !ok || failure.Name != "On failure" {
		t.Fatalf("expected enabled default failure flow, got %+v", failure)
	}
	if _, ok := rev.FlowByID(uuid.New()); ok {
		t.Fatal("expected missing flow")
	}
	if v, ok := rev.PluginSetting("VideoNodes"); !ok || !strings.Contains(v, "HardwareEncoding") {
		t.Fatalf("unexpected plugin setting %q", v)
	}
}

func TestStepCeilingFloor(t *testing.T) {
	tests := []struct{ configured, want int }{
		{0, 25},
		{10, 25},
		{25, 25},
		{40, 40},
	}
	for _, tt := range tests {
		if got := revision.StepCeiling(tt.configured); got != tt.want {
			t.Fatalf("StepCeiling(%d) = %d, want %d", tt.configured, got, tt.want)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plain := `{"Revision": 3, "Name": "ünïcödé"}`
	cipherText, err := revision.Encrypt(plain, "secret-key")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(cipherText, "Revision") {
		t.Fatal("ciphertext leaks plaintext")
	}
	got, err := revision.Decrypt(cipherText, "secret-key")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plain {
		t.Fatalf("round trip mismatch: %q", got)
	}
	if _, err := revision.Decrypt("short", "secret-key"); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}

func TestLoadEncryptedAndPlain(t *testing.T) {
	dir := t.TempDir()

	plainPath := filepath.Join(dir, "plain.json")
	if err := os.WriteFile(plainPath, []byte(sampleJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	rev, err := revision.Load(plainPath, revision.NoEncryptKey)
	if err != nil || rev.Revision != 7 {
		t.Fatalf("plain load: %v %+v", err, rev)
	}

	encrypted, err := revision.Encrypt(sampleJSON, "k3y")
	if err != nil {
		t.Fatal(err)
	}
	// Transports sometimes turn '+' into ' '.
	encrypted = strings.ReplaceAll(encrypted, "+", " ")
	encPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(encPath, []byte(encrypted+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rev, err = revision.Load(encPath, "k3y")
	if err != nil {
		t.Fatalf("encrypted load: %v", err)
	}
	if len(rev.Flows) != 3 {
		t.Fatalf("unexpected flows %d", len(rev.Flows))
	}

	if _, err := revision.Load(encPath, ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}
