package script

import (
	"strings"
	"testing"

	"github.com/docucast/api/internal/model"
)

func TestParse_Dialogue(t *testing.T) {
	raw := `Speaker A: Welcome to the show!
Speaker B: Thanks! Today we're covering the quarterly report.
Speaker B: And it has some surprises.
Speaker A: Let's dive in.`

	segments := Parse(raw)
	if len(segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(segments))
	}

	want := []model.ScriptSegment{
		{Speaker: "A", Text: "Welcome to the show!"},
		{Speaker: "B", Text: "Thanks! Today we're covering the quarterly report."},
		{Speaker: "B", Text: "And it has some surprises."},
		{Speaker: "A", Text: "Let's dive in."},
	}
	for i, seg := range segments {
		if seg != want[i] {
			t.Errorf("segment %d: got %+v, want %+v", i, seg, want[i])
		}
	}
}

func TestParse_DropsNonDialogueLines(t *testing.T) {
	raw := `Here is your podcast script:

Speaker A: First line.
(sound of applause)
Speaker B: Second line.

That concludes the episode.`

	segments := Parse(raw)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Speaker != "A" || segments[1].Speaker != "B" {
		t.Errorf("unexpected speakers: %+v", segments)
	}
}

func TestParse_NormalizesWhitespaceAndCase(t *testing.T) {
	raw := "  Speaker a:   hello there  \n"

	segments := Parse(raw)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Speaker != "A" {
		t.Errorf("expected speaker A, got %q", segments[0].Speaker)
	}
	if segments[0].Text != "hello there" {
		t.Errorf("expected trimmed text, got %q", segments[0].Text)
	}
}

func TestParse_Empty(t *testing.T) {
	for _, raw := range []string{"", "no dialogue here", "Speaker A:", "Speaker AB: too long"} {
		if segments := Parse(raw); len(segments) != 0 {
			t.Errorf("Parse(%q): expected no segments, got %d", raw, len(segments))
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("report.pdf", "en")

	if !strings.Contains(prompt, "report.pdf") {
		t.Error("prompt does not mention the document name")
	}
	if !strings.Contains(prompt, `"Speaker A:"`) {
		t.Error("prompt does not pin the output format")
	}
	if strings.Contains(prompt, "ISO code") {
		t.Error("English prompt should not carry a language override")
	}

	french := BuildPrompt("", "fr")
	if !strings.Contains(french, `"fr"`) {
		t.Error("non-English prompt should name the target language")
	}
}

func TestRender_RoundTrip(t *testing.T) {
	segments := []model.ScriptSegment{
		{Speaker: "A", Text: "One."},
		{Speaker: "B", Text: "Two."},
	}

	parsed := Parse(Render(segments))
	if len(parsed) != len(segments) {
		t.Fatalf("expected %d segments, got %d", len(segments), len(parsed))
	}
	for i := range segments {
		if parsed[i] != segments[i] {
			t.Errorf("segment %d changed in round trip: %+v vs %+v", i, parsed[i], segments[i])
		}
	}
}
