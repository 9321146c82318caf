// Package script builds the narration prompt and parses the dialogue
// returned by the script-generation model.
package script

import (
	"fmt"
	"strings"

	"github.com/docucast/api/internal/model"
)

const speakerPrefix = "Speaker "

// BuildPrompt returns the instruction sent to the script-writing model
// together with the document. The model must answer with nothing but
// "Speaker A:"/"Speaker B:" dialogue lines.
func BuildPrompt(documentName, language string) string {
	var b strings.Builder

	b.WriteString("You are a podcast script writer. Attached is a document")
	if documentName != "" {
		fmt.Fprintf(&b, " (file name: %s)", documentName)
	}
	b.WriteString(". Read it and convert its content into a conversational podcast script between two distinct speakers: \"Speaker A\" and \"Speaker B\".\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString("1. Create a natural-sounding conversation where the speakers discuss the main points and key information from the document.\n")
	b.WriteString("2. Generally alternate between Speaker A and Speaker B, but a speaker may take two consecutive turns occasionally if it improves the flow.\n")
	b.WriteString("3. Keep the tone informative yet engaging, suitable for a podcast of roughly 3-5 minutes.\n")
	b.WriteString("4. Aim for speaking turns of around 150-200 characters, with occasional longer contributions for complex points.\n")
	if language != "" && language != string(model.LanguageEN) {
		fmt.Fprintf(&b, "5. Write the entire conversation in the language with ISO code %q.\n", language)
	}
	b.WriteString("\nCrucially, format the output ONLY as follows: each line must start with either \"Speaker A:\" or \"Speaker B:\", followed by that speaker's dialogue. ")
	b.WriteString("Do not include any introductory text, concluding remarks, titles, or anything else outside of this strict format.\n")

	return b.String()
}

// Parse converts raw model output into ordered dialogue segments. Lines not
// matching the "Speaker X:" format are dropped; speaker codes are normalized
// to upper case.
func Parse(raw string) []model.ScriptSegment {
	var segments []model.ScriptSegment

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, speakerPrefix) {
			continue
		}

		rest := line[len(speakerPrefix):]
		code, text, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}

		code = strings.ToUpper(strings.TrimSpace(code))
		text = strings.TrimSpace(text)
		if len(code) != 1 || code < "A" || code > "Z" || text == "" {
			continue
		}

		segments = append(segments, model.ScriptSegment{
			Speaker: code,
			Text:    text,
		})
	}

	return segments
}

// Render flattens segments back into the canonical line format. Used for
// logging and for exposing the stored script.
func Render(segments []model.ScriptSegment) string {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "Speaker %s: %s\n", seg.Speaker, seg.Text)
	}
	return b.String()
}
