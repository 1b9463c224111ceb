package answer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/newsrag/internal/retrieval"
)

const promptHeader = `Please provide an answer based solely on the provided sources. Keep your answer concise and accurate.
Cite the source title of every fact you use.
If the question cannot be answered from the sources, reply with exactly: ` + NoInformationText

// BuildPrompt renders the grounded prompt. Sources keep the retriever's
// ranking and each one names its article.
func BuildPrompt(query string, candidates []retrieval.Candidate) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n------\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "Source %d: %s (%s)\n", i+1, c.Chunk.Title, c.Chunk.URL)
		b.WriteString(strings.TrimSpace(c.Chunk.Text))
		b.WriteString("\n\n")
	}
	b.WriteString("------\n")
	b.WriteString("Query: ")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\nAnswer:")
	return b.String()
}

// Fingerprint is the cache key of a (model, prompt) pair.
func Fingerprint(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
