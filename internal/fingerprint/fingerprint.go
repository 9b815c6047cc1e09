// Package fingerprint derives stable question ids from question content.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/conorfennell/examprep/internal/domain"
)

// Normalize concatenates the question's graded content after cleaning each
// part. The explanation is left out so it can be edited without changing the id.
func Normalize(q domain.Question) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	parts := []string{
		normalizePart(q.TopicID),
		normalizePart(q.Prompt),
		strconv.Itoa(len(q.Options)), // keeps a multi-line prompt apart from the options
	}
	for _, o := range q.Options {
		parts = append(parts, normalizePart(o))
	}
	parts = append(parts, strconv.Itoa(q.CorrectOption))

	return strings.Join(parts, "\n")
}

// Hash normalizes a question and returns its SHA-256 hash as a hex string.
func Hash(q domain.Question) string {
	normalized := Normalize(q)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
