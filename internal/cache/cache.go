package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"eligo/internal/model"
)

// Cache defines the interface for verdict caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// VerdictKey generates a cache key for one criterion adjudication. The
// prompt template version is part of the key, so bumping the template
// invalidates every cached verdict produced under the old contract.
func VerdictKey(templateVersion, provider, modelName, normalizedCriterion, factsDigest string) string {
	payload := strings.Join([]string{
		templateVersion,
		provider,
		modelName,
		normalizedCriterion,
		factsDigest,
	}, "\x00")
	hash := sha256.Sum256([]byte(payload))
	return "eligo:verdict:" + hex.EncodeToString(hash[:])
}

// FactsDigest hashes the full fact list. Verdicts depend on every fact the
// oracle saw, not just the ones named in the criterion, so any profile
// change invalidates the whole evaluation's cached verdicts.
func FactsDigest(facts []model.PatientFact) string {
	h := sha256.New()
	for _, f := range facts {
		h.Write([]byte(f.Key))
		h.Write([]byte{0})
		h.Write([]byte(f.Value))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
