package mlmodel

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"time"
)

// Artifact is a versioned, serialized scorer plus the metadata needed to
// validate and rank it: the exact feature schema used at training time,
// evaluation metrics, and the training timestamp. Artifacts are keyed by
// (domain, name, version); saving the same key again overwrites payload and
// metadata in place.
type Artifact struct {
	Domain  string
	Name    string
	Version int

	// FeatureOrder is the ordered feature-name schema the model was trained
	// against. It must match the online feature builder; the scorer indexes
	// by name so a divergence degrades to zero-filled features instead of
	// corrupting positions.
	FeatureOrder []string

	Metrics   map[string]float64
	TrainedAt time.Time

	// Payload is the gob+gzip encoded model; Checksum is the SHA-256 of the
	// payload bytes.
	Payload  []byte
	Checksum string
}

func init() {
	gob.Register(&GradientBoostedClassifier{})
}

// modelEnvelope wraps the model interface value for gob encoding.
type modelEnvelope struct {
	Model any
}

// EncodeModel serializes a model into the artifact payload format and
// returns the payload with its checksum.
func EncodeModel(model any) ([]byte, string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(modelEnvelope{Model: model}); err != nil {
		return nil, "", fmt.Errorf("encode model: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compress model: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}

// DecodeModel verifies the checksum and deserializes an artifact payload.
// An empty checksum skips verification (artifacts written before checksums
// were recorded).
func DecodeModel(payload []byte, checksum string) (any, error) {
	if checksum != "" {
		sum := sha256.Sum256(payload)
		if hex.EncodeToString(sum[:]) != checksum {
			return nil, fmt.Errorf("artifact checksum mismatch")
		}
	}

	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decompress model: %w", err)
	}
	defer zr.Close()

	var env modelEnvelope
	if err := gob.NewDecoder(zr).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if env.Model == nil {
		return nil, fmt.Errorf("artifact payload holds no model")
	}
	return env.Model, nil
}
