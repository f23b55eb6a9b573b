package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// LoadScaler reads a StandardScaler artifact from a JSON file.
func LoadScaler(path string) (*StandardScaler, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	s := &StandardScaler{}
	if err := decodeStrict(data, s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadClassifier reads a classifier artifact from a JSON file. The "kind"
// field selects the model type; it defaults to logistic.
func LoadClassifier(path string) (Classifier, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}

	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}

	var c interface {
		Classifier
		check() error
	}
	switch head.Kind {
	case "", KindLogistic:
		c = &Logistic{}
	case KindDecisionTree:
		c = &DecisionTree{}
	default:
		return nil, fmt.Errorf("%w: %s: unsupported classifier kind %q", ErrInvalidArtifact, path, head.Kind)
	}

	if err := decodeStrict(data, c); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	if err := c.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func readArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return data, nil
}

// decodeStrict unmarshals JSON, ignoring only the "kind" envelope field.
func decodeStrict(data []byte, v any) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "kind")
	body, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
