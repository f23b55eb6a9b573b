package artifact

import (
	"fmt"
	"slices"
)

// Classifier artifact kinds.
const (
	KindLogistic     = "logistic"
	KindDecisionTree = "decision_tree"
)

// Logistic is a fitted linear classifier. It predicts 1 when the decision
// function coef·x + intercept is positive.
type Logistic struct {
	Features  []string  `json:"feature_names_in"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// FeatureNames returns the columns the classifier was fitted with.
func (l *Logistic) FeatureNames() []string { return slices.Clone(l.Features) }

// Kind returns KindLogistic.
func (l *Logistic) Kind() string { return KindLogistic }

// Predict labels every row of f.
func (l *Logistic) Predict(f Frame) ([]int, error) {
	if err := f.validate(l.Features); err != nil {
		return nil, err
	}
	out := make([]int, len(f.Rows))
	for i, row := range f.Rows {
		d := l.Intercept
		for j, x := range row {
			d += l.Coef[j] * x
		}
		if d > 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func (l *Logistic) check() error {
	if len(l.Features) == 0 {
		return fmt.Errorf("%w: classifier has no feature names", ErrInvalidArtifact)
	}
	if len(l.Coef) != len(l.Features) {
		return fmt.Errorf("%w: classifier has %d coefficients for %d features", ErrInvalidArtifact, len(l.Coef), len(l.Features))
	}
	return nil
}

// TreeNode is one node of a flattened decision tree.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
}

// DecisionTree is a fitted binary decision tree stored as a node array with
// the root at index 0. Rows with x[feature] <= threshold go left.
type DecisionTree struct {
	Features []string   `json:"feature_names_in"`
	Nodes    []TreeNode `json:"nodes"`
}

// FeatureNames returns the columns the tree was fitted with.
func (t *DecisionTree) FeatureNames() []string { return slices.Clone(t.Features) }

// Kind returns KindDecisionTree.
func (t *DecisionTree) Kind() string { return KindDecisionTree }

// Predict labels every row of f.
func (t *DecisionTree) Predict(f Frame) ([]int, error) {
	if err := f.validate(t.Features); err != nil {
		return nil, err
	}
	out := make([]int, len(f.Rows))
	for i, row := range f.Rows {
		label, err := t.walk(row)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

func (t *DecisionTree) walk(row []float64) (int, error) {
	idx := 0
	// A valid tree reaches a leaf in at most len(Nodes) steps.
	for range len(t.Nodes) {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if row[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return 0, fmt.Errorf("%w: decision tree has a cycle", ErrInvalidArtifact)
}

func (t *DecisionTree) check() error {
	if len(t.Features) == 0 {
		return fmt.Errorf("%w: classifier has no feature names", ErrInvalidArtifact)
	}
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: decision tree has no nodes", ErrInvalidArtifact)
	}
	for i, n := range t.Nodes {
		if n.IsLeaf {
			continue
		}
		if n.FeatureIdx < 0 || n.FeatureIdx >= len(t.Features) {
			return fmt.Errorf("%w: node %d uses feature %d of %d", ErrInvalidArtifact, i, n.FeatureIdx, len(t.Features))
		}
		if n.LeftChild < 0 || n.LeftChild >= len(t.Nodes) || n.RightChild < 0 || n.RightChild >= len(t.Nodes) {
			return fmt.Errorf("%w: node %d has a child out of range", ErrInvalidArtifact, i)
		}
	}
	return nil
}
