package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"churn-service/internal/churn/schema"
	apperrors "churn-service/internal/common/errors"
)

const (
	ObjectiveBinaryLogistic = "binary:logistic"
	DefaultThreshold        = 0.5
	DefaultBaseScore        = 0.5
)

var ErrDimensionMismatch = errors.New("vector length does not match model features")

// Artifact is the on-disk model envelope. Trees is the output of
// XGBoost's Booster.get_dump(dump_format="json"), one object per tree.
type Artifact struct {
	Objective string            `json:"objective"`
	BaseScore *float64          `json:"base_score,omitempty"`
	Threshold *float64          `json:"threshold,omitempty"`
	Trees     []json.RawMessage `json:"trees"`
}

// dumpNode is one node of a JSON tree dump. Leaves carry Leaf; split nodes carry the rest.
type dumpNode struct {
	NodeID         int        `json:"nodeid"`
	Split          string     `json:"split"`
	SplitCondition *float64   `json:"split_condition"`
	Yes            int        `json:"yes"`
	No             int        `json:"no"`
	Missing        *int       `json:"missing"`
	Leaf           *float64   `json:"leaf"`
	Children       []dumpNode `json:"children"`
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float32 // XGBoost compares splits in single precision
	indicator bool // no split_condition: non-zero goes yes
	yes       int
	no        int
	missing   int
}

type tree []treeNode

// TreeEnsemble is a gradient-boosted tree classifier with a logistic link.
type TreeEnsemble struct {
	trees      []tree
	baseMargin float64
	threshold  float64
	features   int
}

// LoadTreeEnsemble reads a model artifact and resolves split features against s.
func LoadTreeEnsemble(path string, s *schema.TrainingSchema) (*TreeEnsemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewModelLoadError(path, err)
	}
	m, err := ParseTreeEnsemble(data, s)
	if err != nil {
		return nil, apperrors.NewModelLoadError(path, err)
	}
	return m, nil
}

// ParseTreeEnsemble decodes an Artifact, or a bare tree-dump array, against s.
func ParseTreeEnsemble(data []byte, s *schema.TrainingSchema) (*TreeEnsemble, error) {
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("training schema is required to resolve split features")
	}

	var artifact Artifact
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &artifact.Trees); err != nil {
			return nil, fmt.Errorf("decode tree dump: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &artifact); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}

	if artifact.Objective != "" && artifact.Objective != ObjectiveBinaryLogistic {
		return nil, fmt.Errorf("unsupported objective %q", artifact.Objective)
	}
	if len(artifact.Trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}

	baseScore := DefaultBaseScore
	if artifact.BaseScore != nil {
		baseScore = *artifact.BaseScore
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, fmt.Errorf("base_score must be within (0,1), got %v", baseScore)
	}
	threshold := DefaultThreshold
	if artifact.Threshold != nil {
		threshold = *artifact.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be within [0,1], got %v", threshold)
	}

	m := &TreeEnsemble{
		trees:      make([]tree, 0, len(artifact.Trees)),
		baseMargin: math.Log(baseScore / (1 - baseScore)),
		threshold:  threshold,
		features:   s.Len(),
	}
	for i, raw := range artifact.Trees {
		var root dumpNode
		if err := json.Unmarshal(raw, &root); err != nil {
			return nil, fmt.Errorf("decode tree %d: %w", i, err)
		}
		t, err := compileTree(root, s)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		m.trees = append(m.trees, t)
	}
	return m, nil
}

// compileTree flattens a nested dump into a slice indexed by position, remapping node ids.
func compileTree(root dumpNode, s *schema.TrainingSchema) (tree, error) {
	var flat []dumpNode
	var walk func(n dumpNode)
	walk = func(n dumpNode) {
		flat = append(flat, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)

	pos := make(map[int]int, len(flat))
	for i, n := range flat {
		if _, dup := pos[n.NodeID]; dup {
			return nil, fmt.Errorf("duplicate node id %d", n.NodeID)
		}
		pos[n.NodeID] = i
	}

	child := func(id int) (int, error) {
		p, ok := pos[id]
		if !ok {
			return 0, fmt.Errorf("reference to unknown node %d", id)
		}
		return p, nil
	}

	t := make(tree, len(flat))
	for i, n := range flat {
		if n.Leaf != nil {
			t[i] = treeNode{leaf: true, value: *n.Leaf}
			continue
		}

		feature, err := resolveFeature(n.Split, s)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", n.NodeID, err)
		}
		yes, err := child(n.Yes)
		if err != nil {
			return nil, err
		}
		no, err := child(n.No)
		if err != nil {
			return nil, err
		}
		missing := yes
		if n.Missing != nil {
			if missing, err = child(*n.Missing); err != nil {
				return nil, err
			}
		}

		node := treeNode{feature: feature, yes: yes, no: no, missing: missing}
		if n.SplitCondition == nil {
			node.indicator = true
		} else {
			node.threshold = float32(*n.SplitCondition)
		}
		t[i] = node
	}

	// every internal node must point forward or the walk could loop
	for i, n := range t {
		if !n.leaf && (n.yes <= i || n.no <= i || n.missing <= i) {
			return nil, fmt.Errorf("node at position %d does not point to descendants", i)
		}
	}
	return t, nil
}

// resolveFeature maps a split name to a schema position. Names win over the "f<N>" form,
// which XGBoost emits when trained without feature names.
func resolveFeature(name string, s *schema.TrainingSchema) (int, error) {
	if i := s.Index(name); i >= 0 {
		return i, nil
	}
	if strings.HasPrefix(name, "f") {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 0 && n < s.Len() {
			return n, nil
		}
	}
	return 0, fmt.Errorf("split feature %q is not in the training schema", name)
}

func (t tree) score(x []float64) float64 {
	i := 0
	for {
		n := t[i]
		if n.leaf {
			return n.value
		}
		v := x[n.feature]
		switch {
		case math.IsNaN(v):
			i = n.missing
		case n.indicator:
			if v != 0 {
				i = n.yes
			} else {
				i = n.no
			}
		case float32(v) < n.threshold:
			i = n.yes
		default:
			i = n.no
		}
	}
}

// Margin returns the raw log-odds for vector.
func (m *TreeEnsemble) Margin(vector []float64) (float64, error) {
	if len(vector) != m.features {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), m.features)
	}
	margin := m.baseMargin
	for _, t := range m.trees {
		margin += t.score(vector)
	}
	return margin, nil
}

func (m *TreeEnsemble) PredictProbability(vector []float64) (float64, error) {
	margin, err := m.Margin(vector)
	if err != nil {
		return 0, err
	}
	return 1 / (1 + math.Exp(-margin)), nil
}

func (m *TreeEnsemble) PredictLabel(vector []float64) (int, error) {
	p, err := m.PredictProbability(vector)
	if err != nil {
		return 0, err
	}
	if p > m.threshold {
		return 1, nil
	}
	return 0, nil
}

// Trees returns the number of boosting rounds in the ensemble.
func (m *TreeEnsemble) Trees() int { return len(m.trees) }
