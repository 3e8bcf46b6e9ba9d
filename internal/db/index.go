package db

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	DistanceL2     DistanceMetric = "L2"
	DistanceIP     DistanceMetric = "IP"
	DistanceCosine DistanceMetric = "COSINE"
)

// VectorAlgorithm selects the vector index implementation.
type VectorAlgorithm string

const (
	VectorHNSW VectorAlgorithm = "HNSW"
	VectorFlat VectorAlgorithm = "FLAT"
)

// IndexFieldType enumerates the schema field kinds vecrag writes.
type IndexFieldType int

const (
	IndexFieldNumeric IndexFieldType = iota
	IndexFieldTag
	IndexFieldVector
)

// IndexField describes one SCHEMA entry. Vector* settings apply to
// IndexFieldVector only; zero values fall back to HNSW with COSINE distance.
type IndexField struct {
	Name  string
	Alias string
	Type  IndexFieldType

	VectorAlgo        VectorAlgorithm
	VectorDim         int
	VectorDistance    DistanceMetric
	VectorM           int
	VectorEFConstruct int
}

// IndexDefinition is an FT.CREATE definition over HASH keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

var identifier = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)

// IsValidIdentifier reports whether s is usable as an index name: [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool { return identifier.MatchString(s) }

// Validate checks names, field uniqueness by exposed name, and vector dimensions.
func (idx *IndexDefinition) Validate() error {
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("invalid index name %q", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	exposed := make(map[string]struct{}, len(idx.Fields))
	for i, f := range idx.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		name := f.Name
		if f.Alias != "" {
			name = f.Alias
		}
		if _, dup := exposed[name]; dup {
			return fmt.Errorf("duplicate field name: %s", name)
		}
		exposed[name] = struct{}{}

		if f.Type == IndexFieldVector && f.VectorDim <= 0 {
			return fmt.Errorf("field %s: vector DIM must be positive", f.Name)
		}
	}
	return nil
}

// Args renders the definition as FT.CREATE arguments, without the command name.
func (idx *IndexDefinition) Args() ([]string, error) {
	if idx.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(idx.Fields) == 0 {
		return nil, errors.New("at least one field is required")
	}

	args := []string{idx.Name, "ON", "HASH"}
	if n := len(idx.Prefixes); n > 0 {
		args = append(append(args, "PREFIX", strconv.Itoa(n)), idx.Prefixes...)
	}
	args = append(args, "SCHEMA")
	for i := range idx.Fields {
		fa, err := idx.Fields[i].Args()
		if err != nil {
			return nil, err
		}
		args = append(args, fa...)
	}
	return args, nil
}

// Args renders one SCHEMA entry.
func (f *IndexField) Args() ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}
	args := []string{f.Name}
	if f.Alias != "" {
		args = append(args, "AS", f.Alias)
	}

	switch f.Type {
	case IndexFieldNumeric:
		return append(args, "NUMERIC"), nil
	case IndexFieldTag:
		return append(args, "TAG"), nil
	case IndexFieldVector:
		if f.VectorDim <= 0 {
			return nil, fmt.Errorf("field %s: vector DIM must be positive", f.Name)
		}
		return append(args, f.vectorArgs()...), nil
	}
	return nil, fmt.Errorf("field %s: unknown type %d", f.Name, f.Type)
}

func (f *IndexField) vectorArgs() []string {
	algo, distance := f.VectorAlgo, f.VectorDistance
	if algo == "" {
		algo = VectorHNSW
	}
	if distance == "" {
		distance = DistanceCosine
	}

	attrs := []string{"TYPE", "FLOAT32", "DIM", strconv.Itoa(f.VectorDim), "DISTANCE_METRIC", string(distance)}
	if algo == VectorHNSW {
		if f.VectorM > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.VectorM))
		}
		if f.VectorEFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.VectorEFConstruct))
		}
	}
	return append([]string{"VECTOR", string(algo), strconv.Itoa(len(attrs))}, attrs...)
}
