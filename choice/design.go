package choice

import (
	"fmt"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

type attrKind int

const (
	categoricalAttr attrKind = iota
	numericAttr
)

// attribute is one declared entry of a UtilitySpec.
type attribute struct {
	name      string
	kind      attrKind
	levels    []string       // declared levels including the reference, in order
	reference string
	offset    map[string]int // level -> column offset within the attribute; reference -> -1
	width     int            // number of design columns this attribute emits
}

// UtilitySpec maps the raw attributes of an alternative onto a numeric design
// vector. Categorical attributes are one-hot encoded with a caller-chosen
// reference level dropped (its coefficient is fixed at zero); numeric
// attributes pass through unchanged, without standardization. Columns are
// emitted in declaration order and identically for every alternative, so the
// encoded design matrix is column-aligned across the whole panel.
type UtilitySpec struct {
	attrs []attribute
	names map[string]struct{}
	cols  []string
}

// NewUtilitySpec creates an empty utility specification.
func NewUtilitySpec() *UtilitySpec {
	return &UtilitySpec{names: make(map[string]struct{})}
}

// AddCategorical declares a categorical attribute with the given level set.
// The reference level is omitted from the design; every other level becomes
// one indicator column named "name:level", in declared order.
func (s *UtilitySpec) AddCategorical(name string, levels []string, reference string) error {
	if name == "" {
		return errors.NewValidationError("name", "attribute name must not be empty", name)
	}
	if _, exists := s.names[name]; exists {
		return errors.NewValidationError("name", "attribute already declared", name)
	}
	if len(levels) < 2 {
		return errors.NewValidationError("levels", "categorical attribute needs at least 2 levels", levels)
	}

	offset := make(map[string]int, len(levels))
	width := 0
	refSeen := false
	for _, level := range levels {
		if _, dup := offset[level]; dup {
			return errors.NewValidationError("levels", fmt.Sprintf("duplicate level %q", level), levels)
		}
		if level == reference {
			offset[level] = -1
			refSeen = true
			continue
		}
		offset[level] = width
		width++
	}
	if !refSeen {
		return errors.NewValidationError("reference", "reference level must be one of the declared levels", reference)
	}

	s.attrs = append(s.attrs, attribute{
		name:      name,
		kind:      categoricalAttr,
		levels:    append([]string(nil), levels...),
		reference: reference,
		offset:    offset,
		width:     width,
	})
	s.names[name] = struct{}{}
	for _, level := range levels {
		if level != reference {
			s.cols = append(s.cols, name+":"+level)
		}
	}
	return nil
}

// AddNumeric declares a numeric attribute whose raw value becomes a single
// design column named after the attribute.
func (s *UtilitySpec) AddNumeric(name string) error {
	if name == "" {
		return errors.NewValidationError("name", "attribute name must not be empty", name)
	}
	if _, exists := s.names[name]; exists {
		return errors.NewValidationError("name", "attribute already declared", name)
	}

	s.attrs = append(s.attrs, attribute{name: name, kind: numericAttr, width: 1})
	s.names[name] = struct{}{}
	s.cols = append(s.cols, name)
	return nil
}

// Encode encodes one alternative into a freshly allocated design vector.
func (s *UtilitySpec) Encode(alt Alternative) ([]float64, error) {
	dst := make([]float64, len(s.cols))
	if err := s.EncodeTo(dst, alt); err != nil {
		return nil, err
	}
	return dst, nil
}

// EncodeTo encodes one alternative into dst, which must have length
// NumColumns. A categorical value outside the declared level set raises
// UnknownLevelError; an attribute missing from the alternative raises
// ValueError.
func (s *UtilitySpec) EncodeTo(dst []float64, alt Alternative) error {
	if len(dst) != len(s.cols) {
		return errors.NewDimensionError("UtilitySpec.EncodeTo", len(s.cols), len(dst), 1)
	}
	for i := range dst {
		dst[i] = 0
	}

	base := 0
	for _, attr := range s.attrs {
		switch attr.kind {
		case categoricalAttr:
			level, ok := alt.Categorical[attr.name]
			if !ok {
				return errors.NewValueError("UtilitySpec.EncodeTo",
					fmt.Sprintf("alternative is missing categorical attribute %q", attr.name))
			}
			off, known := attr.offset[level]
			if !known {
				return errors.NewUnknownLevelError(attr.name, level, attr.levels)
			}
			if off >= 0 {
				dst[base+off] = 1
			}
		case numericAttr:
			value, ok := alt.Numeric[attr.name]
			if !ok {
				return errors.NewValueError("UtilitySpec.EncodeTo",
					fmt.Sprintf("alternative is missing numeric attribute %q", attr.name))
			}
			dst[base] = value
		}
		base += attr.width
	}
	return nil
}

// Columns returns the design column names in declaration order, e.g.
// "brand:Netflix", "ad:yes", "price".
func (s *UtilitySpec) Columns() []string {
	cols := make([]string, len(s.cols))
	copy(cols, s.cols)
	return cols
}

// NumColumns returns the number of design columns the specification emits.
func (s *UtilitySpec) NumColumns() int {
	return len(s.cols)
}
