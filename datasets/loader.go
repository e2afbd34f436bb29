// Package datasets loads choice panels from CSV and Stata files and provides
// the synthetic generators used by the examples and tests.
package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/YuminosukeSato/gochoice/choice"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// PanelSchema maps the choice-panel roles to column names in a data file.
// One file row is one alternative; rows sharing (respondent, task) form a
// choice task.
type PanelSchema struct {
	Respondent string
	Task       string
	Brand      string
	Ad         string
	Price      string
	Chosen     string
}

// DefaultPanelSchema returns the column names the simulated panels and the
// bundled example files use.
func DefaultPanelSchema() PanelSchema {
	return PanelSchema{
		Respondent: "respondent",
		Task:       "task",
		Brand:      "brand",
		Ad:         "ad",
		Price:      "price",
		Chosen:     "chosen",
	}
}

func (s PanelSchema) columns() []string {
	return []string{s.Respondent, s.Task, s.Brand, s.Ad, s.Price, s.Chosen}
}

func (s PanelSchema) validate() error {
	for _, name := range s.columns() {
		if name == "" {
			return errors.NewValidationError("schema", "schema has an empty column name", s)
		}
	}
	return nil
}

// ReadChoiceCSV parses a choice panel from CSV data with a header row. The
// price column must parse as a float and the chosen column must be 0 or 1;
// anything else is a ValueError naming the offending row. Rows are returned
// in file order, ready for choice.NewChoiceDataset.
func ReadChoiceCSV(r io.Reader, schema PanelSchema) ([]choice.Observation, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading choice CSV header")
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	col := make(map[string]int, 6)
	for _, name := range schema.columns() {
		i, ok := idx[name]
		if !ok {
			return nil, errors.NewValueError("ReadChoiceCSV",
				fmt.Sprintf("missing required column %q in header %v", name, header))
		}
		col[name] = i
	}

	var obs []choice.Observation
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading choice CSV row %d", row)
		}

		price, err := strconv.ParseFloat(record[col[schema.Price]], 64)
		if err != nil {
			return nil, errors.NewValueError("ReadChoiceCSV",
				fmt.Sprintf("row %d: price %q is not numeric", row, record[col[schema.Price]]))
		}
		var chosen bool
		switch record[col[schema.Chosen]] {
		case "0":
			chosen = false
		case "1":
			chosen = true
		default:
			return nil, errors.NewValueError("ReadChoiceCSV",
				fmt.Sprintf("row %d: chosen %q must be 0 or 1", row, record[col[schema.Chosen]]))
		}

		obs = append(obs, choice.Observation{
			RespondentID: record[col[schema.Respondent]],
			TaskID:       record[col[schema.Task]],
			Alternative: choice.Alternative{
				Categorical: map[string]string{
					"brand": record[col[schema.Brand]],
					"ad":    record[col[schema.Ad]],
				},
				Numeric: map[string]float64{
					"price": price,
				},
			},
			Chosen: chosen,
		})
	}
	if len(obs) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "in ReadChoiceCSV")
	}
	return obs, nil
}

// LoadChoiceCSV reads a choice panel from a CSV file.
func LoadChoiceCSV(path string, schema PanelSchema) ([]choice.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()
	return ReadChoiceCSV(f, schema)
}
