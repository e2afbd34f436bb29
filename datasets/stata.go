package datasets

import (
	"fmt"
	"os"

	"github.com/kshedden/datareader"

	"github.com/YuminosukeSato/gochoice/choice"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// LoadChoiceStata reads a choice panel from a Stata .dta file. Respondent,
// task, brand and ad columns are read as strings (numeric identifiers are
// formatted), price must be numeric and chosen must be 0 or 1. A missing
// value in any required column is a ValueError: the panel validation in
// choice.NewChoiceDataset assumes complete tasks.
func LoadChoiceStata(path string, schema PanelSchema) ([]choice.Observation, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	rdr, err := datareader.NewStataReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading Stata file %s", path)
	}
	// Value-labeled columns come through as their labels, not the codes.
	rdr.InsertCategoryLabels = true
	series, err := rdr.Read(-1)
	if err != nil {
		return nil, errors.Wrapf(err, "reading Stata data from %s", path)
	}

	byName := make(map[string]*datareader.Series, len(series))
	for _, s := range series {
		byName[s.Name] = s
	}
	get := func(name string) (*datareader.Series, error) {
		s, ok := byName[name]
		if !ok {
			return nil, errors.NewValueError("LoadChoiceStata",
				fmt.Sprintf("missing required column %q in %s", name, path))
		}
		return s, nil
	}

	stringCol := func(name string) ([]string, error) {
		s, err := get(name)
		if err != nil {
			return nil, err
		}
		values, missing, err := s.AsStringSlice()
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", name)
		}
		if err := rejectMissing(name, missing, path); err != nil {
			return nil, err
		}
		return values, nil
	}
	floatCol := func(name string) ([]float64, error) {
		s, err := get(name)
		if err != nil {
			return nil, err
		}
		values, missing, err := s.AsFloat64Slice()
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", name)
		}
		if err := rejectMissing(name, missing, path); err != nil {
			return nil, err
		}
		return values, nil
	}

	respondents, err := stringCol(schema.Respondent)
	if err != nil {
		return nil, err
	}
	tasks, err := stringCol(schema.Task)
	if err != nil {
		return nil, err
	}
	brands, err := stringCol(schema.Brand)
	if err != nil {
		return nil, err
	}
	ads, err := stringCol(schema.Ad)
	if err != nil {
		return nil, err
	}
	prices, err := floatCol(schema.Price)
	if err != nil {
		return nil, err
	}
	chosens, err := floatCol(schema.Chosen)
	if err != nil {
		return nil, err
	}

	n := len(respondents)
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "in LoadChoiceStata")
	}

	obs := make([]choice.Observation, 0, n)
	for i := 0; i < n; i++ {
		var chosen bool
		switch chosens[i] {
		case 0:
			chosen = false
		case 1:
			chosen = true
		default:
			return nil, errors.NewValueError("LoadChoiceStata",
				fmt.Sprintf("row %d: chosen %g must be 0 or 1", i+1, chosens[i]))
		}
		obs = append(obs, choice.Observation{
			RespondentID: respondents[i],
			TaskID:       tasks[i],
			Alternative: choice.Alternative{
				Categorical: map[string]string{
					"brand": brands[i],
					"ad":    ads[i],
				},
				Numeric: map[string]float64{
					"price": prices[i],
				},
			},
			Chosen: chosen,
		})
	}
	return obs, nil
}

func rejectMissing(name string, missing []bool, path string) error {
	if missing == nil {
		return nil
	}
	for i, miss := range missing {
		if miss {
			return errors.NewValueError("LoadChoiceStata",
				fmt.Sprintf("row %d: missing value in required column %q of %s", i+1, name, path))
		}
	}
	return nil
}
