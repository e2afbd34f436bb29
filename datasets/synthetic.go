package datasets

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/gochoice/choice"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// ChoicePanelConfig configures the simulated conjoint panel. Alternative j of
// every task carries Brands[j]; the ad flag and the price are drawn per
// alternative. TrueBeta is laid out in the utility-spec column order:
// non-reference brands in declared order, then "ad:yes", then "price".
type ChoicePanelConfig struct {
	Respondents        int
	TasksPerRespondent int
	Brands             []string
	ReferenceBrand     string
	AdProb             float64
	Prices             []float64
	TrueBeta           []float64
	Seed               int64
}

// DefaultStreamingConfig is the streaming-service scenario: three brands with
// Hulu as the reference level, an ad flag, a four-point price grid, and the
// true part-worths the acceptance checks recover.
func DefaultStreamingConfig() ChoicePanelConfig {
	return ChoicePanelConfig{
		Respondents:        100,
		TasksPerRespondent: 10,
		Brands:             []string{"Netflix", "PrimeVideo", "Hulu"},
		ReferenceBrand:     "Hulu",
		AdProb:             0.5,
		Prices:             []float64{8, 10, 12, 15},
		TrueBeta:           []float64{1.0, 0.5, -0.8, -0.1},
		Seed:               42,
	}
}

// ChoicePanel is a simulated panel together with the utility specification
// that encodes it and the coefficients that generated it.
type ChoicePanel struct {
	Observations    []choice.Observation
	Spec            *choice.UtilitySpec
	TrueBeta        []float64
	NumAlternatives int
}

// Dataset builds the ChoiceDataset for the panel.
func (p *ChoicePanel) Dataset() (*choice.ChoiceDataset, error) {
	return choice.NewChoiceDataset(p.Observations, p.Spec, p.NumAlternatives)
}

// SimulateChoicePanel draws a balanced choice panel from a known multinomial
// logit: utility is the encoded attributes times TrueBeta plus independent
// standard Gumbel noise, and the alternative with the highest utility is
// chosen. A fixed seed reproduces the panel exactly.
func SimulateChoicePanel(cfg ChoicePanelConfig) (*ChoicePanel, error) {
	if cfg.Respondents <= 0 {
		return nil, errors.NewValidationError("Respondents",
			fmt.Sprintf("must be positive, got %d", cfg.Respondents), cfg.Respondents)
	}
	if cfg.TasksPerRespondent <= 0 {
		return nil, errors.NewValidationError("TasksPerRespondent",
			fmt.Sprintf("must be positive, got %d", cfg.TasksPerRespondent), cfg.TasksPerRespondent)
	}
	if cfg.AdProb < 0 || cfg.AdProb > 1 {
		return nil, errors.NewValidationError("AdProb",
			fmt.Sprintf("must be in [0, 1], got %g", cfg.AdProb), cfg.AdProb)
	}
	if len(cfg.Prices) == 0 {
		return nil, errors.NewValidationError("Prices", "price grid must not be empty", cfg.Prices)
	}

	spec := choice.NewUtilitySpec()
	if err := spec.AddCategorical("brand", cfg.Brands, cfg.ReferenceBrand); err != nil {
		return nil, err
	}
	if err := spec.AddCategorical("ad", []string{"yes", "no"}, "no"); err != nil {
		return nil, err
	}
	if err := spec.AddNumeric("price"); err != nil {
		return nil, err
	}
	if len(cfg.TrueBeta) != spec.NumColumns() {
		return nil, errors.NewDimensionError("SimulateChoicePanel", spec.NumColumns(), len(cfg.TrueBeta), 1)
	}

	r := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)))
	gumbel := func() float64 {
		for {
			u := r.Float64()
			if u > 0 {
				return -math.Log(-math.Log(u))
			}
		}
	}

	numAlts := len(cfg.Brands)
	x := make([]float64, spec.NumColumns())
	utilities := make([]float64, numAlts)
	alts := make([]choice.Alternative, numAlts)

	obs := make([]choice.Observation, 0, cfg.Respondents*cfg.TasksPerRespondent*numAlts)
	for i := 0; i < cfg.Respondents; i++ {
		respondent := "R" + strconv.Itoa(i+1)
		for task := 0; task < cfg.TasksPerRespondent; task++ {
			for j := 0; j < numAlts; j++ {
				ad := "no"
				if r.Float64() < cfg.AdProb {
					ad = "yes"
				}
				alts[j] = choice.Alternative{
					Categorical: map[string]string{"brand": cfg.Brands[j], "ad": ad},
					Numeric:     map[string]float64{"price": cfg.Prices[r.IntN(len(cfg.Prices))]},
				}
				if err := spec.EncodeTo(x, alts[j]); err != nil {
					return nil, err
				}
				u := 0.0
				for k, v := range x {
					u += v * cfg.TrueBeta[k]
				}
				utilities[j] = u + gumbel()
			}
			chosen := 0
			for j := 1; j < numAlts; j++ {
				if utilities[j] > utilities[chosen] {
					chosen = j
				}
			}
			for j := 0; j < numAlts; j++ {
				obs = append(obs, choice.Observation{
					RespondentID: respondent,
					TaskID:       "T" + strconv.Itoa(task+1),
					Alternative:  alts[j],
					Chosen:       j == chosen,
				})
			}
		}
	}

	return &ChoicePanel{
		Observations:    obs,
		Spec:            spec,
		TrueBeta:        append([]float64(nil), cfg.TrueBeta...),
		NumAlternatives: numAlts,
	}, nil
}

// MakeBlobs draws isotropic Gaussian clusters for the clustering and
// classification demos. Cluster centers are uniform on [-10, 10] per
// dimension, labels are balanced, and the rows are shuffled.
func MakeBlobs(samples, features, centers int, clusterStd float64, seed int64) (*mat.Dense, []int, error) {
	if samples <= 0 || features <= 0 || centers <= 0 {
		return nil, nil, errors.NewValidationError("MakeBlobs",
			fmt.Sprintf("samples, features and centers must be positive, got %d, %d, %d", samples, features, centers),
			nil)
	}
	if samples < centers {
		return nil, nil, errors.NewValidationError("samples",
			fmt.Sprintf("need at least one sample per center, got %d samples for %d centers", samples, centers),
			samples)
	}
	if clusterStd <= 0 {
		return nil, nil, errors.NewValidationError("clusterStd",
			fmt.Sprintf("cluster standard deviation must be positive, got %g", clusterStd), clusterStd)
	}

	src := rand.NewPCG(uint64(seed), uint64(seed))
	r := rand.New(src)
	noise := distuv.Normal{Mu: 0, Sigma: clusterStd, Src: src}

	centerPoints := mat.NewDense(centers, features, nil)
	for c := 0; c < centers; c++ {
		for k := 0; k < features; k++ {
			centerPoints.Set(c, k, r.Float64()*20-10)
		}
	}

	X := mat.NewDense(samples, features, nil)
	y := make([]int, samples)
	for i := 0; i < samples; i++ {
		c := i % centers
		y[i] = c
		for k := 0; k < features; k++ {
			X.Set(i, k, centerPoints.At(c, k)+noise.Rand())
		}
	}

	// Shuffle so train/test splits by slicing stay balanced.
	perm := r.Perm(samples)
	shuffledX := mat.NewDense(samples, features, nil)
	shuffledY := make([]int, samples)
	for i, p := range perm {
		shuffledX.SetRow(i, X.RawRowView(p))
		shuffledY[i] = y[p]
	}
	return shuffledX, shuffledY, nil
}

// MakePoissonSample draws a Poisson regression sample with a log link:
// features are standard normal and y_i ~ Poisson(exp(intercept + x_i·beta)).
func MakePoissonSample(samples int, beta []float64, intercept float64, seed int64) (*mat.Dense, []float64, error) {
	if samples <= 0 {
		return nil, nil, errors.NewValidationError("samples",
			fmt.Sprintf("must be positive, got %d", samples), samples)
	}
	if len(beta) == 0 {
		return nil, nil, errors.NewValidationError("beta", "coefficients must not be empty", beta)
	}

	src := rand.NewPCG(uint64(seed), uint64(seed))
	stdNormal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	features := len(beta)
	X := mat.NewDense(samples, features, nil)
	y := make([]float64, samples)
	for i := 0; i < samples; i++ {
		lin := intercept
		for k := 0; k < features; k++ {
			v := stdNormal.Rand()
			X.Set(i, k, v)
			lin += v * beta[k]
		}
		lambda := math.Exp(lin)
		if math.IsInf(lambda, 0) || math.IsNaN(lambda) {
			return nil, nil, errors.NewNumericalInstabilityError("MakePoissonSample", []float64{lin}, i)
		}
		y[i] = distuv.Poisson{Lambda: lambda, Src: src}.Rand()
	}
	return X, y, nil
}
