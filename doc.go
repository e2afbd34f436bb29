// Package gochoice provides discrete choice modeling for Go, designed for
// conjoint analysis and demand estimation in backend services.
//
// GoChoice offers a scikit-learn-like estimator API so that analysts familiar
// with Python's ecosystem can assemble choice panels, estimate multinomial
// logit models and sample posteriors without leaving Go.
//
// # Features
//
// - Multinomial logit estimation with analytic gradients and BFGS
// - Bayesian posterior sampling via adaptive random-walk Metropolis
// - Convergence diagnostics: potential scale reduction and effective sample size
// - Respondent segmentation with k-means and k-nearest neighbors
// - Poisson regression for count outcomes such as ad exposures
// - Robust Error Handling: structured errors with stack traces
// - CPU-parallel panel encoding and prediction
//
// # Installation
//
// Install GoChoice using go get:
//
//	go get github.com/YuminosukeSato/gochoice
//
// # Quick Start
//
// Here's a conjoint study fitted end to end:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/gochoice/choice"
//	    "github.com/YuminosukeSato/gochoice/datasets"
//	)
//
//	func main() {
//	    // Simulate a branded streaming panel with known part-worths
//	    panel, err := datasets.SimulateChoicePanel(datasets.DefaultStreamingConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    ds, err := panel.Dataset()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Estimate by maximum likelihood
//	    model := choice.NewMultinomialLogit()
//	    if err := model.Fit(ds); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    summary, err := model.Summary()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(summary)
//	}
//
// # Packages
//
// The library is organized into several packages:
//
//   - choice: utility specification, panel assembly, multinomial logit
//   - bayes: priors, posteriors, Metropolis sampling, chain diagnostics
//   - cluster: k-means respondent segmentation
//   - neighbors: k-nearest neighbor classification
//   - glm: Poisson regression for counts
//   - metrics: accuracy, AUC, log loss and regression metrics
//   - preprocessing: standardization and min-max scaling
//   - plotting: trace plots, posterior histograms, elbow curves
//   - datasets: CSV and Stata panel loaders, synthetic generators
//   - core/model: shared estimator state and weight export
//   - core/parallel: parallel processing utilities
//
// # Performance
//
// GoChoice parallelizes the heavy loops automatically:
//
//   - Panel encoding fans out across CPU cores beyond 256 tasks
//   - Choice probabilities and neighbor queries run on worker pools
//   - Thread-safe fitted state behind a state manager
//
// # License
//
// GoChoice is released under the MIT License.
package gochoice
