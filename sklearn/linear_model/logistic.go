package linear_model

import (
	"encoding/gob"
	"math"
	"math/rand"

	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/core/parallel"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func init() {
	gob.Register(&LogisticRegression{})
}

// 行数がこれを超える場合に予測値の計算を並列化する
const parallelRowThreshold = 2048

// LogisticRegression implements L2-regularised binary logistic regression
// trained with full-batch gradient descent. Labels must be 0 and 1.
//
// Fields are exported so that a fitted model survives gob encoding inside
// a model.Bundle.
type LogisticRegression struct {
	State *model.StateManager

	// Hyperparameters
	C            float64 // Inverse regularization strength (1/alpha)
	MaxIter      int
	Tol          float64
	FitIntercept bool
	LearningRate float64
	RandomState  int64

	// Model parameters
	Coef      []float64
	Intercept float64
	NIter     int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		State:        model.NewStateManager(),
		C:            1.0,
		MaxIter:      100,
		Tol:          1e-4,
		FitIntercept: true,
		LearningRate: 1.0,
		RandomState:  42,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.MaxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.Tol = tol
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.FitIntercept = fit
	}
}

// WithLRLearningRate sets the base step size of gradient descent
func WithLRLearningRate(rate float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.LearningRate = rate
	}
}

// WithLRRandomState sets the seed used to initialise the weights
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.RandomState = seed
	}
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.MaxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.MaxIter)
	}

	seen := [2]bool{}
	for i := 0; i < nSamples; i++ {
		switch y.At(i, 0) {
		case 0:
			seen[0] = true
		case 1:
			seen[1] = true
		default:
			return errors.NewValueError("LogisticRegression.Fit", "labels must be 0 or 1")
		}
	}
	if !seen[0] || !seen[1] {
		return errors.NewValueError("LogisticRegression.Fit", "both classes 0 and 1 must be present")
	}

	// 小さな乱数で重みを初期化する
	rng := rand.New(rand.NewSource(lr.RandomState))
	lr.Coef = make([]float64, nFeatures)
	for j := range lr.Coef {
		lr.Coef[j] = rng.NormFloat64() * 0.01
	}
	lr.Intercept = 0

	probs := make([]float64, nSamples)
	lambda := 1.0 / lr.C
	converged := false

	for iter := 0; iter < lr.MaxIter; iter++ {
		lr.decision(X, probs)
		for i := range probs {
			probs[i] = sigmoid(probs[i])
		}

		gradWeights := make([]float64, nFeatures)
		gradIntercept := 0.0
		for i := 0; i < nSamples; i++ {
			residual := probs[i] - y.At(i, 0)
			gradIntercept += residual
			for j := 0; j < nFeatures; j++ {
				gradWeights[j] += residual * X.At(i, j)
			}
		}
		for j := range gradWeights {
			gradWeights[j] = gradWeights[j]/float64(nSamples) + lambda*lr.Coef[j]/float64(nSamples)
		}
		gradIntercept /= float64(nSamples)

		step := lr.LearningRate / (1.0 + 0.1*float64(iter))
		for j := range lr.Coef {
			lr.Coef[j] -= step * gradWeights[j]
		}
		if lr.FitIntercept {
			lr.Intercept -= step * gradIntercept
		}
		lr.NIter = iter + 1

		maxGrad := math.Abs(gradIntercept)
		for _, g := range gradWeights {
			maxGrad = math.Max(maxGrad, math.Abs(g))
		}
		if maxGrad < lr.Tol {
			converged = true
			break
		}
	}

	if err := errors.CheckScalar("LogisticRegression.Fit", lr.Intercept); err != nil {
		return err
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.MaxIter, ""))
	}

	lr.State.SetDimensions(nFeatures, nSamples)
	lr.State.SetFitted()
	return nil
}

// decision writes X·coef + intercept into out.
func (lr *LogisticRegression) decision(X mat.Matrix, out []float64) {
	_, nFeatures := X.Dims()
	parallel.ParallelizeWithThreshold(len(out), parallelRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			z := lr.Intercept
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * lr.Coef[j]
			}
			out[i] = z
		}
	})
}

func (lr *LogisticRegression) checkPredictInput(X mat.Matrix, method string) error {
	if err := lr.State.RequireFitted("LogisticRegression", method); err != nil {
		return err
	}
	_, nFeatures := X.Dims()
	return lr.State.RequireFeatures("LogisticRegression."+method, nFeatures)
}

// PredictProba returns probability estimates for classes 0 and 1
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.checkPredictInput(X, "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	z := make([]float64, nSamples)
	lr.decision(X, z)

	probas := mat.NewDense(nSamples, 2, nil)
	for i, v := range z {
		p := sigmoid(v)
		probas.Set(i, 0, 1-p)
		probas.Set(i, 1, p)
	}
	return probas, nil
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.checkPredictInput(X, "Predict"); err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	z := make([]float64, nSamples)
	lr.decision(X, z)

	predictions := mat.NewDense(nSamples, 1, nil)
	for i, v := range z {
		if sigmoid(v) >= 0.5 {
			predictions.Set(i, 0, 1)
		}
	}
	return predictions, nil
}

// GetParams returns the hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":             lr.C,
		"max_iter":      lr.MaxIter,
		"tol":           lr.Tol,
		"fit_intercept": lr.FitIntercept,
		"learning_rate": lr.LearningRate,
		"random_state":  lr.RandomState,
	}
}

// sigmoid computes the logistic function without overflow
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + errors.StabilizeExp(-z))
	}
	ez := errors.StabilizeExp(z)
	return ez / (1.0 + ez)
}
