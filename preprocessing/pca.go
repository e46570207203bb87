package preprocessing

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA は主成分分析による次元削減を行う。
// 主成分の符号は、絶対値が最大の負荷量が正になるように正規化する。
type PCA struct {
	State *model.StateManager

	NComponents int

	// Mean は各特徴量の平均
	Mean []float64
	// Components は (n_features, n_components) の主成分ベクトル
	Components *mat.Dense
	// ExplainedVariance は各主成分の分散
	ExplainedVariance []float64
}

// NewPCA は新しいPCAを作成する
func NewPCA(nComponents int) *PCA {
	return &PCA{
		State:       model.NewStateManager(),
		NComponents: nComponents,
	}
}

// Fit は主成分を計算する
func (p *PCA) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	switch {
	case p.NComponents < 1:
		return errors.NewNumericError("PCA.Fit", fmt.Sprintf("n_components must be at least 1, got %d", p.NComponents))
	case p.NComponents > c:
		return errors.NewNumericError("PCA.Fit", fmt.Sprintf("n_components %d exceeds %d columns", p.NComponents, c))
	case p.NComponents > r:
		return errors.NewNumericError("PCA.Fit", fmt.Sprintf("n_components %d exceeds %d rows", p.NComponents, r))
	}
	if err := errors.CheckMatrix("PCA.Fit", X, r, c); err != nil {
		return err
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return errors.NewNumericError("PCA.Fit", "singular value decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	k := p.NComponents
	p.Components = mat.DenseCopyOf(vecs.Slice(0, c, 0, k))
	p.ExplainedVariance = append([]float64(nil), vars[:k]...)

	for j := 0; j < k; j++ {
		maxAbs, sign := 0.0, 1.0
		for i := 0; i < c; i++ {
			if v := p.Components.At(i, j); math.Abs(v) > maxAbs {
				maxAbs = math.Abs(v)
				sign = math.Copysign(1, v)
			}
		}
		if sign < 0 {
			for i := 0; i < c; i++ {
				p.Components.Set(i, j, -p.Components.At(i, j))
			}
		}
	}

	p.Mean = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		p.Mean[j] = stat.Mean(col, nil)
	}

	p.State.SetDimensions(c, r)
	p.State.SetFitted()
	return nil
}

// Transform は X を主成分空間へ射影する
func (p *PCA) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.State.RequireFitted("PCA", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := p.State.RequireFeatures("PCA.Transform", c); err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix("PCA.Transform", X, r, c); err != nil {
		return nil, err
	}

	centered := mat.NewDense(r, c, nil)
	centered.Apply(func(i, j int, v float64) float64 { return v - p.Mean[j] }, X)

	var out mat.Dense
	out.Mul(centered, p.Components)
	return &out, nil
}

// FitTransform は学習と射影を同時に実行する
func (p *PCA) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}
