package preprocessing

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/core/parallel"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// KNNImputer の重み付け方式
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// 行数がこれを超える場合に行単位で並列化する
const imputeParallelThreshold = 256

// KNNImputer は欠損値 (NaN) を k 近傍の値で補完する。
// 距離は nan-euclidean 距離で、両方の行に存在する座標のみを使い
// 存在率で重みを補正する。
//
// 各欠損セルについて、その列が存在する学習行のみが候補 (donor) となる。
// 候補が1つもない場合は列平均で補完し、学習データで全て欠損の列は0で補完する。
type KNNImputer struct {
	State *model.StateManager

	NNeighbors int
	Weights    string

	// 学習データ（欠損を含む）と列平均
	FitData  *mat.Dense
	ColMeans []float64
}

// NewKNNImputer は新しいKNNImputerを作成する
func NewKNNImputer(nNeighbors int, weights string) *KNNImputer {
	return &KNNImputer{
		State:      model.NewStateManager(),
		NNeighbors: nNeighbors,
		Weights:    weights,
	}
}

// Fit は補完に使う学習データを保持する
func (k *KNNImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("KNNImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	if k.NNeighbors < 1 {
		return errors.NewValidationError("n_neighbors", "must be at least 1", k.NNeighbors)
	}
	if k.Weights != WeightsUniform && k.Weights != WeightsDistance {
		return errors.NewValidationError("weights", "must be 'uniform' or 'distance'", k.Weights)
	}

	k.FitData = mat.DenseCopyOf(X)
	k.ColMeans = make([]float64, c)
	for j := 0; j < c; j++ {
		sum, n := 0.0, 0
		for i := 0; i < r; i++ {
			if v := k.FitData.At(i, j); !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		// 全て欠損の列は0で補完する
		if n > 0 {
			k.ColMeans[j] = sum / float64(n)
		}
	}

	k.State.SetDimensions(c, r)
	k.State.SetFitted()
	return nil
}

// Transform は X の欠損値を補完した新しい行列を返す
func (k *KNNImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := k.State.RequireFitted("KNNImputer", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := k.State.RequireFeatures("KNNImputer.Transform", c); err != nil {
		return nil, err
	}

	out := mat.DenseCopyOf(X)
	parallel.ParallelizeWithThreshold(r, imputeParallelThreshold, func(start, end int) {
		dist := make([]float64, k.FitData.RawMatrix().Rows)
		for i := start; i < end; i++ {
			row := mat.Row(nil, i, X)
			if !hasNaN(row) {
				continue
			}
			k.distances(row, dist)
			for j := 0; j < c; j++ {
				if math.IsNaN(row[j]) {
					out.Set(i, j, k.imputeCell(j, dist))
				}
			}
		}
	})
	return out, nil
}

// FitTransform は学習と補完を同時に実行する
func (k *KNNImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := k.Fit(X); err != nil {
		return nil, err
	}
	return k.Transform(X)
}

// distances は row と各学習行の nan-euclidean 距離を dist に書き込む。
// 共通して存在する座標がない場合は NaN。
func (k *KNNImputer) distances(row, dist []float64) {
	nRows, nCols := k.FitData.Dims()
	for i := 0; i < nRows; i++ {
		sum, present := 0.0, 0
		for j := 0; j < nCols; j++ {
			a, b := row[j], k.FitData.At(i, j)
			if math.IsNaN(a) || math.IsNaN(b) {
				continue
			}
			d := a - b
			sum += d * d
			present++
		}
		if present == 0 {
			dist[i] = math.NaN()
			continue
		}
		dist[i] = math.Sqrt(float64(nCols) / float64(present) * sum)
	}
}

func (k *KNNImputer) imputeCell(col int, dist []float64) float64 {
	type donor struct {
		idx  int
		dist float64
	}
	nRows, _ := k.FitData.Dims()
	donors := make([]donor, 0, nRows)
	for i := 0; i < nRows; i++ {
		if math.IsNaN(dist[i]) || math.IsNaN(k.FitData.At(i, col)) {
			continue
		}
		donors = append(donors, donor{i, dist[i]})
	}
	if len(donors) == 0 {
		return k.ColMeans[col]
	}

	sort.SliceStable(donors, func(a, b int) bool { return donors[a].dist < donors[b].dist })
	n := k.NNeighbors
	if n > len(donors) {
		n = len(donors)
	}
	donors = donors[:n]

	weights := make([]float64, n)
	if k.Weights == WeightsDistance {
		zero := false
		for _, d := range donors {
			if d.dist == 0 {
				zero = true
				break
			}
		}
		// 距離0の近傍がある場合はその近傍のみを等重みで使う
		for i, d := range donors {
			switch {
			case zero && d.dist == 0:
				weights[i] = 1
			case zero:
				weights[i] = 0
			default:
				weights[i] = 1 / d.dist
			}
		}
	} else {
		for i := range weights {
			weights[i] = 1
		}
	}

	num, den := 0.0, 0.0
	for i, d := range donors {
		num += weights[i] * k.FitData.At(d.idx, col)
		den += weights[i]
	}
	return num / den
}

func hasNaN(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
