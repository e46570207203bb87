package model

import (
	"bytes"
	"encoding/gob"
	"io"
	"time"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/goccy/go-json"
)

// Bundle は学習済みモデルとその実験メタデータをまとめたもの。
// モデルバケットに gob 形式で保存される。
type Bundle struct {
	// Name はレジストリ上のモデル名
	Name string
	// Model は学習済みの分類器（gob.Register 済みの具象型）
	Model Classifier
	// Features は学習時の特徴量名（PCA後の列名）
	Features []string
	// Params はハイパーパラメータ
	Params map[string]interface{}
	// Metrics は評価指標
	Metrics   map[string]float64
	CreatedAt time.Time
}

// NewBundle は分類器から Bundle を作成する
func NewBundle(name string, clf Classifier, features []string, metrics map[string]float64) *Bundle {
	return &Bundle{
		Name:      name,
		Model:     clf,
		Features:  append([]string(nil), features...),
		Params:    clf.GetParams(),
		Metrics:   metrics,
		CreatedAt: time.Now().UTC(),
	}
}

// Encode は Bundle を gob でエンコードしたバイト列を返す
func (b *Bundle) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := SaveModelToWriter(b, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBundle は gob バイト列から Bundle を復元する
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := LoadModelFromReader(&b, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if b.Model == nil {
		return nil, errors.NewModelError("DecodeBundle", "bundle carries no model", nil)
	}
	return &b, nil
}

// MetadataJSON は Bundle のメタデータ（モデル本体を除く）をJSONで返す
func (b *Bundle) MetadataJSON() ([]byte, error) {
	meta := struct {
		Name      string                 `json:"name"`
		Features  []string               `json:"features"`
		Params    map[string]interface{} `json:"params"`
		Metrics   map[string]float64     `json:"metrics"`
		CreatedAt time.Time              `json:"created_at"`
	}{b.Name, b.Features, b.Params, b.Metrics, b.CreatedAt}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode bundle metadata")
	}
	return data, nil
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
