// Package errors はパイプライン全体のエラーハンドリングと警告システムを提供します。
// スキーマ・数値・クラス不均衡・外部ゲートウェイの4分類で失敗を表現し、
// すべてのエラーは cockroachdb/errors によるスタックトレースを保持します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("APS-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はパイプライン全体の警告ハンドラを設定します。
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConvergenceWarning は最適化アルゴリズムが収束しなかった場合に発生する警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or adjusting parameters.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、テストデータに片方のクラスしか含まれずROC-AUCが定義できない場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// StageWarning はステージが処理を行わずに継続した場合の警告です。
// 例えば、未知のライフサイクルステージへのモデル昇格要求など。
type StageWarning struct {
	Component string
	Operation string
	Message   string
}

func (w *StageWarning) Error() string {
	return fmt.Sprintf("%s.%s: %s", w.Component, w.Operation, w.Message)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *StageWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("component", w.Component).
		Str("operation", w.Operation).
		Str("message", w.Message).
		Str("type", "StageWarning")
}

// NewStageWarning は新しいStageWarningを作成します。
func NewStageWarning(component, operation, message string) *StageWarning {
	return &StageWarning{Component: component, Operation: operation, Message: message}
}

// ===========================================================================
//
//	パイプラインのエラー分類
//
// ===========================================================================

// SchemaError は参照された列やラベルがテーブルに存在しない、
// もしくはラベルの値が既知の語彙に含まれない場合のエラーです。
type SchemaError struct {
	Op     string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("aps: %s: schema error on column '%s': %s", e.Op, e.Column, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("column", e.Column).
		Str("reason", e.Reason).
		Str("type", "SchemaError")
}

// NewSchemaError は新しいSchemaErrorを作成し、スタックトレースを付与します。
func NewSchemaError(op, column, reason string) error {
	return errors.WithStack(&SchemaError{Op: op, Column: column, Reason: reason})
}

// NewMissingColumnError は列が存在しない場合のSchemaErrorを作成します。
func NewMissingColumnError(op, column string) error {
	return errors.WithStack(&SchemaError{Op: op, Column: column, Reason: "column not present"})
}

// NumericError は数値変換に非数値の列が渡された場合や、
// 次元数の指定が不正な場合のエラーです。
type NumericError struct {
	Op     string
	Column string // 問題のある列名（オプション）
	Reason string
}

func (e *NumericError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("aps: %s: numeric error on column '%s': %s", e.Op, e.Column, e.Reason)
	}
	return fmt.Sprintf("aps: %s: numeric error: %s", e.Op, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NumericError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("column", e.Column).
		Str("reason", e.Reason).
		Str("type", "NumericError")
}

// NewNumericError は新しいNumericErrorを作成し、スタックトレースを付与します。
func NewNumericError(op, reason string) error {
	return errors.WithStack(&NumericError{Op: op, Reason: reason})
}

// NewNonNumericColumnError は非数値列に対するNumericErrorを作成します。
func NewNonNumericColumnError(op, column, kind string) error {
	return errors.WithStack(&NumericError{
		Op:     op,
		Column: column,
		Reason: fmt.Sprintf("expected a numeric column, got %s", kind),
	})
}

// ImbalanceError はオーバーサンプリングの前提条件を満たさない場合のエラーです。
type ImbalanceError struct {
	Op       string
	Class    string // 少数クラスのラベル
	Count    int    // 少数クラスのサンプル数
	Required int    // 必要な最小サンプル数
	Reason   string
}

func (e *ImbalanceError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("aps: %s: imbalance error: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("aps: %s: imbalance error: class '%s' has %d samples, at least %d required",
		e.Op, e.Class, e.Count, e.Required)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ImbalanceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("class", e.Class).
		Int("count", e.Count).
		Int("required", e.Required).
		Str("reason", e.Reason).
		Str("type", "ImbalanceError")
}

// NewImbalanceError は少数クラスのサンプル不足を表すImbalanceErrorを作成します。
func NewImbalanceError(op, class string, count, required int) error {
	return errors.WithStack(&ImbalanceError{Op: op, Class: class, Count: count, Required: required})
}

// NewImbalanceReasonError は理由のみを持つImbalanceErrorを作成します。
func NewImbalanceReasonError(op, reason string) error {
	return errors.WithStack(&ImbalanceError{Op: op, Reason: reason})
}

// GatewayError は外部システム（オブジェクトストレージ、ドキュメントストア、
// 実験管理サーバ）の呼び出しが失敗した場合のエラーです。原因は不透明にラップされます。
type GatewayError struct {
	Gateway string // "s3", "mongodb", "mlflow" など
	Op      string
	Target  string // bucket/key や db/collection
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("aps: %s gateway: %s %s: %v", e.Gateway, e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("aps: %s gateway: %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *GatewayError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("gateway", e.Gateway).
		Str("operation", e.Op).
		Str("target", e.Target).
		AnErr("cause", e.Err).
		Str("type", "GatewayError")
}

// NewGatewayError は新しいGatewayErrorを作成し、スタックトレースを付与します。
func NewGatewayError(gateway, op, target string, err error) error {
	return errors.WithStack(&GatewayError{Gateway: gateway, Op: op, Target: target, Err: err})
}

// ===========================================================================
//
//	推定器のエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("aps: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("aps: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は設定値やパラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("aps: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("aps: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aps: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("aps: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Cause はラップを剥がした最も内側のエラーを返します。
func Cause(err error) error {
	return errors.Cause(err)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
