// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// scikit-learn/statsmodelsの警告・例外システムにインスパイアされており、構造化されたエラー情報を提供します。
package errors

import (
	"fmt"
	"log"
	"strings"
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
		log.Printf("GoChoice-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はGoChoiceライブラリ全体の警告ハンドラを設定します。
// これにより、ConvergenceWarningなどのカスタム警告の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
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
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	// zerologが設定されている場合は優先的に使用
	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	// フォールバック: 従来のハンドラ
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

// DataConversionWarning はデータの型が暗黙的に変換された場合に発生する警告です。
// 例えば、Stataファイルの数値ID列が文字列IDへ変換された場合など。
type DataConversionWarning struct {
	FromType string
	ToType   string
	Reason   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("data converted from %s to %s. Reason: %s", w.FromType, w.ToType, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Str("reason", w.Reason).
		Str("type", "DataConversionWarning")
}

// NewDataConversionWarning は新しいDataConversionWarningを作成します。
func NewDataConversionWarning(from, to, reason string) *DataConversionWarning {
	return &DataConversionWarning{FromType: from, ToType: to, Reason: reason}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、単一チェーンのトレースでR-hat（potential scale reduction）を要求した場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Summary` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("gochoice: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
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
	return fmt.Sprintf("gochoice: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
// `ValueError`よりも具体的なバリデーションロジックの失敗を示します。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gochoice: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
// 例えば、CSVの選択列に0/1以外の値が含まれていた場合など。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("gochoice: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError は推定モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gochoice: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("gochoice: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
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
//	離散選好モデル特有のエラー型
//
// ===========================================================================

// MalformedPanelError は選好パネルのタスク構造が不正な場合のエラーです。
// 各タスクはちょうどJ個の選択肢を持ち、そのうちちょうど1つが選択されている必要があります。
type MalformedPanelError struct {
	RespondentID string
	TaskID       string
	Alternatives int // タスク内で観測された選択肢数
	Chosen       int // タスク内で選択フラグが立っていた行数
	Reason       string
}

func (e *MalformedPanelError) Error() string {
	return fmt.Sprintf("gochoice: malformed panel for respondent %q task %q: %s", e.RespondentID, e.TaskID, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MalformedPanelError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("respondent_id", e.RespondentID).
		Str("task_id", e.TaskID).
		Int("alternatives", e.Alternatives).
		Int("chosen", e.Chosen).
		Str("reason", e.Reason).
		Str("type", "MalformedPanelError")
}

// NewMalformedPanelError は新しいMalformedPanelErrorを作成し、スタックトレースを付与します。
func NewMalformedPanelError(respondentID, taskID string, alternatives, chosen int, reason string) error {
	err := &MalformedPanelError{
		RespondentID: respondentID,
		TaskID:       taskID,
		Alternatives: alternatives,
		Chosen:       chosen,
		Reason:       reason,
	}
	return errors.WithStack(err)
}

// UnknownLevelError は効用設計で宣言されていないカテゴリ水準が出現した場合のエラーです。
type UnknownLevelError struct {
	Attribute string
	Level     string
	Known     []string // 宣言済みの水準
}

func (e *UnknownLevelError) Error() string {
	return fmt.Sprintf("gochoice: unknown level %q for attribute %q (declared levels: %s)",
		e.Level, e.Attribute, strings.Join(e.Known, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnknownLevelError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("attribute", e.Attribute).
		Str("level", e.Level).
		Strs("known_levels", e.Known).
		Str("type", "UnknownLevelError")
}

// NewUnknownLevelError は新しいUnknownLevelErrorを作成し、スタックトレースを付与します。
func NewUnknownLevelError(attribute, level string, known []string) error {
	err := &UnknownLevelError{Attribute: attribute, Level: level, Known: known}
	return errors.WithStack(err)
}

// OptimizationDivergedError は最尤推定の最適化が収束しなかった場合のエラーです。
// ConvergenceWarningと異なり、結果が信頼できないため処理を中断すべき状況を示します。
type OptimizationDivergedError struct {
	Method     string // 使用した最適化手法（例: "BFGS"）
	Iterations int
	Status     string // 最適化ルーチンが報告した終了ステータス
	Message    string
}

func (e *OptimizationDivergedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gochoice: %s optimization diverged after %d iterations (status: %s): %s",
			e.Method, e.Iterations, e.Status, e.Message)
	}
	return fmt.Sprintf("gochoice: %s optimization diverged after %d iterations (status: %s)",
		e.Method, e.Iterations, e.Status)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *OptimizationDivergedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("method", e.Method).
		Int("iterations", e.Iterations).
		Str("status", e.Status).
		Str("message", e.Message).
		Str("type", "OptimizationDivergedError")
}

// NewOptimizationDivergedError は新しいOptimizationDivergedErrorを作成し、スタックトレースを付与します。
func NewOptimizationDivergedError(method string, iterations int, status, message string) error {
	err := &OptimizationDivergedError{Method: method, Iterations: iterations, Status: status, Message: message}
	return errors.WithStack(err)
}

// SamplerStalledError はMCMCサンプラーのステップ幅が数値的にゼロへ崩壊した、
// または発散した場合のエラーです。縮退したトレースを黙って返す代わりに発生します。
type SamplerStalledError struct {
	Chain     int
	Iteration int
	StepSize  float64
	Reason    string
}

func (e *SamplerStalledError) Error() string {
	return fmt.Sprintf("gochoice: sampler stalled in chain %d at iteration %d (step size %.3g): %s",
		e.Chain, e.Iteration, e.StepSize, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SamplerStalledError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("chain", e.Chain).
		Int("iteration", e.Iteration).
		Float64("step_size", e.StepSize).
		Str("reason", e.Reason).
		Str("type", "SamplerStalledError")
}

// NewSamplerStalledError は新しいSamplerStalledErrorを作成し、スタックトレースを付与します。
func NewSamplerStalledError(chain, iteration int, stepSize float64, reason string) error {
	err := &SamplerStalledError{Chain: chain, Iteration: iteration, StepSize: stepSize, Reason: reason}
	return errors.WithStack(err)
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf、オーバーフロー、アンダーフローなどを検出します。
// 尤度計算では不安定な値をクリップせず、このエラーで即座に中断します。
type NumericalInstabilityError struct {
	Operation string                 // 発生した操作（例: "log_likelihood", "gradient"）
	Values    []float64              // 問題のある値
	Context   map[string]interface{} // デバッグ用の追加コンテキスト情報
	Iteration int                    // 発生したイテレーション番号
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("gochoice: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
		Context:   make(map[string]interface{}),
	}
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

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)
