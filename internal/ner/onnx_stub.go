//go:build !onnx
// +build !onnx

package ner

import (
	"fmt"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

// Stub used when the 'onnx' build tag is not set.
func newONNXModel(lang string, _ config.ModelConfig, _ *logger.Logger) (Model, error) {
	return nil, fmt.Errorf("%w: onnx support not compiled in (language %s)", ErrModelNotFound, lang)
}
