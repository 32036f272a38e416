//go:build onnx
// +build onnx

package ner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

var ortInit struct {
	once sync.Once
	err  error
}

// ONNXModel runs a BERT-style token classification model through ONNX Runtime
type ONNXModel struct {
	name       string
	session    *ort.DynamicAdvancedSession
	inputNames []string
	tokenizer  *Tokenizer
	labels     []string
	logger     *logger.Logger
	mu         sync.Mutex
}

func newONNXModel(lang string, cfg config.ModelConfig, log *logger.Logger) (Model, error) {
	if cfg.Path == "" || cfg.VocabPath == "" || cfg.LabelsPath == "" {
		return nil, fmt.Errorf("%w: onnx model for %s needs path, vocab_path and labels_path", ErrModelNotFound, lang)
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelNotFound, err)
	}

	ortInit.once.Do(func() {
		if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
			ort.SetSharedLibraryPath(shlib)
		} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
			ort.SetSharedLibraryPath(shlib)
		}
		ortInit.err = ort.InitializeEnvironment()
	})
	if ortInit.err != nil {
		return nil, fmt.Errorf("onnx runtime environment init failed: %w", ortInit.err)
	}

	vocab, err := LoadVocab(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	labels, err := loadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect onnx model io: %w", err)
	}
	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("onnx model reports no outputs: %s", cfg.Path)
	}

	declared := make(map[string]bool, len(inputsInfo))
	for _, info := range inputsInfo {
		declared[info.Name] = true
	}
	var inputNames []string
	for _, name := range []string{"input_ids", "attention_mask", "token_type_ids"} {
		if declared[name] {
			inputNames = append(inputNames, name)
		}
	}
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("onnx model has no input_ids input: %s", cfg.Path)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.Path, inputNames, []string{outputsInfo[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx session creation failed: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = lang + "_onnx"
	}

	log.Info("ONNX token classifier ready",
		zap.String("language", lang),
		zap.String("model", cfg.Path),
		zap.Strings("inputs", inputNames),
		zap.Int("labels", len(labels)),
	)

	return &ONNXModel{
		name:       name,
		session:    session,
		inputNames: inputNames,
		tokenizer:  NewTokenizer(vocab, cfg.Lowercase, cfg.MaxLength),
		labels:     labels,
		logger:     log,
	}, nil
}

// Name returns the configured model name
func (m *ONNXModel) Name() string {
	return m.name
}

// Entities tokenizes text, runs the classifier and decodes BIO tags
func (m *ONNXModel) Entities(ctx context.Context, text string) ([]Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := m.tokenizer.Tokenize(text)
	seqLen := int64(len(input.InputIDs))
	shape := ort.NewShape(1, seqLen)

	byName := map[string][]int64{
		"input_ids":      input.InputIDs,
		"attention_mask": input.AttentionMask,
		"token_type_ids": input.TokenTypeIDs,
	}
	inputs := make([]ort.Value, 0, len(m.inputNames))
	for _, name := range m.inputNames {
		tensor, err := ort.NewTensor[int64](shape, byName[name])
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		defer tensor.Destroy()
		inputs = append(inputs, tensor)
	}

	outputs := make([]ort.Value, 1)
	m.mu.Lock()
	err := m.session.Run(inputs, outputs)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	outShape := logits.GetShape()
	if len(outShape) != 3 || outShape[1] != seqLen || int(outShape[2]) != len(m.labels) {
		return nil, fmt.Errorf("unexpected output shape %v", outShape)
	}

	labels := argmaxLabels(logits.GetData(), int(seqLen), len(m.labels), m.labels)
	if input.Truncated {
		m.logger.Debug("Input truncated for token classification", zap.Int("tokens", int(seqLen)))
	}
	return DecodeBIO(text, input.Tokens, labels), nil
}

// Close releases the session
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	return nil
}

func loadLabels(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer file.Close()

	var labels []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			labels = append(labels, label)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file is empty: %s", path)
	}
	return labels, nil
}
