package vision

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/HansolSon1113/MakerProject/internal/fsutil"
)

// tfliteIdent is the flatbuffer file identifier of a TensorFlow Lite model.
const tfliteIdent = "TFL3"

// Assets describes the classifier model. The model bytes stay on disk; the
// inference sidecar loads them. Validation here makes a bad deployment fail
// at startup instead of on the first frame.
type Assets struct {
	ModelPath   string
	ModelName   string
	ModelSize   int
	Labels      []string
	TargetIndex int
	InputWidth  int
	InputHeight int
	Output      OutputType
}

// OutputType is the tensor type of the model's output layer.
type OutputType string

const (
	OutputFloat32 OutputType = "float32"
	// OutputUint8 is a fully quantized model reporting scores as 0-255.
	OutputUint8 OutputType = "uint8"
)

func ParseOutputType(s string) (OutputType, error) {
	switch t := OutputType(s); t {
	case OutputFloat32, OutputUint8:
		return t, nil
	}
	return "", fmt.Errorf("unknown output type %q (want float32 or uint8)", s)
}

func (a *Assets) outputType() OutputType {
	if a.Output == "" {
		return OutputFloat32
	}
	return a.Output
}

// TargetLabel is the label whose probability is used as the zone score.
func (a *Assets) TargetLabel() string {
	return a.Labels[a.TargetIndex]
}

// LoadAssets checks the model file and parses the label file.
func LoadAssets(fsys fsutil.FileSystem, modelPath, labelsPath string, targetIndex, inputWidth, inputHeight int) (*Assets, error) {
	model, err := fsys.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	if len(model) < 8 || string(model[4:8]) != tfliteIdent {
		return nil, fmt.Errorf("model %s is not a TFLite flatbuffer", modelPath)
	}

	raw, err := fsys.ReadFile(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	labels, err := ParseLabels(raw)
	if err != nil {
		return nil, fmt.Errorf("labels %s: %w", labelsPath, err)
	}
	if targetIndex < 0 || targetIndex >= len(labels) {
		return nil, fmt.Errorf("target class index %d out of range for %d labels", targetIndex, len(labels))
	}
	if inputWidth <= 0 || inputHeight <= 0 {
		return nil, fmt.Errorf("invalid model input size %dx%d", inputWidth, inputHeight)
	}

	return &Assets{
		ModelPath:   modelPath,
		ModelName:   strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)),
		ModelSize:   len(model),
		Labels:      labels,
		TargetIndex: targetIndex,
		InputWidth:  inputWidth,
		InputHeight: inputHeight,
	}, nil
}

// ParseLabels reads one label per line. Teachable Machine style "0 name"
// prefixes are stripped. Blank lines are ignored.
func ParseLabels(raw []byte) ([]string, error) {
	var labels []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if idx, name, ok := strings.Cut(line, " "); ok && idx == strconv.Itoa(len(labels)) {
			line = strings.TrimSpace(name)
		}
		labels = append(labels, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("no labels")
	}
	return labels, nil
}
