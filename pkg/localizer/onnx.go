package localizer

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/config"
	"cephalyzer/pkg/heatmap"
)

// ONNX runs a trained encoder/decoder network through ONNX Runtime. The
// exported model takes a 1x1xHxW float32 image and emits a 1x19xhxw response
// stack. Which backbone and refinement modules were used during training is
// invisible here; any export satisfying the tensor contract plugs in.
type ONNX struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	inW, inH   int
	mapW, mapH int

	// The session owns fixed input/output tensors, so concurrent Predict
	// calls are serialized.
	mu sync.Mutex
}

// NewONNX loads the model and allocates the fixed-shape session tensors.
func NewONNX(cfg *config.Config) (*ONNX, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inW, inH := cfg.Image.Width, cfg.Image.Height
	mapW, mapH := mapDims(cfg)

	inputShape := ort.NewShape(1, 1, int64(inH), int64(inW))
	outputShape := ort.NewShape(1, models.NumLandmarks, int64(mapH), int64(mapW))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.Localizer.ModelPath,
		[]string{"input"}, []string{"heatmaps"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNX{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inW:          inW,
		inH:          inH,
		mapW:         mapW,
		mapH:         mapH,
	}, nil
}

// Predict runs one forward pass and unpacks the response stack.
func (o *ONNX) Predict(img *models.Image) (heatmap.Stack, error) {
	if err := checkShape(img, o.inW, o.inH); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	in := o.inputTensor.GetData()
	for i, v := range img.Data {
		in[i] = float32(v)
	}

	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := o.outputTensor.GetData()
	stack := heatmap.NewStack(o.mapW, o.mapH)
	size := o.mapW * o.mapH
	for c := 0; c < models.NumLandmarks; c++ {
		m := stack[c]
		for i := 0; i < size; i++ {
			v := float64(out[c*size+i])
			// Response maps are non-negative by contract
			if v < 0 {
				v = 0
			}
			m.Data[i] = v
		}
	}
	return stack, nil
}

// MapSize returns the response-map resolution.
func (o *ONNX) MapSize() (int, int) {
	return o.mapW, o.mapH
}

// Close destroys the session and tensors.
func (o *ONNX) Close() error {
	if o.inputTensor != nil {
		o.inputTensor.Destroy()
	}
	if o.outputTensor != nil {
		o.outputTensor.Destroy()
	}
	if o.session != nil {
		o.session.Destroy()
	}
	ort.DestroyEnvironment()
	return nil
}
