package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	xdraw "golang.org/x/image/draw"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Classifier returns the target-class confidence in [0,1] for one zone.
type Classifier interface {
	Classify(ctx context.Context, zone image.Image) (float64, error)
}

// classifyMethod is the sidecar's unary RPC. The request is a BytesValue of
// packed RGB pixels at the model input size; the response is a ListValue of
// per-class scores in label order.
const classifyMethod = "/binbot.vision.v1.Classifier/Classify"

// GRPCClassifier calls the TFLite inference sidecar.
type GRPCClassifier struct {
	conn   grpc.ClientConnInterface
	closer func() error
	assets *Assets
}

// DialClassifier connects to the sidecar at addr.
func DialClassifier(addr string, assets *Assets) (*GRPCClassifier, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewGRPCClassifier(conn, assets)
	c.closer = conn.Close
	return c, nil
}

// NewGRPCClassifier wraps an existing connection.
func NewGRPCClassifier(conn grpc.ClientConnInterface, assets *Assets) *GRPCClassifier {
	return &GRPCClassifier{conn: conn, assets: assets}
}

func (c *GRPCClassifier) Classify(ctx context.Context, zone image.Image) (float64, error) {
	w, h := c.assets.InputWidth, c.assets.InputHeight
	ctx = metadata.AppendToOutgoingContext(ctx,
		"x-model", c.assets.ModelName,
		"x-input-width", strconv.Itoa(w),
		"x-input-height", strconv.Itoa(h),
		"x-output-type", string(c.assets.outputType()),
	)

	req := wrapperspb.Bytes(PackRGB(Resize(zone, w, h)))
	resp := &structpb.ListValue{}
	if err := c.conn.Invoke(ctx, classifyMethod, req, resp); err != nil {
		return 0, fmt.Errorf("classify: %w", err)
	}

	scores := DecodeScores(resp, c.assets.outputType())
	if c.assets.TargetIndex >= len(scores) {
		return 0, fmt.Errorf("classify: got %d scores, want index %d", len(scores), c.assets.TargetIndex)
	}
	return scores[c.assets.TargetIndex], nil
}

// Close releases the connection.
func (c *GRPCClassifier) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// DecodeScores converts a sidecar response into probabilities in [0,1].
// Uint8 outputs are rescaled from 0-255. Negative and non-finite values read
// as 0.
func DecodeScores(resp *structpb.ListValue, t OutputType) []float64 {
	scale := 1.0
	if t == OutputUint8 {
		scale = 255
	}
	out := make([]float64, len(resp.GetValues()))
	for i, v := range resp.GetValues() {
		f := v.GetNumberValue()
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			f = 0
		}
		out[i] = math.Min(f/scale, 1)
	}
	return out
}

// Resize scales img to w x h.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// PackRGB drops the alpha channel.
func PackRGB(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+2 < len(row); i += 4 {
			out = append(out, row[i], row[i+1], row[i+2])
		}
	}
	return out
}

// LumaClassifier scores a zone by its mean brightness. It needs no model and
// pairs with SyntheticCamera in -dev runs.
type LumaClassifier struct{}

func (LumaClassifier) Classify(_ context.Context, zone image.Image) (float64, error) {
	b := zone.Bounds()
	if b.Empty() {
		return 0, nil
	}
	const stride = 4
	var sum, n float64
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			sum += float64(color.GrayModel.Convert(zone.At(x, y)).(color.Gray).Y)
			n++
		}
	}
	return sum / n / 255, nil
}
