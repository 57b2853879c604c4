package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// registerNNOps adds convolution, pooling, normalization and resize operators.
// Spatial operators accept NCHW tensors only.
func (r *Registry) registerNNOps() {
	r.Register("Conv", handleConv)
	r.Register("ConvTranspose", handleConvTranspose)
	r.Register("MaxPool", poolHandler("maxPool", true))
	r.Register("AveragePool", poolHandler("averagePool", false))
	r.Register("GlobalAveragePool", globalPoolHandler("globalAveragePool", false))
	r.Register("GlobalMaxPool", globalPoolHandler("globalMaxPool", true))
	r.Register("BatchNormalization", handleBatchNorm)
	r.Register("Resize", handleResize)
	r.Register("Upsample", handleResize)
}

// window describes a 2D sliding window over an NCHW input.
type window struct {
	kh, kw         int
	sh, sw         int
	dh, dw         int
	padTop, padLft int
	outH, outW     int
}

// newWindow resolves kernel, stride, dilation and padding attributes.
func newWindow(node *Node, h, w, kh, kw int) (window, error) {
	win := window{kh: kh, kw: kw, sh: 1, sw: 1, dh: 1, dw: 1}
	if s := GetAttrInts(node, "strides"); len(s) == 2 {
		win.sh, win.sw = int(s[0]), int(s[1])
	}
	if d := GetAttrInts(node, "dilations"); len(d) == 2 {
		win.dh, win.dw = int(d[0]), int(d[1])
	}
	if win.sh <= 0 || win.sw <= 0 || win.dh <= 0 || win.dw <= 0 {
		return win, fmt.Errorf("strides and dilations must be positive")
	}
	effH, effW := (kh-1)*win.dh+1, (kw-1)*win.dw+1

	var padH, padW int
	autoPad := GetAttrString(node, "auto_pad", "NOTSET")
	switch autoPad {
	case "NOTSET":
		pads := GetAttrInts(node, "pads")
		if len(pads) == 4 {
			win.padTop, win.padLft = int(pads[0]), int(pads[1])
			padH, padW = int(pads[0]+pads[2]), int(pads[1]+pads[3])
		} else if len(pads) != 0 {
			return win, fmt.Errorf("expected 4 pads, got %d", len(pads))
		}
		win.outH = (h+padH-effH)/win.sh + 1
		win.outW = (w+padW-effW)/win.sw + 1
	case "VALID":
		win.outH = (h-effH)/win.sh + 1
		win.outW = (w-effW)/win.sw + 1
	case "SAME_UPPER", "SAME_LOWER":
		win.outH = (h + win.sh - 1) / win.sh
		win.outW = (w + win.sw - 1) / win.sw
		padH = max(0, (win.outH-1)*win.sh+effH-h)
		padW = max(0, (win.outW-1)*win.sw+effW-w)
		win.padTop, win.padLft = padH/2, padW/2
		if autoPad == "SAME_LOWER" {
			win.padTop, win.padLft = padH-padH/2, padW-padW/2
		}
	default:
		return win, fmt.Errorf("unsupported auto_pad %q", autoPad)
	}

	if win.outH <= 0 || win.outW <= 0 {
		return win, fmt.Errorf("window %dx%d does not fit input %dx%d", kh, kw, h, w)
	}
	return win, nil
}

func nchw(op string, x *tensor.RawTensor) (n, c, h, w int, err error) {
	s := x.Shape()
	if len(s) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("%s: expected NCHW input, got shape %v", op, s)
	}
	return s[0], s[1], s[2], s[3], nil
}

func handleConv(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("conv", inputs, 2, 3); err != nil {
		return nil, err
	}
	x, wt := inputs[0], inputs[1]
	n, c, h, w, err := nchw("conv", x)
	if err != nil {
		return nil, err
	}
	ws := wt.Shape()
	if len(ws) != 4 {
		return nil, fmt.Errorf("conv: expected 4D weights, got %v", ws)
	}
	group := int(GetAttrInt(node, "group", 1))
	m, cPerG, kh, kw := ws[0], ws[1], ws[2], ws[3]
	if group <= 0 || c != cPerG*group || m%group != 0 {
		return nil, fmt.Errorf("conv: %d input channels incompatible with weights %v and group %d", c, ws, group)
	}
	win, err := newWindow(node, h, w, kh, kw)
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}

	xv, wv := x.Float64s(), wt.Float64s()
	var bias []float64
	if b := optional(inputs, 2); b != nil {
		bias = b.Float64s()
	}

	mPerG := m / group
	out := make([]float64, n*m*win.outH*win.outW)
	for b := 0; b < n; b++ {
		for oc := 0; oc < m; oc++ {
			g := oc / mPerG
			base := (b*m + oc) * win.outH * win.outW
			for oy := 0; oy < win.outH; oy++ {
				for ox := 0; ox < win.outW; ox++ {
					sum := 0.0
					if bias != nil {
						sum = bias[oc]
					}
					for ic := 0; ic < cPerG; ic++ {
						xc := (b*c + g*cPerG + ic) * h * w
						wc := (oc*cPerG + ic) * kh * kw
						for ky := 0; ky < kh; ky++ {
							iy := oy*win.sh - win.padTop + ky*win.dh
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*win.sw - win.padLft + kx*win.dw
								if ix < 0 || ix >= w {
									continue
								}
								sum += xv[xc+iy*w+ix] * wv[wc+ky*kw+kx]
							}
						}
					}
					out[base+oy*win.outW+ox] = sum
				}
			}
		}
	}

	result, err := tensor.FromFloat64s(tensor.Shape{n, m, win.outH, win.outW}, x.DType(), out)
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}
	return one(result), nil
}

// handleConvTranspose scatters each input pixel through the kernel (group 1).
func handleConvTranspose(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("convTranspose", inputs, 2, 3); err != nil {
		return nil, err
	}
	x, wt := inputs[0], inputs[1]
	n, c, h, w, err := nchw("convTranspose", x)
	if err != nil {
		return nil, err
	}
	ws := wt.Shape()
	if len(ws) != 4 || ws[0] != c {
		return nil, fmt.Errorf("convTranspose: weights %v incompatible with %d input channels", ws, c)
	}
	if GetAttrInt(node, "group", 1) != 1 {
		return nil, fmt.Errorf("convTranspose: grouped transpose convolution is not supported")
	}
	m, kh, kw := ws[1], ws[2], ws[3]

	sh, sw := 1, 1
	if s := GetAttrInts(node, "strides"); len(s) == 2 {
		sh, sw = int(s[0]), int(s[1])
	}
	var pads [4]int
	if p := GetAttrInts(node, "pads"); len(p) == 4 {
		for i := range pads {
			pads[i] = int(p[i])
		}
	}
	var outPad [2]int
	if p := GetAttrInts(node, "output_padding"); len(p) == 2 {
		outPad[0], outPad[1] = int(p[0]), int(p[1])
	}
	outH := (h-1)*sh + kh - pads[0] - pads[2] + outPad[0]
	outW := (w-1)*sw + kw - pads[1] - pads[3] + outPad[1]
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("convTranspose: non-positive output size %dx%d", outH, outW)
	}

	xv, wv := x.Float64s(), wt.Float64s()
	out := make([]float64, n*m*outH*outW)
	if b := optional(inputs, 2); b != nil {
		bias := b.Float64s()
		for i := range out {
			out[i] = bias[(i/(outH*outW))%m]
		}
	}
	for b := 0; b < n; b++ {
		for ic := 0; ic < c; ic++ {
			for iy := 0; iy < h; iy++ {
				for ix := 0; ix < w; ix++ {
					v := xv[((b*c+ic)*h+iy)*w+ix]
					for oc := 0; oc < m; oc++ {
						wc := (ic*m + oc) * kh * kw
						oBase := (b*m + oc) * outH * outW
						for ky := 0; ky < kh; ky++ {
							oy := iy*sh + ky - pads[0]
							if oy < 0 || oy >= outH {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ox := ix*sw + kx - pads[1]
								if ox < 0 || ox >= outW {
									continue
								}
								out[oBase+oy*outW+ox] += v * wv[wc+ky*kw+kx]
							}
						}
					}
				}
			}
		}
	}

	result, err := tensor.FromFloat64s(tensor.Shape{n, m, outH, outW}, x.DType(), out)
	if err != nil {
		return nil, fmt.Errorf("convTranspose: %w", err)
	}
	return one(result), nil
}

func poolHandler(name string, isMax bool) OpHandler {
	return func(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := wantInputs(name, inputs, 1, 1); err != nil {
			return nil, err
		}
		x := inputs[0]
		n, c, h, w, err := nchw(name, x)
		if err != nil {
			return nil, err
		}
		k := GetAttrInts(node, "kernel_shape")
		if len(k) != 2 {
			return nil, fmt.Errorf("%s: expected 2D kernel_shape, got %v", name, k)
		}
		win, err := newWindow(node, h, w, int(k[0]), int(k[1]))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		countPad := GetAttrInt(node, "count_include_pad", 0) != 0

		xv := x.Float64s()
		out := make([]float64, n*c*win.outH*win.outW)
		for nc := 0; nc < n*c; nc++ {
			src := xv[nc*h*w : (nc+1)*h*w]
			dst := out[nc*win.outH*win.outW:]
			for oy := 0; oy < win.outH; oy++ {
				for ox := 0; ox < win.outW; ox++ {
					acc, count := 0.0, 0
					if isMax {
						acc = math.Inf(-1)
					}
					for ky := 0; ky < win.kh; ky++ {
						iy := oy*win.sh - win.padTop + ky*win.dh
						for kx := 0; kx < win.kw; kx++ {
							ix := ox*win.sw - win.padLft + kx*win.dw
							if iy < 0 || iy >= h || ix < 0 || ix >= w {
								if countPad {
									count++
								}
								continue
							}
							v := src[iy*w+ix]
							if isMax {
								acc = math.Max(acc, v)
							} else {
								acc += v
							}
							count++
						}
					}
					if !isMax && count > 0 {
						acc /= float64(count)
					}
					dst[oy*win.outW+ox] = acc
				}
			}
		}

		result, err := tensor.FromFloat64s(tensor.Shape{n, c, win.outH, win.outW}, x.DType(), out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return one(result), nil
	}
}

func globalPoolHandler(name string, isMax bool) OpHandler {
	return func(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := wantInputs(name, inputs, 1, 1); err != nil {
			return nil, err
		}
		x := inputs[0]
		s := x.Shape()
		if len(s) < 3 {
			return nil, fmt.Errorf("%s: expected rank >= 3, got %v", name, s)
		}
		spatial := s[2:].NumElements()
		xv := x.Float64s()
		out := make([]float64, s[0]*s[1])
		for i := range out {
			block := xv[i*spatial : (i+1)*spatial]
			acc := 0.0
			if isMax {
				acc = math.Inf(-1)
			}
			for _, v := range block {
				if isMax {
					acc = math.Max(acc, v)
				} else {
					acc += v
				}
			}
			if !isMax {
				acc /= float64(spatial)
			}
			out[i] = acc
		}

		outShape := tensor.Shape{s[0], s[1]}
		for range s[2:] {
			outShape = append(outShape, 1)
		}
		result, err := tensor.FromFloat64s(outShape, x.DType(), out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return one(result), nil
	}
}

// handleBatchNorm applies inference-mode normalization with running statistics.
func handleBatchNorm(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("batchNormalization", inputs, 5, 5); err != nil {
		return nil, err
	}
	x := inputs[0]
	s := x.Shape()
	if len(s) < 2 {
		return nil, fmt.Errorf("batchNormalization: expected rank >= 2, got %v", s)
	}
	eps := float64(GetAttrFloat(node, "epsilon", 1e-5))
	scale, bias := inputs[1].Float64s(), inputs[2].Float64s()
	mean, variance := inputs[3].Float64s(), inputs[4].Float64s()
	c := s[1]
	if len(scale) != c || len(bias) != c || len(mean) != c || len(variance) != c {
		return nil, fmt.Errorf("batchNormalization: parameters do not match %d channels", c)
	}

	inner := s[2:].NumElements()
	vals := x.Float64s()
	for i := range vals {
		ch := (i / inner) % c
		vals[i] = scale[ch]*(vals[i]-mean[ch])/math.Sqrt(variance[ch]+eps) + bias[ch]
	}

	result, err := tensor.FromFloat64s(s, x.DType(), vals)
	if err != nil {
		return nil, fmt.Errorf("batchNormalization: %w", err)
	}
	return one(result), nil
}

// handleResize serves Resize and Upsample on NCHW inputs with nearest or
// (bi)linear interpolation. Output size comes from sizes, else scales.
func handleResize(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs(node.OpType, inputs, 1, 4); err != nil {
		return nil, err
	}
	x := inputs[0]
	n, c, h, w, err := nchw(node.OpType, x)
	if err != nil {
		return nil, err
	}

	outH, outW := h, w
	switch {
	case optional(inputs, 3) != nil && inputs[3].NumElements() == 4:
		sizes, err := ints(inputs[3])
		if err != nil {
			return nil, fmt.Errorf("%s: sizes: %w", node.OpType, err)
		}
		outH, outW = sizes[2], sizes[3]
	default:
		// Upsample carries scales at index 1, Resize at index 2.
		var scales *tensor.RawTensor
		if node.OpType == "Upsample" {
			scales = optional(inputs, 1)
		} else {
			scales = optional(inputs, 2)
		}
		if scales == nil || scales.NumElements() != 4 {
			return nil, fmt.Errorf("%s: need 4 scales or 4 sizes", node.OpType)
		}
		sv := scales.Float64s()
		outH, outW = int(math.Floor(float64(h)*sv[2])), int(math.Floor(float64(w)*sv[3]))
	}
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%s: non-positive output size %dx%d", node.OpType, outH, outW)
	}

	mode := GetAttrString(node, "mode", "nearest")
	alignCorners := GetAttrString(node, "coordinate_transformation_mode", "half_pixel") == "align_corners"
	sy, sx := float64(h)/float64(outH), float64(w)/float64(outW)
	src := func(o int, scale float64, in, out int) float64 {
		if alignCorners {
			if out == 1 {
				return 0
			}
			return float64(o) * float64(in-1) / float64(out-1)
		}
		return (float64(o)+0.5)*scale - 0.5
	}

	xv := x.Float64s()
	out := make([]float64, n*c*outH*outW)
	for nc := 0; nc < n*c; nc++ {
		plane := xv[nc*h*w : (nc+1)*h*w]
		dst := out[nc*outH*outW:]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				var v float64
				if mode == "linear" {
					fy := math.Max(0, math.Min(src(oy, sy, h, outH), float64(h-1)))
					fx := math.Max(0, math.Min(src(ox, sx, w, outW), float64(w-1)))
					y0, x0 := int(fy), int(fx)
					y1, x1 := min(y0+1, h-1), min(x0+1, w-1)
					ty, tx := fy-float64(y0), fx-float64(x0)
					top := plane[y0*w+x0]*(1-tx) + plane[y0*w+x1]*tx
					bot := plane[y1*w+x0]*(1-tx) + plane[y1*w+x1]*tx
					v = top*(1-ty) + bot*ty
				} else {
					iy := min(int(math.Floor(float64(oy)*sy)), h-1)
					ix := min(int(math.Floor(float64(ox)*sx)), w-1)
					v = plane[iy*w+ix]
				}
				dst[oy*outW+ox] = v
			}
		}
	}

	result, err := tensor.FromFloat64s(tensor.Shape{n, c, outH, outW}, x.DType(), out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.OpType, err)
	}
	return one(result), nil
}
