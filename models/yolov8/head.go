package yolov8

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

// BoxWidth is the column count of a DFL box branch: four edges of DFLBins bins.
const BoxWidth = 4 * postprocess.DFLBins

// HeadKind selects the branches a split head carries per stride.
type HeadKind int

const (
	// HeadDetect carries boxes and class scores.
	HeadDetect HeadKind = iota
	// HeadPose carries boxes, one person score and keypoints.
	HeadPose
	// HeadSegment carries boxes, class scores and mask coefficients, plus one prototype tensor.
	HeadSegment
)

func (k HeadKind) String() string {
	switch k {
	case HeadPose:
		return "pose"
	case HeadSegment:
		return "segment"
	}
	return "detect"
}

// Level is one stride of a split head. The branch fields are output indices.
type Level struct {
	Stride  int
	Anchors int
	Boxes   int
	Scores  int
	// Extra is the keypoint or coefficient branch, -1 for detection heads.
	Extra int
}

// Head is a parsed split head: per stride output tensors instead of one fused tensor.
type Head struct {
	Kind HeadKind
	// Size is the side of the square input.
	Size int
	Type inference.ElementType
	// Classes is the score branch width.
	Classes int
	// ExtraWidth is the keypoint or coefficient branch width.
	ExtraWidth int
	// Proto is the output index of the segmentation prototypes, -1 otherwise.
	Proto  int
	Levels []Level
}

type role int

const (
	roleScores role = iota
	roleExtra
	roleBoxes
)

// Role orders tried for the tensors of one stride, taken in output index order. The first
// order every width agrees with wins, so when two branches have the same width the lower
// index is read as scores.
var (
	pairOrders   = [][]role{{roleScores, roleBoxes}, {roleBoxes, roleScores}}
	tripleOrders = [][]role{
		{roleScores, roleExtra, roleBoxes},
		{roleScores, roleBoxes, roleExtra},
		{roleExtra, roleScores, roleBoxes},
		{roleExtra, roleBoxes, roleScores},
		{roleBoxes, roleScores, roleExtra},
		{roleBoxes, roleExtra, roleScores},
	}
)

// ParseHead matches the engine outputs against a split head of the given kind.
//
// Every output must belong to the head: for each stride in postprocess.DefaultStrides there is
// one {1, n, w} tensor per branch, n = (size/stride)^2, in any output order. Segmentation heads
// add one {1, mh, mw, M} prototype tensor.
//
// Arguments:
//   - e: A loaded engine.
//   - kind: The expected branches.
//
// Returns:
//   - *Head: The branch assignment.
//   - error: inference.ErrInvalidArgument when the outputs do not form the head.
func ParseHead(e inference.Engine, kind HeadKind) (*Head, error) {
	if e.InputCount() != 1 {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "%d inputs", e.InputCount())
	}
	spec, err := model.ParseInput(e, 0)
	if err != nil {
		return nil, err
	}
	size, err := spec.Square()
	if err != nil {
		return nil, err
	}

	h := &Head{Kind: kind, Size: size, Proto: -1}
	branches := 2
	if kind != HeadDetect {
		branches = 3
	}

	byAnchors := make(map[int][]int)
	widths := make(map[int]int)
	for i := 0; i < e.OutputCount(); i++ {
		t, err := e.Output(i)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			h.Type = t.Type
		} else if t.Type != h.Type {
			return nil, errors.Wrapf(inference.ErrInvalidArgument, "output %d is %s, output 0 is %s", i, t.Type, h.Type)
		}

		s := t.Shape
		if kind == HeadSegment && s.Rank() == 4 {
			if h.Proto >= 0 || s.Dim(0) != 1 {
				return nil, errors.Wrapf(inference.ErrInvalidArgument, "prototype output %d shape %s", i, s)
			}
			h.Proto = i
			continue
		}
		if s.Rank() != 3 || s.Dim(0) != 1 || s.Dim(2) <= 0 {
			return nil, errors.Wrapf(inference.ErrInvalidArgument, "output %d shape %s", i, s)
		}
		byAnchors[s.Dim(1)] = append(byAnchors[s.Dim(1)], i)
		widths[i] = s.Dim(2)
	}
	if kind == HeadSegment {
		if h.Proto < 0 {
			return nil, errors.Wrap(inference.ErrInvalidArgument, "no prototype output")
		}
		ps, _ := e.OutputShape(h.Proto)
		h.ExtraWidth = ps.Dim(3)
	}
	if want := branches * len(postprocess.DefaultStrides); len(widths) != want {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "%d head outputs, want %d", len(widths), want)
	}

	for _, stride := range postprocess.DefaultStrides {
		n := (size / stride) * (size / stride)
		members := byAnchors[n]
		if n == 0 || len(members) != branches {
			return nil, errors.Wrapf(inference.ErrInvalidArgument, "stride %d: %d outputs with %d anchors", stride, len(members), n)
		}
		lvl, err := h.assign(stride, n, members, widths)
		if err != nil {
			return nil, err
		}
		h.Levels = append(h.Levels, lvl)
	}
	return h, nil
}

func (h *Head) fits(r role, width int) bool {
	switch r {
	case roleBoxes:
		return width == BoxWidth
	case roleScores:
		if h.Kind == HeadPose {
			return width == 1
		}
		return h.Classes == 0 || width == h.Classes
	default:
		if h.Kind == HeadPose {
			return width%3 == 0 && (h.ExtraWidth == 0 || width == h.ExtraWidth)
		}
		return width == h.ExtraWidth
	}
}

// assign picks the branch roles of one stride. Widths seen at the first stride fix the class
// and extra widths for the others.
func (h *Head) assign(stride, n int, members []int, widths map[int]int) (Level, error) {
	orders := pairOrders
	if len(members) == 3 {
		orders = tripleOrders
	}
	for _, order := range orders {
		ok := true
		for k, r := range order {
			if !h.fits(r, widths[members[k]]) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		lvl := Level{Stride: stride, Anchors: n, Extra: -1}
		for k, r := range order {
			switch r {
			case roleBoxes:
				lvl.Boxes = members[k]
			case roleScores:
				lvl.Scores = members[k]
				h.Classes = widths[members[k]]
			default:
				lvl.Extra = members[k]
				h.ExtraWidth = widths[members[k]]
			}
		}
		return lvl, nil
	}
	return Level{}, errors.Wrapf(inference.ErrInvalidArgument, "stride %d: no %s branch assignment", stride, h.Kind)
}

// Candidate is one anchor that passed the score threshold.
type Candidate struct {
	// Box is normalized against the model input.
	Box    postprocess.BoundingBox
	Level  int
	Anchor int
}

// Decode thresholds the score branches and decodes the boxes of the anchors that pass.
//
// Scores are compared in the raw domain first; the sigmoid is only evaluated for anchors
// above the raw cutoff.
//
// Arguments:
//   - e: The engine after Run.
//   - threshold: The score cutoff; kept scores are strictly above it.
//   - emit: Receives every candidate, in stride then anchor order.
//
// Returns:
//   - error: An error if an output cannot be read.
func (h *Head) Decode(e inference.Engine, threshold float32, emit func(Candidate)) error {
	if err := model.CheckDecodable(h.Type); err != nil {
		return err
	}
	switch h.Type {
	case inference.Int8:
		return decode[int8](h, e, threshold, emit)
	case inference.Uint8:
		return decode[uint8](h, e, threshold, emit)
	default:
		return decode[float32](h, e, threshold, emit)
	}
}

func decode[T model.Raw](h *Head, e inference.Engine, threshold float32, emit func(Candidate)) error {
	anchors := postprocess.GenerateAnchors(h.Size, h.Size, postprocess.DefaultStrides)
	for li, lvl := range h.Levels {
		st, err := e.Output(lvl.Scores)
		if err != nil {
			return err
		}
		bt, err := e.Output(lvl.Boxes)
		if err != nil {
			return err
		}
		scores, err := inference.View[T](st)
		if err != nil {
			return err
		}
		boxes, err := inference.View[T](bt)
		if err != nil {
			return err
		}
		if len(scores) < lvl.Anchors*h.Classes || len(boxes) < lvl.Anchors*BoxWidth {
			return errors.Wrapf(inference.ErrInvalidArgument, "stride %d outputs are short", lvl.Stride)
		}

		cut := postprocess.RawThreshold(threshold, st.Quant, h.Type.Quantized())
		grid := anchors.Anchors[li]
		for j := 0; j < lvl.Anchors; j++ {
			label, raw := postprocess.ArgMax(scores[j*h.Classes : (j+1)*h.Classes])
			if !(float32(raw) > cut) {
				continue
			}
			score := postprocess.Sigmoid(postprocess.Dequantize(raw, st.Quant))
			if !(score > threshold) {
				continue
			}

			var d [4]float32
			row := boxes[j*BoxWidth : (j+1)*BoxWidth]
			for k := range d {
				d[k] = postprocess.DFL(row[k*postprocess.DFLBins:(k+1)*postprocess.DFLBins], bt.Quant)
			}
			emit(Candidate{
				Box:    postprocess.DecodeDFLBox(grid[j], float32(lvl.Stride), d, h.Size, h.Size, score, label),
				Level:  li,
				Anchor: j,
			})
		}
	}
	return nil
}

// Anchor returns the anchor center of a candidate in input pixels.
func (h *Head) Anchor(c Candidate) postprocess.Anchor {
	return postprocess.GenerateAnchors(h.Size, h.Size, postprocess.DefaultStrides).Anchors[c.Level][c.Anchor]
}
