package models

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Labels maps decoder labels to class names.
type Labels []string

// Name returns the class name of label, or the label number when it has no name.
func (l Labels) Name(label int) string {
	if label >= 0 && label < len(l) {
		return l[label]
	}
	return strconv.Itoa(label)
}

// Index returns the label of name, or -1.
func (l Labels) Index(name string) int {
	for i, n := range l {
		if n == name {
			return i
		}
	}
	return -1
}

// ReadLabels reads one class name per line. Blank lines keep their index; lines starting with
// # are skipped.
//
// Arguments:
//   - r: The label file.
//
// Returns:
//   - Labels: The names in label order.
//   - error: An error if r cannot be read.
func ReadLabels(r io.Reader) (Labels, error) {
	var labels Labels
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	return labels, nil
}

// LoadLabels reads a label file from disk. The names "coco" and "voc" select the built in sets;
// an empty path means no names.
func LoadLabels(path string) (Labels, error) {
	switch path {
	case "":
		return nil, nil
	case "coco":
		return COCO, nil
	case "voc":
		return VOC, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open labels")
	}
	defer f.Close()
	return ReadLabels(f)
}

// COCO is the 80 class COCO label set as indexed by YOLO exports.
var COCO = Labels{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// VOC is the 20 class Pascal VOC label set.
var VOC = Labels{
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
}
