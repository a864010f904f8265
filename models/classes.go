// Package models - Class label tables for detection models.
package models

import (
	"github.com/nvr-ai/go-detect/common"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int `json:"index" yaml:"index"`
	// The human-readable label.
	Name string `json:"name" yaml:"name"`
}

// ClassTable maps the class ids a model emits to human-readable labels. Every
// id in [0, Len()) is valid, including 0.
type ClassTable struct {
	// Set names the label set, e.g. "apparel".
	Set       string
	classes   []OutputClass
	nameToIdx map[string]int
}

// NewClassTable builds a table where labels[i] is the name of class i.
//
// Arguments:
//   - set: A name for the label set, used in logs.
//   - labels: The class names in model output order.
//
// Returns:
//   - *ClassTable: The table.
//   - error: An ErrInvalidConfig error for an empty, blank or duplicated label.
//
// @example
// table, err := NewClassTable("apparel", ApparelLabels)
// name, ok := table.Name(0) // "men-activewear", true
func NewClassTable(set string, labels []string) (*ClassTable, error) {
	if len(labels) == 0 {
		return nil, common.Errorf(common.ErrInvalidConfig, "class table %q has no labels", set)
	}

	t := &ClassTable{
		Set:       set,
		classes:   make([]OutputClass, len(labels)),
		nameToIdx: make(map[string]int, len(labels)),
	}
	for i, name := range labels {
		if name == "" {
			return nil, common.Errorf(common.ErrInvalidConfig, "class %d of %q has an empty label", i, set)
		}
		if prev, dup := t.nameToIdx[name]; dup {
			return nil, common.Errorf(common.ErrInvalidConfig, "label %q is used by classes %d and %d", name, prev, i)
		}
		t.classes[i] = OutputClass{Index: i, Name: name}
		t.nameToIdx[name] = i
	}
	return t, nil
}

// Len returns the number of classes.
func (t *ClassTable) Len() int {
	return len(t.classes)
}

// Name returns the label of class id.
func (t *ClassTable) Name(id int) (string, bool) {
	if id < 0 || id >= len(t.classes) {
		return "", false
	}
	return t.classes[id].Name, true
}

// Index returns the class id of the label name.
func (t *ClassTable) Index(name string) (int, bool) {
	idx, ok := t.nameToIdx[name]
	return idx, ok
}

// Classes returns a copy of the table entries in id order.
func (t *ClassTable) Classes() []OutputClass {
	return append([]OutputClass(nil), t.classes...)
}

const (
	// ApparelSet is the 18-class clothing detector label set.
	ApparelSet = "apparel"
	// COCOSet is the 80-class COCO label set used by stock YOLO exports.
	COCOSet = "coco"
	// VOCSet is the 20-class Pascal VOC label set.
	VOCSet = "voc"
)

// ApparelLabels are the labels of the apparel detector, in class id order.
var ApparelLabels = []string{
	"men-activewear",
	"men-denim",
	"men-outerwears",
	"men-pants",
	"men-shorts",
	"men-sweaters",
	"men-swimwear",
	"men-tops",
	"women-activewear",
	"women-denim",
	"women-dresses",
	"women-outerwears",
	"women-pants",
	"women-shorts",
	"women-skirts",
	"women-sweaters",
	"women-swimwear",
	"women-tops",
}

// COCOLabels are the 80 COCO classes as emitted by YOLO exports (no background).
var COCOLabels = []string{
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

// VOCLabels are the 20 Pascal VOC classes, without background.
var VOCLabels = []string{
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
}
