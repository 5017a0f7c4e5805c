package models

import "math"

// NewBagging is a forest whose trees consider every feature at every split.
func NewBagging(p Params) *RandomForest {
	p.MaxFeatures = math.MaxInt32
	rf := NewRandomForest(p)
	rf.Label = "Bagging"
	return rf
}
