// Package metric scores segmentation output against a reference mask.
package metric

import (
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
)

// Threshold separates foreground from background in probability maps.
const Threshold = 0.5

// overlap returns |P∩T|, |P| and |T| of the foreground (> threshold) masks.
func overlap(pred, target *ts.Tensor, threshold float64) (inter, p, t float64) {
	iflat := pred.MustView([]int64{-1}, false)
	tflat := target.MustView([]int64{-1}, false)
	pm := iflat.MustGt(ts.FloatScalar(threshold), true)
	tm := tflat.MustGt(ts.FloatScalar(threshold), true)

	return intersect(pm, tm)
}

// intersect sums two boolean masks and their product, then drops them.
func intersect(pm, tm *ts.Tensor) (inter, p, t float64) {
	ptMul := pm.MustMul(tm, false)
	interTs := ptMul.MustSum(gotch.Double, true)
	pTs := pm.MustSum(gotch.Double, true)
	tTs := tm.MustSum(gotch.Double, true)

	inter = interTs.Float64Values()[0]
	p = pTs.Float64Values()[0]
	t = tTs.Float64Values()[0]
	interTs.MustDrop()
	pTs.MustDrop()
	tTs.MustDrop()

	return inter, p, t
}

// DiceCoeff is the Dice coefficient 2|P∩T| / (|P|+|T|) of two masks of the
// same number of elements. Values above Threshold count as foreground. Two
// empty masks score 1.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	return DiceScore(pred, target, Threshold)
}

// DiceScore is DiceCoeff with an explicit threshold.
func DiceScore(pred, target *ts.Tensor, threshold float64) float64 {
	inter, p, t := overlap(pred, target, threshold)
	if p+t == 0 {
		return 1
	}
	return 2 * inter / (p + t)
}

// IoU is the foreground intersection over union |P∩T| / |P∪T|.
func IoU(pred, target *ts.Tensor) float64 {
	return IoUScore(pred, target, Threshold)
}

// IoUScore is IoU with an explicit threshold.
func IoUScore(pred, target *ts.Tensor, threshold float64) float64 {
	inter, p, t := overlap(pred, target, threshold)
	union := p + t - inter
	if union == 0 {
		return 1
	}
	return inter / union
}

// JaccardIndex is the mean IoU over nclasses label values. pred and target
// hold class indices. Classes absent from both are not counted.
func JaccardIndex(pred, target *ts.Tensor, nclasses int) float64 {
	iflat := pred.MustView([]int64{-1}, false)
	tflat := target.MustView([]int64{-1}, false)
	defer iflat.MustDrop()
	defer tflat.MustDrop()

	var sum float64
	var n int
	for c := 0; c < nclasses; c++ {
		label := ts.FloatScalar(float64(c))
		pm := iflat.MustEq(label, false)
		tm := tflat.MustEq(label, false)
		inter, p, t := intersect(pm, tm)
		union := p + t - inter
		if union == 0 {
			continue
		}
		sum += inter / union
		n++
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}
