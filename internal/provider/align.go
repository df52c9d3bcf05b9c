package provider

import "github.com/saturnino-fabrica-de-software/presenca/internal/domain"

// MinAlignIoU is the overlap a provider's own detection needs with a requested
// box before its encoding is attributed to that box.
const MinAlignIoU = 0.3

// IoU calculates Intersection over Union between two boxes
func IoU(a, b domain.BoundingBox) float64 {
	top := max(a.Top, b.Top)
	left := max(a.Left, b.Left)
	bottom := min(a.Bottom, b.Bottom)
	right := min(a.Right, b.Right)

	if right <= left || bottom <= top {
		return 0
	}

	intersection := float64((right - left) * (bottom - top))
	union := float64(a.Width()*a.Height()+b.Width()*b.Height()) - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// Align attributes found encodings to the requested boxes. Each found face is
// used at most once; requested boxes without a sufficiently overlapping face
// get a nil encoding.
func Align(requested []domain.BoundingBox, found []domain.BoundingBox, encodings []domain.Encoding) []domain.Encoding {
	aligned := make([]domain.Encoding, len(requested))
	used := make([]bool, len(found))

	for i, box := range requested {
		best := -1
		bestIoU := MinAlignIoU
		for j, candidate := range found {
			if used[j] || j >= len(encodings) {
				continue
			}
			if iou := IoU(box, candidate); iou >= bestIoU {
				best = j
				bestIoU = iou
			}
		}
		if best >= 0 {
			used[best] = true
			aligned[i] = encodings[best]
		}
	}

	return aligned
}
