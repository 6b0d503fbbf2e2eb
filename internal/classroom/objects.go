package classroom

import "math"

// associatePhones assigns each phone detection to exactly one person
// track — the one whose center is nearest the phone's center, ties
// broken by ascending track index — rather than letting a phone mark
// multiple tracks, grounded on
// original_source/ai_service/models/detection.py::detect_phones_near_persons.
func associatePhones(tracks []*Track, objects []Detection, maxDistance float32) map[int]bool {
	result := make(map[int]bool, len(tracks))
	if len(tracks) == 0 {
		return result
	}

	var phones []Detection
	for _, o := range objects {
		if o.ClassID == ClassPhone {
			phones = append(phones, o)
		}
	}

	for _, p := range phones {
		pcx, pcy := p.BBox.Center()
		bestIdx := -1
		bestDist := float32(math.MaxFloat32)
		for i, tr := range tracks {
			tcx, tcy := tr.BBox.Center()
			d := distance(tcx, tcy, pcx, pcy)
			if d < bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		if bestIdx >= 0 && bestDist <= maxDistance {
			result[tracks[bestIdx].ID] = true
		}
	}

	return result
}

func distance(x1, y1, x2, y2 float32) float32 {
	dx := x1 - x2
	dy := y1 - y2
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}
