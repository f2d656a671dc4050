package domain

// Thresholds holds the radiometric limits for the quality check.
// A nil limit disables that side of the check.
type Thresholds struct {
	MinFRP *float64 // megawatts
	MaxTB  *float64 // kelvin
}

// AcceptQuality reports whether a detection passes the radiometric quality
// check. A detection is rejected only when its FRP is below the configured
// minimum AND its brightness temperature exceeds the configured maximum;
// that combination marks false positives such as sun-glint, which are
// anomalously bright but carry negligible radiative power. With either
// threshold unset the detection is accepted.
func AcceptQuality(d Detection, t Thresholds) bool {
	if t.MinFRP == nil || t.MaxTB == nil {
		return true
	}
	return !(d.Power < *t.MinFRP && d.TB > *t.MaxTB)
}

// FilterQuality returns the detections passing AcceptQuality and the
// number rejected.
func FilterQuality(ds []Detection, t Thresholds) ([]Detection, int) {
	kept := make([]Detection, 0, len(ds))
	for _, d := range ds {
		if AcceptQuality(d, t) {
			kept = append(kept, d)
		}
	}
	return kept, len(ds) - len(kept)
}
