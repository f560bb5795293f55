package civicscreen

// CategorySignal represents a single evidence point about a report's category.
type CategorySignal struct {
	Source     string  // "text", "image" or "mismatch"
	Category   string  // category the signal points at
	Confidence float64 // model confidence, 0 for "mismatch"
}

// CategoryAssessment combines the text and image classifications into the
// resolved category.
type CategoryAssessment struct {
	Category  string           // resolved category, "" when neither modality produced one
	Agreement bool             // both modalities present and equal; informational only
	Signals   []CategorySignal // contributing evidence (never nil, may be empty)
}

// ResolveCategory merges the two modalities. Text wins on disagreement, since
// it is always written by the reporter; a mismatch is recorded as a signal and
// never rejects the report.
func ResolveCategory(text, image *Classification) CategoryAssessment {
	signals := make([]CategorySignal, 0, 3) //nolint:mnd // text, image, mismatch

	if text != nil && text.Category != "" {
		signals = append(signals, CategorySignal{Source: "text", Category: text.Category, Confidence: text.Confidence})
	} else {
		text = nil
	}
	if image != nil && image.Category != "" {
		signals = append(signals, CategorySignal{Source: "image", Category: image.Category, Confidence: image.Confidence})
	} else {
		image = nil
	}

	switch {
	case text != nil && image != nil:
		if text.Category == image.Category {
			return CategoryAssessment{Category: text.Category, Agreement: true, Signals: signals}
		}
		signals = append(signals, CategorySignal{Source: "mismatch", Category: image.Category})
		return CategoryAssessment{Category: text.Category, Signals: signals}
	case text != nil:
		return CategoryAssessment{Category: text.Category, Signals: signals}
	case image != nil:
		return CategoryAssessment{Category: image.Category, Signals: signals}
	default:
		return CategoryAssessment{Signals: signals}
	}
}
