package apperr

// Warning codes.
const (
	WarnTruncated        = "truncated"
	WarnShortSubject     = "short_subject"
	WarnPriorityRisk     = "priority_risk"
	WarnMetadataNotSaved = "metadata_not_saved"
)

// Warning is a non-fatal condition shown to the author. It never blocks
// the action that produced it.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w Warning) String() string { return w.Code + ": " + w.Message }

// HasWarning reports whether ws contains a warning with the given code.
func HasWarning(ws []Warning, code string) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}
