package domain

// HoldState is the state tag this system keeps on a processor-side card hold.
type HoldState string

const (
	HoldNew       HoldState = "new"
	HoldFailed    HoldState = "failed"
	HoldCancelled HoldState = "cancelled"
	HoldCaptured  HoldState = "captured"
)

// CardHold is a reserved-but-not-yet-captured authorization against a
// participant's card. It lives on the processor; once issued it cannot be
// locally rolled back, only captured or cancelled.
type CardHold struct {
	HoldID        string    `json:"holdID"`
	ParticipantID string    `json:"participantID"`
	Amount        int64     `json:"amount"` // minor units, as the processor reports it
	State         HoldState `json:"state"`  // our metadata tag

	// Raw processor fields used to derive the true state.
	Status        string `json:"status"`
	FailureReason string `json:"failureReason"`
	Voided        bool   `json:"voided"`
	CaptureRef    string `json:"captureRef"`
}

// LiveState derives the hold's true state from what the processor reports,
// regardless of the possibly stale metadata tag.
func (h CardHold) LiveState() HoldState {
	switch {
	case h.Status == "failed" || h.FailureReason != "":
		return HoldFailed
	case h.Voided:
		return HoldCancelled
	case h.CaptureRef != "":
		return HoldCaptured
	}
	return HoldNew
}
