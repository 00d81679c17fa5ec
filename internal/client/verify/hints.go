package verify

import (
	"fmt"
	"time"
)

// Hint thresholds. The longer the wait, the more actionable the advice.
const (
	hintStillWaitingAfter = 30 * time.Second
	hintSpamAfter         = 60 * time.Second
)

// WaitMessage is the headline of the wait screen.
func WaitMessage(email string) string {
	return fmt.Sprintf("Please verify your email (%s) to continue. Check your inbox for the confirmation link.", email)
}

// Hint returns the elapsed-time-appropriate nudge under the headline.
func Hint(elapsed time.Duration) string {
	switch {
	case elapsed >= hintSpamAfter:
		return "Not seeing it? Check your spam or junk folder, or resend the email."
	case elapsed >= hintStillWaitingAfter:
		return "Still waiting for the confirmation to land."
	default:
		return "This usually takes under a minute."
	}
}
