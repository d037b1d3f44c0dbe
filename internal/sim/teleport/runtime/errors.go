package runtime

import "fmt"

// Failure codes reported to the triggering actor and to event consumers.
const (
	ErrInactive           = "E_TP_INACTIVE"
	ErrNoMesh             = "E_TP_NO_MESH"
	ErrNoDestination      = "E_TP_NO_DESTINATION"
	ErrOutOfRange         = "E_TP_OUT_OF_RANGE"
	ErrRegionLoading      = "E_TP_REGION_LOADING"
	ErrNoLandingPad       = "E_TP_NO_LANDING_PAD"
	ErrCooldown           = "E_TP_COOLDOWN"
	ErrBusy               = "E_TP_BUSY"
	ErrCanceled           = "E_TP_CANCELED"
	ErrRootLost           = "E_TP_ROOT_LOST"
	ErrDestinationMissing = "E_TP_DESTINATION_MISSING"
	ErrRelocationRefused  = "E_TP_RELOCATION_REFUSED"
)

// Failure is a locally handled outcome: nothing happens and the actor is told why.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func fail(code, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}
