package patients

import "errors"

// ErrMessageNotFound is returned when a patient message is not found
var ErrMessageNotFound = errors.New("patient message not found")
