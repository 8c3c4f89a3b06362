package sensor

// Error codes reported through Callback.OnError. Values follow the platform
// fingerprint API.
const (
	ErrorHWUnavailable    = 1
	ErrorUnableToProcess  = 2
	ErrorTimeout          = 3
	ErrorNoSpace          = 4
	ErrorCanceled         = 5
	ErrorLockout          = 7
	ErrorVendor           = 8
	ErrorLockoutPermanent = 9
	ErrorUserCanceled     = 10
	ErrorNoBiometrics     = 11
	ErrorHWNotPresent     = 12
)

// Acquired codes reported through Callback.OnHelp.
const (
	AcquiredGood         = 0
	AcquiredPartial      = 1
	AcquiredInsufficient = 2
	AcquiredImagerDirty  = 3
	AcquiredTooSlow      = 4
	AcquiredTooFast      = 5
	AcquiredVendor       = 6
)

// NotRecognized is the help code used for a rejected sample
const NotRecognized = -1
