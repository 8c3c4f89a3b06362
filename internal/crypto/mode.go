package crypto

// Mode selects the cipher direction and whether the IV is written or read.
type Mode int

const (
	ModeAuthenticate Mode = iota
	ModeEncrypt
	ModeDecrypt
)

func (m Mode) String() string {
	switch m {
	case ModeAuthenticate:
		return "authenticate"
	case ModeEncrypt:
		return "encrypt"
	case ModeDecrypt:
		return "decrypt"
	default:
		return "unknown"
	}
}

// Encrypting reports whether the mode initializes the cipher in the
// encrypt direction. Authentication-only attempts still prime an encrypt
// cipher so the sensor has something to unlock.
func (m Mode) Encrypting() bool {
	return m != ModeDecrypt
}
