package otp

// Outcome es el resultado etiquetado de una verificación.
type Outcome int

const (
	Match Outcome = iota
	NoMatch
	WrongToken
	ChecksumFailure
	MalformedInput
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case NoMatch:
		return "no_match"
	case WrongToken:
		return "wrong_token"
	case ChecksumFailure:
		return "checksum_failure"
	case MalformedInput:
		return "malformed_input"
	}
	return "unknown"
}

// Result de Codec.Check. Counter solo tiene sentido si Outcome == Match.
type Result struct {
	Outcome Outcome
	Counter int64

	// Yubikey: uid interno descifrado y prefijo público presentado.
	UID    string
	Prefix string
}

// OK indica si el código fue aceptado.
func (r Result) OK() bool { return r.Outcome == Match }

// Code devuelve el código numérico histórico: el contador si hubo match,
// o -1..-4 según el tipo de falla. Solo para logs y auditoría.
func (r Result) Code() int64 {
	switch r.Outcome {
	case Match:
		return r.Counter
	case NoMatch:
		return -1
	case WrongToken:
		return -2
	case ChecksumFailure:
		return -3
	case MalformedInput:
		return -4
	}
	return -1
}

func matched(counter int64) Result { return Result{Outcome: Match, Counter: counter} }

func failed(o Outcome) Result { return Result{Outcome: o} }
