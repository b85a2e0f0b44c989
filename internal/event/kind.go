package event

import "sort"

// Kind identifica un tipo de handler.
type Kind int

const (
	KindToken Kind = iota + 1
	KindUserNotification
	KindScript
	KindRequestMangler
	KindResponseMangler
	KindCounter
	KindLogging
	KindWebHook
)

var kindNames = map[Kind]string{
	KindToken:            "Token",
	KindUserNotification: "UserNotification",
	KindScript:           "Script",
	KindRequestMangler:   "RequestMangler",
	KindResponseMangler:  "ResponseMangler",
	KindCounter:          "Counter",
	KindLogging:          "Logging",
	KindWebHook:          "WebHook",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// ParseKind resuelve el nombre de módulo guardado en la definición.
func ParseKind(module string) (Kind, bool) {
	for k, n := range kindNames {
		if n == module {
			return k, true
		}
	}
	return 0, false
}

// Kinds lista todos los tipos en orden.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := range kindNames {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
