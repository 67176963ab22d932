package patch

const (
	OperationAdd     = "add"
	OperationReplace = "replace"
	OperationRemove  = "remove"
)

// Operation is one RFC 6902 operation on the slot document, whose members are slot names.
type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// SlotPath returns the JSON pointer of a slot.
func SlotPath(slot string) string {
	return "/" + escapeJSONPointer(slot)
}

func escapeJSONPointer(token string) string {
	var sb []rune
	for _, ch := range token {
		switch ch {
		case '~':
			sb = append(sb, '~', '0')
		case '/':
			sb = append(sb, '~', '1')
		default:
			sb = append(sb, ch)
		}
	}
	return string(sb)
}

func unescapeJSONPointer(token string) string {
	var out []rune
	rs := []rune(token)
	for i := 0; i < len(rs); i++ {
		if rs[i] == '~' && i+1 < len(rs) {
			switch rs[i+1] {
			case '0':
				out = append(out, '~')
				i++
				continue
			case '1':
				out = append(out, '/')
				i++
				continue
			}
		}
		out = append(out, rs[i])
	}
	return string(out)
}
